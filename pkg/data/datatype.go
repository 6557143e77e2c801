// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"fmt"
	"strings"
)

// DataType tags the payload carried by a Container.
type DataType int32

const (
	TypeUndefined DataType = iota
	TypeConfiguration
	TypeHeartbeat
	TypeForceControl
	TypeEgoState
	TypeVehicleData
)

var dataTypeNames = map[DataType]string{
	TypeUndefined:     "undefined",
	TypeConfiguration: "configuration",
	TypeHeartbeat:     "heartbeat",
	TypeForceControl:  "forcecontrol",
	TypeEgoState:      "egostate",
	TypeVehicleData:   "vehicledata",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("datatype(%d)", int32(t))
}

// ParseDataType is the inverse of String. It is case insensitive.
func ParseDataType(s string) (DataType, error) {
	lower := strings.ToLower(s)
	for t, name := range dataTypeNames {
		if name == lower {
			return t, nil
		}
	}

	return TypeUndefined, fmt.Errorf("unknown data type %q", s)
}

func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}
