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
	"time"

	"github.com/cactus/tai64"
)

// TimeStamp is a point in time split into whole seconds and nanoseconds
// since the Unix epoch. The zero value means "not set".
type TimeStamp struct {
	Seconds int64
	Nanos   int64
}

// Now returns the current time.
func Now() TimeStamp {
	return FromTime(time.Now())
}

func FromTime(t time.Time) TimeStamp {
	return TimeStamp{Seconds: t.Unix(), Nanos: int64(t.Nanosecond())}
}

func (ts TimeStamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanos == 0
}

func (ts TimeStamp) Time() time.Time {
	return time.Unix(ts.Seconds, ts.Nanos)
}

// Sub returns ts-other.
func (ts TimeStamp) Sub(other TimeStamp) time.Duration {
	return ts.Time().Sub(other.Time())
}

// TAI64N renders ts as an external TAI64N label such as
// "@4000000068f1e2a3075bcd15".
func (ts TimeStamp) TAI64N() string {
	return tai64.FormatNano(ts.Time())
}

// ParseTAI64N parses a TAI64 or TAI64N label.
func ParseTAI64N(s string) (TimeStamp, error) {
	t, err := tai64.Parse(s)
	if err != nil {
		return TimeStamp{}, err
	}

	return FromTime(t), nil
}

func (ts TimeStamp) String() string {
	if ts.IsZero() {
		return "unset"
	}

	return ts.TAI64N()
}

// MarshalText encodes ts as TAI64N, or as an empty string when unset.
func (ts TimeStamp) MarshalText() ([]byte, error) {
	if ts.IsZero() {
		return []byte{}, nil
	}

	return []byte(ts.TAI64N()), nil
}

func (ts *TimeStamp) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*ts = TimeStamp{}

		return nil
	}

	parsed, err := ParseTAI64N(string(text))
	if err != nil {
		return err
	}

	*ts = parsed

	return nil
}
