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
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrEmptyPayload is returned when decoding a container without payload.
var ErrEmptyPayload = errors.New("container has no payload")

// Container is the unit exchanged between modules: a type tag plus a JSON
// encoded payload. Containers are values, copying one never shares the
// payload bytes with code that mutates them in place.
type Container struct {
	ID       uuid.UUID       `json:"id"`
	Type     DataType        `json:"type"`
	SenderID string          `json:"sender,omitempty"`
	Sent     TimeStamp       `json:"sent"`
	Received TimeStamp       `json:"received"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewContainer serializes payload and tags it with dataType.
func NewContainer(dataType DataType, payload any) (Container, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Container{}, fmt.Errorf("failed to marshal %s payload: %w", dataType, err)
	}

	return Container{
		ID:      uuid.New(),
		Type:    dataType,
		Payload: raw,
	}, nil
}

// MustContainer is NewContainer for payloads that cannot fail to marshal.
func MustContainer(dataType DataType, payload any) Container {
	c, err := NewContainer(dataType, payload)
	if err != nil {
		panic(err)
	}

	return c
}

// IsEmpty reports whether c is the zero container handed out for missing data.
func (c Container) IsEmpty() bool {
	return c.Type == TypeUndefined && len(c.Payload) == 0
}

// Decode unmarshals the payload into into.
func (c Container) Decode(into any) error {
	if len(c.Payload) == 0 {
		return ErrEmptyPayload
	}

	if err := json.Unmarshal(c.Payload, into); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", c.Type, err)
	}

	return nil
}

func (c Container) String() string {
	return fmt.Sprintf("Container(%s, id=%s, sender=%q, sent=%s, %d bytes)", c.Type, c.ID, c.SenderID, c.Sent, len(c.Payload))
}
