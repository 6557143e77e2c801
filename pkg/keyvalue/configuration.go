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

package keyvalue

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hesperia-light/hesperia-core/pkg/env"
)

// ErrKeyNotFound is returned for keys absent from a Configuration.
var ErrKeyNotFound = errors.New("key not found")

// Configuration is an immutable set of key/value pairs. Keys are dotted
// paths such as "vehicle.posx" and are matched case insensitively.
type Configuration struct {
	values map[string]string
}

// NewConfiguration copies values into a new Configuration.
func NewConfiguration(values map[string]string) Configuration {
	c := Configuration{values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[normalizeKey(k)] = v
	}

	return c
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Len returns the number of keys.
func (c Configuration) Len() int {
	return len(c.values)
}

// Keys returns all keys in lexical order.
func (c Configuration) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// Map returns a copy of the underlying pairs.
func (c Configuration) Map() map[string]string {
	return maps.Clone(c.values)
}

// Value returns the raw value stored under key.
func (c Configuration) Value(key string) (string, error) {
	v, ok := c.values[normalizeKey(key)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return v, nil
}

func (c Configuration) String(key string) (string, error) {
	return c.Value(key)
}

func (c Configuration) Int(key string) (int, error) {
	v, err := c.Value(key)
	if err != nil {
		return 0, err
	}

	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("value of %s is not an integer: %w", key, err)
	}

	return i, nil
}

func (c Configuration) Float(key string) (float64, error) {
	v, err := c.Value(key)
	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("value of %s is not a number: %w", key, err)
	}

	return f, nil
}

// Bool accepts the same spellings as environment variables: 1, yes, on and so on.
func (c Configuration) Bool(key string) (bool, error) {
	v, err := c.Value(key)
	if err != nil {
		return false, err
	}

	b, ok := env.ParseBool(v)
	if !ok {
		return false, fmt.Errorf("value of %s is not a boolean: %q", key, v)
	}

	return b, nil
}

// Duration parses values in time.ParseDuration syntax. Bare numbers are seconds.
func (c Configuration) Duration(key string) (time.Duration, error) {
	v, err := c.Value(key)
	if err != nil {
		return 0, err
	}

	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("value of %s is not a duration: %w", key, err)
	}

	return d, nil
}

// FloatOr returns the float under key, or def if the key is missing or malformed.
func (c Configuration) FloatOr(key string, def float64) float64 {
	if f, err := c.Float(key); err == nil {
		return f
	}

	return def
}

// BoolOr returns the boolean under key, or def if the key is missing or malformed.
func (c Configuration) BoolOr(key string, def bool) bool {
	if b, err := c.Bool(key); err == nil {
		return b
	}

	return def
}

// Subset returns the pairs whose key lies in section, keeping full keys.
func (c Configuration) Subset(section string) Configuration {
	prefix := normalizeKey(section) + "."
	out := Configuration{values: make(map[string]string)}

	for k, v := range c.values {
		if strings.HasPrefix(k, prefix) {
			out.values[k] = v
		}
	}

	return out
}

// Merge returns a new Configuration with the pairs of other layered over c.
func (c Configuration) Merge(other Configuration) Configuration {
	out := Configuration{values: maps.Clone(c.values)}
	if out.values == nil {
		out.values = make(map[string]string, len(other.values))
	}

	maps.Copy(out.values, other.values)

	return out
}
