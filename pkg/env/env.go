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

// Package env reads typed settings from environment variables. An unset or
// empty variable yields the default unless it is required. A malformed
// optional variable also yields the default; a malformed required one is an
// error.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup[T any](key string, required bool, defaultValue T, kind string, parse func(string) (T, error)) (T, error) {
	raw := os.Getenv(key)
	if raw == "" {
		if required {
			var zero T

			return zero, fmt.Errorf("required environment variable %s is not set", key)
		}

		return defaultValue, nil
	}

	value, err := parse(raw)
	if err != nil {
		if required {
			var zero T

			return zero, fmt.Errorf("environment variable %s must be %s: %w", key, kind, err)
		}

		return defaultValue, nil
	}

	return value, nil
}

func GetAsString(key string, required bool, defaultValue string) (string, error) {
	return lookup(key, required, defaultValue, "a string", func(s string) (string, error) { return s, nil })
}

func GetAsInt(key string, required bool, defaultValue int) (int, error) {
	return lookup(key, required, defaultValue, "an integer", func(s string) (int, error) {
		return strconv.Atoi(strings.TrimSpace(s))
	})
}

func GetAsBool(key string, required bool, defaultValue bool) (bool, error) {
	return lookup(key, required, defaultValue, "a boolean", func(s string) (bool, error) {
		b, ok := ParseBool(s)
		if !ok {
			return false, fmt.Errorf("unrecognized boolean %q", s)
		}

		return b, nil
	})
}

func GetAsFloat(key string, required bool, defaultValue float64) (float64, error) {
	return lookup(key, required, defaultValue, "a number", func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	})
}

// GetAsDuration uses time.ParseDuration syntax.
func GetAsDuration(key string, required bool, defaultValue time.Duration) (time.Duration, error) {
	return lookup(key, required, defaultValue, "a duration", func(s string) (time.Duration, error) {
		return time.ParseDuration(strings.TrimSpace(s))
	})
}

// ParseBool accepts 1/0, true/false, yes/no, y/n and on/off in any case.
// The second result is false for anything else.
func ParseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y", "on":
		return true, true
	case "false", "0", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// WithPrefix returns the variables whose names start with prefix, keyed by
// the rest of the name.
func WithPrefix(prefix string) map[string]string {
	out := make(map[string]string)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || len(key) <= len(prefix) || !strings.HasPrefix(key, prefix) {
			continue
		}

		out[key[len(prefix):]] = value
	}

	return out
}
