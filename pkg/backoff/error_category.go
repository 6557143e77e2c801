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

// Package backoff classifies step errors so the cycle runtime knows whether
// to keep going, count a retry or stop the module.
package backoff

import (
	"errors"
	"strconv"
)

type ErrorCategory int

const (
	// CategoryIgnored is logged, the module keeps cycling.
	CategoryIgnored ErrorCategory = iota
	// CategoryTransient is tolerated up to a limit of consecutive failures.
	CategoryTransient
	// CategoryPermanent ends the module.
	CategoryPermanent
)

var categoryNames = [...]string{"ignored", "transient", "permanent"}

func (c ErrorCategory) String() string {
	if c >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}

	return "ErrorCategory(" + strconv.Itoa(int(c)) + ")"
}

type categorized struct {
	error
	category ErrorCategory
}

func (c categorized) Unwrap() error { return c.error }

func NewIgnoredError(err error) error   { return categorized{err, CategoryIgnored} }
func NewTransientError(err error) error { return categorized{err, CategoryTransient} }
func NewPermanentError(err error) error { return categorized{err, CategoryPermanent} }

// CategoryOf returns the outermost category in err's chain. Errors nobody
// classified are permanent.
func CategoryOf(err error) ErrorCategory {
	var c categorized
	if errors.As(err, &c) {
		return c.category
	}

	return CategoryPermanent
}

func IsIgnoredError(err error) bool {
	return err != nil && CategoryOf(err) == CategoryIgnored
}

func IsTransientError(err error) bool {
	return err != nil && CategoryOf(err) == CategoryTransient
}

func IsPermanentError(err error) bool {
	return err != nil && CategoryOf(err) == CategoryPermanent
}
