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

package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("service already started")
	// ErrAlreadyStopped is returned by Start after Stop.
	ErrAlreadyStopped = errors.New("service already stopped")
	// ErrStoppedBeforeReady is returned by Start when Stop won the race
	// against Ready.
	ErrStoppedBeforeReady = errors.New("service stopped before it became ready")
	// ErrNotStarted is returned by Wait on a service that was never started.
	ErrNotStarted = errors.New("service not started")
)

// IsLogicError reports whether err stems from misusing the lifecycle, as
// opposed to a failure of the worker itself.
func IsLogicError(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) || errors.Is(err, ErrAlreadyStopped) || errors.Is(err, ErrNotStarted)
}

// StartupError is returned by Start when Run returned or panicked before
// calling Ready.
type StartupError struct {
	Service string
	Err     error
}

func (e *StartupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service %s exited before becoming ready", e.Service)
	}

	return fmt.Sprintf("service %s exited before becoming ready: %v", e.Service, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from Run.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in service run: %v", e.Value)
}
