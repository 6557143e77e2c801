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

// Package ctxutil has small helpers for bounding blocking work by a context.
package ctxutil

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// EnsureDeadline bounds ctx by fallback unless it already has a deadline.
func EnsureDeadline(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, fallback)
}

// Mutex is a lock whose Lock returns ctx.Err() if the context ends first.
// The zero value is not usable, use NewMutex.
type Mutex struct{ sem *semaphore.Weighted }

func NewMutex() *Mutex { return &Mutex{sem: semaphore.NewWeighted(1)} }

func (m *Mutex) Lock(ctx context.Context) error { return m.sem.Acquire(ctx, 1) }
func (m *Mutex) TryLock() bool                  { return m.sem.TryAcquire(1) }
func (m *Mutex) Unlock()                        { m.sem.Release(1) }
