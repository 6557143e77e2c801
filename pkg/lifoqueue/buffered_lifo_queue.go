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

package lifoqueue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/tiendc/go-deepcopy"
)

// ErrIndexOutOfBounds is returned by ElementAt for positions that are not
// currently retained.
var ErrIndexOutOfBounds = errors.New("index out of bounds")

// BufferedLIFOQueue keeps the most recent containers pushed into it, up to a
// fixed capacity. Positions run from 0 (oldest retained) to
// IndexOfLastElement (newest). Reads are non-destructive.
//
// The queue owns copies of everything pushed into it and hands out copies on
// every read. A stored entry is never modified after insertion, so copying
// happens outside the lock and readers only hold it to pick a slot.
//
// A BufferedLIFOQueue must not be copied after first use.
type BufferedLIFOQueue struct {
	mu       sync.RWMutex
	slots    []data.Container
	head     int // slot of the oldest retained entry
	size     int
	capacity int
}

// NewBufferedLIFOQueue returns an empty queue. A capacity of zero or less
// yields a queue that never retains anything.
func NewBufferedLIFOQueue(capacity int) *BufferedLIFOQueue {
	if capacity < 0 {
		capacity = 0
	}

	return &BufferedLIFOQueue{
		slots:    make([]data.Container, capacity),
		capacity: capacity,
	}
}

// clone deep-copies c. It falls back to copying the payload by hand if
// deepcopy rejects the value.
func clone(c data.Container) data.Container {
	var out data.Container
	if err := deepcopy.Copy(&out, &c); err == nil {
		return out
	}

	out = c
	out.Payload = append([]byte(nil), c.Payload...)

	return out
}

// Push stores a copy of c as the newest entry, evicting the oldest one when
// the queue is full. Push on a zero-capacity queue does nothing.
func (q *BufferedLIFOQueue) Push(c data.Container) {
	if q.capacity == 0 {
		return
	}

	owned := clone(c)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size < q.capacity {
		q.slots[(q.head+q.size)%q.capacity] = owned
		q.size++

		return
	}

	q.slots[q.head] = owned
	q.head = (q.head + 1) % q.capacity
}

// IndexOfLastElement returns the position of the newest entry, or -1 if the
// queue is empty.
func (q *BufferedLIFOQueue) IndexOfLastElement() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.size - 1
}

// ElementAt returns a copy of the entry at index without removing it.
func (q *BufferedLIFOQueue) ElementAt(index int) (data.Container, error) {
	q.mu.RLock()

	if index < 0 || index >= q.size {
		size := q.size
		q.mu.RUnlock()

		return data.Container{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfBounds, index, size)
	}

	stored := q.slots[(q.head+index)%q.capacity]
	q.mu.RUnlock()

	return clone(stored), nil
}

// Latest returns a copy of the newest entry. ok is false when the queue is empty.
func (q *BufferedLIFOQueue) Latest() (c data.Container, ok bool) {
	q.mu.RLock()

	if q.size == 0 {
		q.mu.RUnlock()

		return data.Container{}, false
	}

	stored := q.slots[(q.head+q.size-1)%q.capacity]
	q.mu.RUnlock()

	return clone(stored), true
}

// Size returns the number of retained entries.
func (q *BufferedLIFOQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.size
}

func (q *BufferedLIFOQueue) Capacity() int {
	return q.capacity
}

func (q *BufferedLIFOQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear drops all retained entries.
func (q *BufferedLIFOQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.slots {
		q.slots[i] = data.Container{}
	}

	q.head = 0
	q.size = 0
}
