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

package datastore

import (
	"slices"
	"sync"
	"time"

	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/lifoqueue"
)

// KeyValueDataStore keeps a short history of received containers per data
// type. It is the input side of a client module: a conference delivers into
// it, the module's step reads the newest entry per type.
type KeyValueDataStore struct {
	mu       sync.RWMutex
	queues   map[data.DataType]*lifoqueue.BufferedLIFOQueue
	capacity int
	now      func() time.Time
}

// New returns an empty store keeping capacity entries per type. A capacity
// of zero or less selects the default.
func New(capacity int) *KeyValueDataStore {
	if capacity <= 0 {
		capacity = constants.DefaultQueueCapacity
	}

	return &KeyValueDataStore{
		queues:   make(map[data.DataType]*lifoqueue.BufferedLIFOQueue),
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *KeyValueDataStore) queue(t data.DataType, create bool) *lifoqueue.BufferedLIFOQueue {
	s.mu.RLock()
	q, ok := s.queues[t]
	s.mu.RUnlock()

	if ok || !create {
		return q
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok = s.queues[t]; !ok {
		q = lifoqueue.NewBufferedLIFOQueue(s.capacity)
		s.queues[t] = q
	}

	return q
}

// Put stores c as the newest entry of its type, stamping Received if unset.
func (s *KeyValueDataStore) Put(c data.Container) {
	if c.Received.IsZero() {
		c.Received = data.FromTime(s.now())
	}

	s.queue(c.Type, true).Push(c)
}

// NextContainer makes the store a conference listener.
func (s *KeyValueDataStore) NextContainer(c data.Container) {
	s.Put(c)
}

// Get returns the newest container of type t, or an empty container if none
// was received yet.
func (s *KeyValueDataStore) Get(t data.DataType) data.Container {
	q := s.queue(t, false)
	if q == nil {
		return data.Container{}
	}

	c, _ := q.Latest()

	return c
}

// History returns the history queue of type t. ok is false if nothing of
// that type was ever stored.
func (s *KeyValueDataStore) History(t data.DataType) (q *lifoqueue.BufferedLIFOQueue, ok bool) {
	q = s.queue(t, false)

	return q, q != nil
}

// IsFresh reports whether the newest container of type t was received less
// than maxAge ago.
func (s *KeyValueDataStore) IsFresh(t data.DataType, maxAge time.Duration) bool {
	c := s.Get(t)
	if c.Received.IsZero() {
		return false
	}

	return s.now().Sub(c.Received.Time()) < maxAge
}

// Types returns the data types seen so far, in ascending order.
func (s *KeyValueDataStore) Types() []data.DataType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]data.DataType, 0, len(s.queues))
	for t := range s.queues {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}
