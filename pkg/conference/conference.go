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

package conference

import (
	"context"
	"errors"
	"sync"

	"github.com/hesperia-light/hesperia-core/pkg/data"
)

// ErrClosed is returned by Send on a closed conference.
var ErrClosed = errors.New("conference closed")

// Listener receives containers delivered by a conference.
type Listener interface {
	NextContainer(c data.Container)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(c data.Container)

func (f ListenerFunc) NextContainer(c data.Container) {
	f(c)
}

// ConnectionLostFunc is called when a networked conference loses its broker.
type ConnectionLostFunc func(err error)

// Conference is the publish channel between modules. Send is fire and
// forget: a nil error means the container was handed to the transport, not
// that anyone received it.
type Conference interface {
	Send(ctx context.Context, c data.Container) error
	AddListener(l Listener)
	Close() error
}

// listeners is a copy-on-write listener list shared by the implementations.
type listeners struct {
	mu   sync.RWMutex
	list []Listener
}

func (l *listeners) add(listener Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]Listener, len(l.list), len(l.list)+1)
	copy(next, l.list)
	l.list = append(next, listener)
}

func (l *listeners) deliver(c data.Container) {
	l.mu.RLock()
	list := l.list
	l.mu.RUnlock()

	for _, listener := range list {
		listener.NextContainer(c)
	}
}
