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
	"fmt"
	"sync"

	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
	"go.uber.org/zap"
)

const defaultMailboxSize = 64

// Hub is an in-process broadcast medium. Every container sent by one member
// is delivered to all other members.
type Hub struct {
	mu      sync.RWMutex
	members map[*Local]struct{}
	logger  *zap.SugaredLogger
}

func NewHub() *Hub {
	return &Hub{
		members: make(map[*Local]struct{}),
		logger:  logger.For(logger.ComponentConference),
	}
}

// Join adds a member identified by senderID.
func (h *Hub) Join(senderID string) *Local {
	l := &Local{
		hub:      h,
		senderID: senderID,
		mailbox:  make(chan data.Container, defaultMailboxSize),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.members[l] = struct{}{}
	h.mu.Unlock()

	l.wg.Add(1)

	go l.dispatch()

	return l
}

func (h *Hub) leave(l *Local) {
	h.mu.Lock()
	delete(h.members, l)
	h.mu.Unlock()
}

func (h *Hub) broadcast(from *Local, c data.Container) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for member := range h.members {
		if member == from {
			continue
		}

		if !member.offer(c) {
			metrics.IncErrorCount(metrics.ComponentConference, member.senderID)
			h.logger.Debugf("Mailbox of %s full, dropped %s", member.senderID, c.Type)
		}
	}
}

// Local is one member of a Hub.
type Local struct {
	hub       *Hub
	senderID  string
	mailbox   chan data.Container
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	listeners listeners
}

// Send stamps c with the member's sender ID and send time and queues it for
// every other member. Full mailboxes drop the container.
func (l *Local) Send(ctx context.Context, c data.Container) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-l.done:
		return fmt.Errorf("send %s: %w", c.Type, ErrClosed)
	default:
	}

	c.SenderID = l.senderID
	c.Sent = data.Now()
	c.Received = data.TimeStamp{}

	metrics.IncContainersSent(l.senderID, c.Type.String())
	l.hub.broadcast(l, c)

	return nil
}

func (l *Local) AddListener(listener Listener) {
	l.listeners.add(listener)
}

// offer queues c without blocking. It reports false if c was dropped.
func (l *Local) offer(c data.Container) bool {
	select {
	case <-l.done:
		return true
	default:
	}

	select {
	case l.mailbox <- c:
		return true
	default:
		return false
	}
}

func (l *Local) dispatch() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		case c := <-l.mailbox:
			c.Received = data.Now()
			metrics.IncContainersReceived(l.senderID, c.Type.String())
			l.listeners.deliver(c)
		}
	}
}

// Close leaves the hub and stops delivery. Pending containers are dropped.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.hub.leave(l)
		close(l.done)
	})
	l.wg.Wait()

	return nil
}
