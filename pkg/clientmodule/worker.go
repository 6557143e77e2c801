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

package clientmodule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/datastore"
	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
)

// Worker is the computation a ClientModule drives.
//
// SetUp runs once on the module goroutine before the module reports ready.
// Step runs once per cycle with a context bounded by the cycle period.
// TearDown runs once after the last Step, also when the module is stopping
// because of an error.
//
// Errors returned by Step are classified with pkg/backoff: ignored errors
// are logged, transient errors are tolerated up to a limit, and all other
// errors end the module with SERIOUS_ERROR.
type Worker interface {
	SetUp(ctx context.Context, mc *Context) error
	Step(ctx context.Context, mc *Context) error
	TearDown(ctx context.Context, mc *Context) error
}

// ConnectionLostHandler replaces the default reaction to a lost
// supercomponent connection, which is to stop with CONNECTION_LOST.
type ConnectionLostHandler interface {
	HandleConnectionLost(ctx context.Context, mc *Context, err error)
}

// Context is the module handle passed to a Worker. It is only valid on the
// module goroutine, except for the read-only accessors.
type Context struct {
	module *ClientModule
	config keyvalue.Configuration
	outbox []data.Container
}

func (c *Context) Name() string {
	return c.module.name
}

func (c *Context) Version() string {
	return c.module.version
}

// Identifier distinguishes several instances of the same module.
func (c *Context) Identifier() string {
	return c.module.identifier
}

// KeyValueConfiguration returns the configuration snapshot taken when the
// module started.
func (c *Context) KeyValueConfiguration() keyvalue.Configuration {
	return c.config
}

// DataStore returns the store receiving the module's inputs.
func (c *Context) DataStore() *datastore.KeyValueDataStore {
	return c.module.store
}

// Latest returns the newest input of type t, or an empty container.
func (c *Context) Latest(t data.DataType) data.Container {
	return c.module.store.Get(t)
}

// Publish queues container for sending once the current step returns.
// Containers queued by a step that ends the module are discarded.
func (c *Context) Publish(ctx context.Context, container data.Container) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.outbox = append(c.outbox, container)

	return nil
}

func (c *Context) CycleCounter() uint64 {
	return c.module.CycleCounter()
}

func (c *Context) LastCycle() time.Time {
	return c.module.LastCycle()
}

// LastWaitTime is how long the module slept after the previous step.
func (c *Context) LastWaitTime() time.Duration {
	return c.module.LastWaitTime()
}

// Frequency is the cycle frequency in Hz.
func (c *Context) Frequency() float64 {
	return c.module.frequency
}

// Period is the duration of one cycle.
func (c *Context) Period() time.Duration {
	return c.module.period()
}

func (c *Context) Logger() *zap.SugaredLogger {
	return c.module.logger
}

// RequestStop ends the module after the current step. The exit code is
// left as it is.
func (c *Context) RequestStop() {
	c.module.mu.Lock()
	svc := c.module.svc
	c.module.mu.Unlock()

	if svc != nil {
		svc.RequestStop()
	}
}

func (c *Context) takeOutbox() []data.Container {
	out := c.outbox
	c.outbox = nil

	return out
}
