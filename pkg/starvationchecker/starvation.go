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

// Package starvationchecker watches a cycle loop from the outside and keeps
// reporting while the loop fails to complete cycles.
package starvationchecker

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
	"github.com/hesperia-light/hesperia-core/pkg/sentry"
)

type StarvationChecker struct {
	log       *zap.SugaredLogger
	module    string
	threshold time.Duration
	interval  time.Duration

	lastCycle atomic.Int64 // unix nanos
	starved   atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewStarvationChecker checks once per second. Call Stop when done.
func NewStarvationChecker(module string, threshold time.Duration) *StarvationChecker {
	return NewStarvationCheckerWithInterval(module, threshold, time.Second)
}

func NewStarvationCheckerWithInterval(module string, threshold, interval time.Duration) *StarvationChecker {
	c := &StarvationChecker{
		log:       logger.For(logger.ComponentStarvationChecker).With("module", module),
		module:    module,
		threshold: threshold,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.lastCycle.Store(time.Now().UnixNano())

	go c.watch()

	return c
}

func (c *StarvationChecker) watch() {
	defer close(c.done)

	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			idle := time.Since(c.LastCycleTime())
			if idle <= c.threshold {
				c.starved.Store(false)

				continue
			}

			c.starved.Store(true)
			metrics.AddStarvationTime(c.interval.Seconds())
			sentry.ReportIssuef(sentry.IssueTypeWarning, c.log,
				"module %s starved: no cycle for %s (threshold %s)", c.module, idle.Round(time.Millisecond), c.threshold)
		}
	}
}

// Stop ends the watcher and waits for it. Further calls return at once.
func (c *StarvationChecker) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *StarvationChecker) CycleCompleted() {
	c.lastCycle.Store(time.Now().UnixNano())
	c.starved.Store(false)
}

func (c *StarvationChecker) LastCycleTime() time.Time {
	return time.Unix(0, c.lastCycle.Load())
}

// IsStarved is the verdict of the most recent check.
func (c *StarvationChecker) IsStarved() bool {
	return c.starved.Load()
}
