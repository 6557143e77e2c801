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
	"errors"
	"time"

	"github.com/hesperia-light/hesperia-core/pkg/backoff"
	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
	"github.com/hesperia-light/hesperia-core/pkg/sentry"
	"github.com/hesperia-light/hesperia-core/pkg/service"
	"github.com/hesperia-light/hesperia-core/pkg/starvationchecker"
)

func starvationCheckerFor(m *ClientModule) *starvationchecker.StarvationChecker {
	interval := m.starvationThreshold / 4
	if interval <= 0 || interval > time.Second {
		interval = time.Second
	}

	return starvationchecker.NewStarvationCheckerWithInterval(m.name, m.starvationThreshold, interval)
}

// cycle runs Step until the service stops, ctx ends, or a step fails for
// good. Each iteration steps, publishes what the step queued, counts the
// cycle and sleeps for the rest of the period.
func (m *ClientModule) cycle(ctx context.Context, lc service.Lifecycle, mc *Context, checker *starvationchecker.StarvationChecker) error {
	period := m.period()
	transient := 0

	for lc.IsRunning() && ctx.Err() == nil {
		select {
		case err := <-m.connLost:
			m.connectionLost(ctx, lc, mc, err)

			if !lc.IsRunning() {
				return nil
			}
		default:
		}

		start := time.Now()

		stepCtx, cancel := context.WithTimeout(ctx, period)
		err := m.guarded("step", func() error { return m.worker.Step(stepCtx, mc) })
		cancel()

		outbox := mc.takeOutbox()

		if err != nil {
			if done, loopErr := m.handleStepError(ctx, err, &transient); done {
				return loopErr
			}
		} else {
			transient = 0
		}

		m.flush(ctx, outbox)

		count := m.cycleCounter.Add(1)
		m.lastCycle.Store(time.Now().UnixNano())
		metrics.SetCycleCount(m.name, count)
		checker.CycleCompleted()

		cycleTime := time.Since(start)
		metrics.ObserveCycleTime(metrics.ComponentClientModule, m.name, cycleTime)

		if cycleTime > period {
			m.logger.Warnf("Cycle %d of %s took %v, longer than the period of %v", count, m.name, cycleTime, period)

			if cycleTime > 2*period {
				m.logger.Errorf("Cycle %d of %s took %v, more than twice the period of %v", count, m.name, cycleTime, period)
			}
		}

		wait := max(period-cycleTime, 0)
		m.lastWait.Store(int64(wait))

		if !sleep(ctx, wait) {
			return nil
		}
	}

	return nil
}

// handleStepError applies the error category of err. It reports whether
// the loop must end and with which error.
func (m *ClientModule) handleStepError(ctx context.Context, err error, transient *int) (bool, error) {
	var panicErr *service.PanicError
	if errors.As(err, &panicErr) {
		return true, err
	}

	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return true, nil
	}

	category := backoff.CategoryOf(err)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		category = backoff.CategoryTransient
	}

	switch category {
	case backoff.CategoryIgnored:
		m.logger.Debugf("Ignoring step error of %s: %v", m.name, err)

		return false, nil
	case backoff.CategoryTransient:
		*transient++
		metrics.IncErrorCount(metrics.ComponentClientModule, m.name)

		if *transient < constants.MaxConsecutiveTransientErrors {
			m.logger.Warnf("Step of %s failed (%d/%d): %v", m.name, *transient, constants.MaxConsecutiveTransientErrors, err)

			return false, nil
		}

		m.setExitCode(ExitSeriousError)
		sentry.ReportModuleErrorf(m.logger, m.name, "step", "step failed %d times in a row: %v", *transient, err)

		return true, err
	default:
		m.setExitCode(ExitSeriousError)
		metrics.IncErrorCount(metrics.ComponentClientModule, m.name)
		sentry.ReportModuleError(m.logger, m.name, "step", err)

		return true, err
	}
}

// flush sends containers queued during a step. Send failures are logged
// and do not affect the module.
func (m *ClientModule) flush(ctx context.Context, outbox []data.Container) {
	if len(outbox) == 0 {
		return
	}

	if m.conference == nil {
		m.logger.Debugf("No conference set, dropping %d containers", len(outbox))

		return
	}

	for _, c := range outbox {
		if err := m.conference.Send(ctx, c); err != nil {
			metrics.IncErrorCount(metrics.ComponentClientModule, m.name)
			m.logger.Warnf("Failed to publish %s: %v", c.Type, err)
		}
	}
}

// connectionLost runs the worker's handler, or by default stops the module
// with CONNECTION_LOST.
func (m *ClientModule) connectionLost(ctx context.Context, lc service.Lifecycle, mc *Context, err error) {
	if handler, ok := m.worker.(ConnectionLostHandler); ok {
		m.logger.Warnf("Connection to supercomponent lost, delegating to worker: %v", err)
		handler.HandleConnectionLost(ctx, mc, err)

		return
	}

	m.logger.Errorf("Connection to supercomponent lost, stopping %s: %v", m.name, err)
	m.setExitCode(ExitConnectionLost)
	lc.RequestStop()
}

// sleep waits for d or until ctx ends. It reports false if ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
