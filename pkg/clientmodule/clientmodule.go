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

// Package clientmodule runs a Worker at a fixed frequency. A ClientModule
// fetches its configuration, subscribes its inputs, and then drives the
// worker's SetUp, Step and TearDown on a service.Service.
package clientmodule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hesperia-light/hesperia-core/pkg/conference"
	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/datastore"
	"github.com/hesperia-light/hesperia-core/pkg/dmcp"
	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
	"github.com/hesperia-light/hesperia-core/pkg/sentry"
	"github.com/hesperia-light/hesperia-core/pkg/service"
	"github.com/hesperia-light/hesperia-core/pkg/version"
)

// Supercomponent is the coordination service a module registers with.
// *dmcp.Client implements it.
type Supercomponent interface {
	Connect(ctx context.Context, module string) (keyvalue.Configuration, error)
	Run(ctx context.Context) error
	SetStatusFunc(f dmcp.StatusFunc)
	OnConnectionLost(f func(err error))
}

// ClientModule is one named module. It can be run once.
type ClientModule struct {
	name       string
	version    string
	identifier string
	worker     Worker
	logger     *zap.SugaredLogger

	conference          conference.Conference
	supercomponent      Supercomponent
	provider            keyvalue.Provider
	store               *datastore.KeyValueDataStore
	starvationThreshold time.Duration

	// set by RunModule before the worker goroutine starts
	frequency float64
	config    keyvalue.Configuration

	mu        sync.Mutex
	svc       *service.Service
	stopEarly bool
	exitCode  ExitCode

	cycleCounter atomic.Uint64
	lastCycle    atomic.Int64
	lastWait     atomic.Int64
	connLost     chan error
}

// Option configures a ClientModule.
type Option func(*ClientModule)

// WithFrequency fixes the cycle frequency in Hz. Without it the frequency is
// read from <module>.frequency or global.frequency.
func WithFrequency(hz float64) Option {
	return func(m *ClientModule) {
		m.frequency = hz
	}
}

// WithConference sets the channel outputs are published on. Inputs
// received on it are fed into the module's data store.
func WithConference(c conference.Conference) Option {
	return func(m *ClientModule) {
		m.conference = c
	}
}

// WithSupercomponent makes the module fetch its configuration from s and
// send heartbeats to it.
func WithSupercomponent(s Supercomponent) Option {
	return func(m *ClientModule) {
		m.supercomponent = s
	}
}

func WithDataStore(s *datastore.KeyValueDataStore) Option {
	return func(m *ClientModule) {
		m.store = s
	}
}

// WithConfiguration sets the provider used when no supercomponent is set.
func WithConfiguration(p keyvalue.Provider) Option {
	return func(m *ClientModule) {
		m.provider = p
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(m *ClientModule) {
		m.logger = log
	}
}

func WithStarvationThreshold(d time.Duration) Option {
	return func(m *ClientModule) {
		m.starvationThreshold = d
	}
}

// WithIdentifier sets the instance identifier. It defaults to a random UUID.
func WithIdentifier(id string) Option {
	return func(m *ClientModule) {
		m.identifier = id
	}
}

func WithVersion(v string) Option {
	return func(m *ClientModule) {
		m.version = v
	}
}

// New returns a module named name driving worker.
func New(name string, worker Worker, opts ...Option) (*ClientModule, error) {
	if name == "" {
		return nil, errors.New("module name must not be empty")
	}

	if worker == nil {
		return nil, errors.New("worker must not be nil")
	}

	m := &ClientModule{
		name:                name,
		version:             version.GetAppVersion(),
		identifier:          uuid.NewString(),
		worker:              worker,
		starvationThreshold: constants.StarvationThreshold,
		connLost:            make(chan error, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = logger.For(logger.ComponentClientModule).With("module", name)
	}

	if m.store == nil {
		m.store = datastore.New(constants.DefaultQueueCapacity)
	}

	if m.frequency < 0 || math.IsNaN(m.frequency) {
		return nil, fmt.Errorf("invalid frequency %v for module %s", m.frequency, name)
	}

	metrics.InitErrorCounter(metrics.ComponentClientModule, name)

	return m, nil
}

func (m *ClientModule) Name() string {
	return m.name
}

func (m *ClientModule) Version() string {
	return m.version
}

func (m *ClientModule) Identifier() string {
	return m.identifier
}

// ModuleState is RUNNING between the worker's SetUp and the stop of its
// cycle loop.
func (m *ClientModule) ModuleState() ModuleState {
	m.mu.Lock()
	svc := m.svc
	m.mu.Unlock()

	if svc != nil && svc.IsRunning() {
		return StateRunning
	}

	return StateNotRunning
}

// ExitCode is the module's exit code so far. It is final once RunModule
// has returned.
func (m *ClientModule) ExitCode() ExitCode {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.exitCode
}

// setExitCode records code unless an earlier failure was recorded.
func (m *ClientModule) setExitCode(code ExitCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exitCode == ExitOkay {
		m.exitCode = code
	}
}

func (m *ClientModule) CycleCounter() uint64 {
	return m.cycleCounter.Load()
}

// LastCycle is when the last cycle finished, or the zero time.
func (m *ClientModule) LastCycle() time.Time {
	ns := m.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns)
}

func (m *ClientModule) LastWaitTime() time.Duration {
	return time.Duration(m.lastWait.Load())
}

// Frequency is the cycle frequency in Hz. It is zero until RunModule has
// resolved it.
func (m *ClientModule) Frequency() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.frequency
}

func (m *ClientModule) period() time.Duration {
	return time.Duration(float64(time.Second) / m.frequency)
}

// RunModule connects, runs the worker until it stops, and returns the exit
// code. Cancelling ctx stops the module gracefully with OKAY.
func (m *ClientModule) RunModule(ctx context.Context) ExitCode {
	m.mu.Lock()
	if m.svc != nil {
		m.mu.Unlock()
		m.logger.Errorf("RunModule called twice on %s: %v", m.name, service.ErrAlreadyStarted)

		return ExitSeriousError
	}

	svc := service.New(m.name, m, service.WithLogger(m.logger))
	m.svc = svc
	stopEarly := m.stopEarly
	m.mu.Unlock()

	if stopEarly {
		_ = svc.Stop(ctx)

		return m.ExitCode()
	}

	if !m.configure(ctx) {
		_ = svc.Stop(ctx)

		return m.ExitCode()
	}

	if m.conference != nil {
		m.conference.AddListener(m.store)
	}

	heartbeatCtx, stopHeartbeats := context.WithCancel(ctx)

	var heartbeats errgroup.Group
	if m.supercomponent != nil {
		m.supercomponent.SetStatusFunc(func() (uint64, string) {
			return m.CycleCounter(), string(m.ModuleState())
		})
		m.supercomponent.OnConnectionLost(m.HandleConnectionLost)
		heartbeats.Go(func() error { return m.supercomponent.Run(heartbeatCtx) })
	}

	defer func() {
		stopHeartbeats()

		if err := heartbeats.Wait(); err != nil {
			m.logger.Warnf("Heartbeats of %s ended with: %v", m.name, err)
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return m.startFailed(ctx, err)
	}

	select {
	case <-svc.Done():
	case <-ctx.Done():
		m.logger.Infof("Stopping module %s: %v", m.name, ctx.Err())
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ServiceStopTimeout)
	defer cancel()

	if err := svc.Stop(stopCtx); err != nil {
		m.setExitCode(ExitSeriousError)
		sentry.ReportModuleError(m.logger, m.name, "stop", err)

		return m.ExitCode()
	}

	var panicErr *service.PanicError
	if err := svc.Wait(); errors.As(err, &panicErr) {
		m.setExitCode(ExitExceptionCaught)
	}

	code := m.ExitCode()
	m.logger.Infof("Module %s exited with %s after %d cycles", m.name, code, m.CycleCounter())

	return code
}

// configure resolves the configuration snapshot and the frequency. It
// reports false after recording an exit code, or without one when ctx ended.
func (m *ClientModule) configure(ctx context.Context) bool {
	var (
		cfg keyvalue.Configuration
		err error
	)

	switch {
	case m.supercomponent != nil:
		cfg, err = m.supercomponent.Connect(ctx, m.name)
		if err != nil && ctx.Err() != nil {
			m.logger.Infof("Module %s cancelled while connecting: %v", m.name, err)

			return false
		}

		if err != nil {
			m.setExitCode(ExitNoSupercomponent)
			sentry.ReportModuleError(m.logger, m.name, "connect", err)

			return false
		}
	case m.provider != nil:
		cfg, err = m.provider.Configuration(ctx, m.name)
		if err != nil && ctx.Err() != nil {
			m.logger.Infof("Module %s cancelled while loading its configuration: %v", m.name, err)

			return false
		}

		if err != nil {
			m.setExitCode(ExitSeriousError)
			sentry.ReportModuleError(m.logger, m.name, "configuration", err)

			return false
		}
	default:
		cfg = keyvalue.NewConfiguration(nil)
	}

	frequency := m.frequency
	if frequency == 0 {
		frequency = cfg.FloatOr(m.name+".frequency", cfg.FloatOr(keyvalue.GlobalSection+".frequency", constants.DefaultFrequency))
	}

	if frequency <= 0 || math.IsNaN(frequency) {
		m.logger.Warnf("Invalid frequency %v for %s, using %v Hz", frequency, m.name, constants.DefaultFrequency)
		frequency = constants.DefaultFrequency
	}

	if frequency > constants.MaxFrequency {
		m.logger.Warnf("Frequency %v Hz of %s exceeds %v Hz, clamping", frequency, m.name, constants.MaxFrequency)
		frequency = constants.MaxFrequency
	}

	m.mu.Lock()
	m.config = cfg
	m.frequency = frequency
	m.mu.Unlock()

	return true
}

func (m *ClientModule) startFailed(ctx context.Context, err error) ExitCode {
	var panicErr *service.PanicError

	switch {
	case errors.As(err, &panicErr):
		m.setExitCode(ExitExceptionCaught)
	case errors.Is(err, service.ErrStoppedBeforeReady), errors.Is(err, service.ErrAlreadyStopped):
		m.logger.Infof("Module %s stopped during set up", m.name)
	case ctx.Err() != nil:
		m.logger.Infof("Module %s cancelled during set up", m.name)
	default:
		m.setExitCode(ExitSeriousError)
		m.logger.Errorf("Module %s failed to start: %v", m.name, err)
	}

	return m.ExitCode()
}

// Stop requests termination and waits for the worker to tear down, bounded
// by ctx. A module stopped before RunModule returns from RunModule at once.
func (m *ClientModule) Stop(ctx context.Context) error {
	m.mu.Lock()
	svc := m.svc
	if svc == nil {
		m.stopEarly = true
	}
	m.mu.Unlock()

	if svc == nil {
		return nil
	}

	return svc.Stop(ctx)
}

// HandleConnectionLost reports a lost supercomponent connection. The event
// is handled on the module goroutine before the next step.
func (m *ClientModule) HandleConnectionLost(err error) {
	select {
	case m.connLost <- err:
	default:
	}
}

// Run implements service.Runnable.
func (m *ClientModule) Run(ctx context.Context, lc service.Lifecycle) error {
	mc := &Context{module: m, config: m.config}

	if err := m.guarded("set up", func() error { return m.worker.SetUp(ctx, mc) }); err != nil {
		m.setExitCode(ExitSeriousError)

		return fmt.Errorf("set up %s: %w", m.name, err)
	}

	lc.Ready()
	m.logger.Infof("Module %s (%s) running at %.2f Hz", m.name, m.identifier, m.frequency)

	checker := starvationCheckerFor(m)
	defer checker.Stop()

	loopErr := m.cycle(ctx, lc, mc, checker)

	tearDownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ServiceStopTimeout)
	defer cancel()

	if err := m.guarded("tear down", func() error { return m.worker.TearDown(tearDownCtx, mc) }); err != nil {
		m.logger.Errorf("Tear down of %s failed: %v", m.name, err)
	}

	return loopErr
}

// BeforeStop implements service.Runnable.
func (m *ClientModule) BeforeStop(_ context.Context) {
	m.logger.Debugf("Stopping module %s after %d cycles", m.name, m.CycleCounter())
}

// guarded runs f and turns a panic into a *service.PanicError with exit
// code EXCEPTION_CAUGHT.
func (m *ClientModule) guarded(operation string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr := &service.PanicError{Value: r, Stack: debug.Stack()}
			m.setExitCode(ExitExceptionCaught)
			sentry.ReportIssueWithContext(panicErr, sentry.IssueTypeError, m.logger, map[string]interface{}{
				"module":    m.name,
				"operation": operation,
				"stack":     string(panicErr.Stack),
			})
			err = panicErr
		}
	}()

	return f()
}
