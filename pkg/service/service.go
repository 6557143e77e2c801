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
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/ctxutil"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
	"github.com/hesperia-light/hesperia-core/pkg/sentry"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Service.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateStopped     State = "stopped"
)

const (
	eventReady = "ready"
	eventStop  = "stop"
)

// Lifecycle is the view of its Service that a Runnable gets.
type Lifecycle interface {
	// Ready marks the service as running and releases Start.
	Ready()
	// IsRunning is true between Ready and the first stop request.
	IsRunning() bool
	// RequestStop asks the service to stop without waiting for it. It is
	// the only way for Run to stop its own service.
	RequestStop()
}

// Runnable is the worker driven by a Service.
type Runnable interface {
	// Run is the body of the background goroutine. It must call
	// lc.Ready once initialized and return when ctx is done or
	// lc.IsRunning turns false.
	Run(ctx context.Context, lc Lifecycle) error
	// BeforeStop runs synchronously at the start of the first Stop call,
	// while Run may still be executing.
	BeforeStop(ctx context.Context)
}

// Service runs one Runnable on one background goroutine and moves through
// initialized -> running -> stopped. Stopped is final.
//
// A Service must not be copied.
type Service struct {
	name     string
	runnable Runnable
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	cond    *sync.Cond
	machine *fsm.FSM

	started     bool
	ready       bool
	exited      bool
	stopCalled  bool
	stopDone    chan struct{}
	stopWanted  bool
	cancel      context.CancelFunc
	done        chan struct{}
	runErr      error
	stopTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger replaces the component logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) {
		s.logger = log
	}
}

// WithStopTimeout bounds the join in Stop when the caller's context has no
// deadline.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.stopTimeout = d
	}
}

// New returns a Service in state initialized.
func New(name string, runnable Runnable, opts ...Option) *Service {
	s := &Service{
		name:        name,
		runnable:    runnable,
		logger:      logger.For(logger.ComponentService).With("service", name),
		stopTimeout: constants.ServiceStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cond = sync.NewCond(&s.mu)
	s.machine = fsm.NewFSM(
		string(StateInitialized),
		fsm.Events{
			{Name: eventReady, Src: []string{string(StateInitialized)}, Dst: string(StateRunning)},
			{Name: eventStop, Src: []string{string(StateInitialized), string(StateRunning)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Debugf("service %s: %s -> %s", s.name, e.Src, e.Dst)
				metrics.UpdateServiceState(metrics.ComponentService, s.name, e.Dst)
			},
		},
	)

	metrics.UpdateServiceState(metrics.ComponentService, name, string(StateInitialized))

	return s
}

func (s *Service) Name() string {
	return s.name
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.machine.Current())
}

// IsRunning reports whether the service is in state running. It does not
// take the service lock.
func (s *Service) IsRunning() bool {
	return s.machine.Is(string(StateRunning))
}

// transition fires event if the current state allows it. Callers hold s.mu.
func (s *Service) transition(event string) {
	if !s.machine.Can(event) {
		return
	}

	if err := s.machine.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			s.logger.Warnf("service %s: transition %s failed: %v", s.name, event, err)
		}
	}
}

// Start launches Run and blocks until Run calls Ready, Run exits, Stop is
// called or ctx ends, whichever happens first.
//
// The background goroutine does not inherit ctx's cancellation, only its
// values. It ends with Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.State() == StateStopped {
		s.mu.Unlock()

		return fmt.Errorf("start %s: %w", s.name, ErrAlreadyStopped)
	}

	if s.started {
		s.mu.Unlock()

		return fmt.Errorf("start %s: %w", s.name, ErrAlreadyStarted)
	}

	s.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)

	stopWatching := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stopWatching()

	for !s.ready && !s.exited && !s.stopWanted && ctx.Err() == nil {
		s.cond.Wait()
	}

	switch {
	case s.ready:
		s.mu.Unlock()

		return nil
	case s.stopWanted:
		s.mu.Unlock()

		return fmt.Errorf("start %s: %w", s.name, ErrStoppedBeforeReady)
	case s.exited:
		err := &StartupError{Service: s.name, Err: s.runErr}
		s.mu.Unlock()

		return err
	default:
		s.mu.Unlock()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), s.stopTimeout)
		defer stopCancel()

		if err := s.Stop(stopCtx); err != nil {
			s.logger.Warnf("service %s: stop after aborted start failed: %v", s.name, err)
		}

		return fmt.Errorf("start %s: %w", s.name, ctx.Err())
	}
}

func (s *Service) run(ctx context.Context) {
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			sentry.ReportIssueWithContext(err, sentry.IssueTypeError, s.logger, map[string]interface{}{
				"module":    s.name,
				"operation": "run",
				"stack":     string(err.(*PanicError).Stack), //nolint:forcetypeassert // set just above
			})
		} else if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorf("service %s: run returned: %v", s.name, err)
		}

		s.mu.Lock()
		s.exited = true
		s.runErr = err
		s.transition(eventStop)
		s.cond.Broadcast()
		s.mu.Unlock()

		close(s.done)
	}()

	err = s.runnable.Run(ctx, s)
}

// Ready marks the service as running. Calls after the first, or after a stop
// request, do not change the state.
func (s *Service) Ready() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return
	}

	s.ready = true
	s.transition(eventReady)
	s.cond.Broadcast()
}

// RequestStop moves the service to stopped and cancels Run's context without
// running BeforeStop or waiting for Run to return.
func (s *Service) RequestStop() {
	s.mu.Lock()
	s.stopWanted = true
	s.transition(eventStop)
	cancel := s.cancel
	s.cond.Broadcast()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop runs BeforeStop, moves the service to stopped, cancels Run and waits
// for it to return. Only the first call does any of this. Later calls wait
// until the first one has finished and then return nil. A service that was
// never started just becomes stopped.
//
// Every wait is bounded by ctx, or by the stop timeout if ctx has no deadline.
// Stop must not be called from within Run, use RequestStop there.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()

	if s.stopCalled {
		first := s.stopDone
		s.mu.Unlock()

		return s.awaitFirstStop(ctx, first)
	}

	s.stopCalled = true
	s.stopWanted = true
	s.stopDone = make(chan struct{})
	started := s.started
	s.cond.Broadcast()
	s.mu.Unlock()

	defer close(s.stopDone)

	if started {
		s.runnable.BeforeStop(ctx)
	}

	s.mu.Lock()
	s.transition(eventStop)
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if !started {
		return nil
	}

	cancel()

	joinCtx, joinCancel := ctxutil.EnsureDeadline(ctx, s.stopTimeout)
	defer joinCancel()

	select {
	case <-done:
		return nil
	case <-joinCtx.Done():
		return fmt.Errorf("stop %s: run did not return: %w", s.name, joinCtx.Err())
	}
}

func (s *Service) awaitFirstStop(ctx context.Context, first <-chan struct{}) error {
	waitCtx, cancel := ctxutil.EnsureDeadline(ctx, s.stopTimeout)
	defer cancel()

	select {
	case <-first:
		return nil
	case <-waitCtx.Done():
		return fmt.Errorf("stop %s: concurrent stop did not finish: %w", s.name, waitCtx.Err())
	}
}

// Wait blocks until Run has returned and returns its error. A recovered panic
// is returned as *PanicError.
func (s *Service) Wait() error {
	s.mu.Lock()
	started, done := s.started, s.done
	s.mu.Unlock()

	if !started {
		return ErrNotStarted
	}

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runErr
}

// Done is closed once Run has returned. It is nil before Start.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done
}
