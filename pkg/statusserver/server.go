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

// Package statusserver exposes a running module over HTTP: Prometheus
// metrics, liveness and readiness probes, and a JSON status document.
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/hesperia-light/hesperia-core/pkg/clientmodule"
	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/dmcp"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
)

const maxGoroutines = 10000

// Module is the part of a ClientModule the server reports on.
type Module interface {
	Name() string
	Version() string
	Identifier() string
	ModuleState() clientmodule.ModuleState
	ExitCode() clientmodule.ExitCode
	CycleCounter() uint64
	LastCycle() time.Time
	LastWaitTime() time.Duration
	Frequency() float64
}

// Status is the document served on /status.
type Status struct {
	Name           string        `json:"name"`
	Version        string        `json:"version"`
	Identifier     string        `json:"identifier"`
	State          string        `json:"state"`
	ExitCode       string        `json:"exitCode"`
	Frequency      float64       `json:"frequency"`
	Cycle          uint64        `json:"cycle"`
	LastCycle      *time.Time    `json:"lastCycle,omitempty"`
	LastWaitMs     float64       `json:"lastWaitMs"`
	Uptime         string        `json:"uptime"`
	Goroutines     int           `json:"goroutines"`
	RSSBytes       uint64        `json:"rssBytes"`
	CPUPercent     float64       `json:"cpuPercent"`
	Supercomponent *dmcp.Latency `json:"supercomponentLatency,omitempty"`
}

// Server serves the status endpoints of one module.
type Server struct {
	addr    string
	module  Module
	latency func() dmcp.Latency
	proc    *process.Process
	started time.Time
	logger  *zap.SugaredLogger
	router  *gin.Engine
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLatency adds the supercomponent heartbeat latency to /status.
func WithLatency(f func() dmcp.Latency) Option {
	return func(s *Server) {
		s.latency = f
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.logger = log
	}
}

// New builds the router. addr defaults to constants.DefaultStatusAddr.
func New(addr string, module Module, opts ...Option) *Server {
	if addr == "" {
		addr = constants.DefaultStatusAddr
	}

	s := &Server{
		addr:    addr,
		module:  module,
		started: time.Now(),
		logger:  logger.For(logger.ComponentStatusServer),
	}
	for _, opt := range opts {
		opt(s)
	}

	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		s.logger.Warnf("Process statistics unavailable: %v", err)
	} else {
		s.proc = proc
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("module-running", s.moduleRunning)

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/live", gin.WrapF(health.LiveEndpoint))
	router.GET("/ready", gin.WrapF(health.ReadyEndpoint))
	router.GET("/status", s.handleStatus)

	s.router = router

	return s
}

// Handler returns the router, for tests and for mounting elsewhere.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) moduleRunning() error {
	if state := s.module.ModuleState(); state != clientmodule.StateRunning {
		return fmt.Errorf("module %s is %s", s.module.Name(), state)
	}

	return nil
}

// Snapshot collects the current status.
func (s *Server) Snapshot() Status {
	st := Status{
		Name:       s.module.Name(),
		Version:    s.module.Version(),
		Identifier: s.module.Identifier(),
		State:      string(s.module.ModuleState()),
		ExitCode:   s.module.ExitCode().String(),
		Frequency:  s.module.Frequency(),
		Cycle:      s.module.CycleCounter(),
		LastWaitMs: float64(s.module.LastWaitTime().Microseconds()) / 1000,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	if last := s.module.LastCycle(); !last.IsZero() {
		st.LastCycle = &last
	}

	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			st.RSSBytes = mem.RSS
		}

		if cpu, err := s.proc.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
	}

	if s.latency != nil {
		latency := s.latency()
		st.Supercomponent = &latency
	}

	return st
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Snapshot())
}

// Run serves until ctx is cancelled, then shuts down within the service
// stop timeout.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Infof("Status server listening on %s", s.addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		metrics.IncErrorCountAndLog(metrics.ComponentStatusServer, s.addr, err, s.logger)

		return fmt.Errorf("status server on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ServiceStopTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down status server: %w", err)
	}

	return nil
}
