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

// Package dmcp is the client side of the supercomponent protocol. A module
// fetches its configuration from the supercomponent once on startup and then
// reports liveness with periodic heartbeats.
package dmcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"

	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
)

// ErrNoSupercomponent is returned by Connect when the supercomponent did not
// answer before the retry budget ran out.
var ErrNoSupercomponent = errors.New("no supercomponent reachable")

// StatusFunc reports the module's cycle counter and state for heartbeats.
type StatusFunc func() (cycle uint64, state string)

// Options configures a Client. Zero values select the defaults from
// pkg/constants.
type Options struct {
	// BaseURL of the supercomponent, e.g. http://localhost:8081.
	BaseURL string
	// Instance identifies this process. A random UUID is used when empty.
	Instance          string
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxMissed         int
	// ConnectMaxElapsed bounds the total time Connect keeps retrying.
	ConnectMaxElapsed time.Duration
	// ConnectInitialInterval is the first retry delay.
	ConnectInitialInterval time.Duration
	HTTPClient             *http.Client
}

// Client talks to one supercomponent on behalf of one module.
type Client struct {
	opts      Options
	http      *http.Client
	logger    *zap.SugaredLogger
	latencies *expiremap.ExpireMap[time.Time, time.Duration]

	mu        sync.Mutex
	module    string
	config    *keyvalue.Configuration
	status    StatusFunc
	onLost    func(err error)
	missed    int
	lostFired bool
}

func NewClient(o Options) *Client {
	if o.Instance == "" {
		o.Instance = uuid.NewString()
	}

	if o.RequestTimeout <= 0 {
		o.RequestTimeout = constants.DefaultSupercomponentTimeout
	}

	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}

	if o.MaxMissed <= 0 {
		o.MaxMissed = constants.MaxMissedHeartbeats
	}

	if o.ConnectMaxElapsed <= 0 {
		o.ConnectMaxElapsed = constants.ConnectMaxElapsedTime
	}

	o.BaseURL = strings.TrimRight(o.BaseURL, "/")

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.RequestTimeout}
	}

	return &Client{
		opts:      o,
		http:      client,
		logger:    logger.For(logger.ComponentSupercomponent).With("supercomponent", o.BaseURL),
		latencies: expiremap.NewEx[time.Time, time.Duration](constants.LatencyWindow, constants.LatencyWindow),
	}
}

// Instance returns the identifier this client reports in heartbeats.
func (c *Client) Instance() string {
	return c.opts.Instance
}

// SetStatusFunc registers the source of the cycle counter and state sent
// with each heartbeat.
func (c *Client) SetStatusFunc(f StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = f
}

// OnConnectionLost registers f to be called once the supercomponent has
// missed MaxMissed heartbeats in a row. It is called again only after a
// heartbeat succeeded in between.
func (c *Client) OnConnectionLost(f func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onLost = f
}

// Connect fetches the configuration of module, retrying with exponential
// backoff. It returns an error wrapping ErrNoSupercomponent when the retry
// budget or ctx runs out.
func (c *Client) Connect(ctx context.Context, module string) (keyvalue.Configuration, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.opts.ConnectMaxElapsed

	if c.opts.ConnectInitialInterval > 0 {
		policy.InitialInterval = c.opts.ConnectInitialInterval
	}

	var cfg keyvalue.Configuration

	attempt := 0
	operation := func() error {
		attempt++

		fetched, err := c.fetchConfiguration(ctx, module)
		if err != nil {
			return err
		}

		cfg = fetched

		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warnf("Supercomponent not ready (attempt %d): %v, retrying in %s", attempt, err, next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		metrics.IncErrorCount(metrics.ComponentSupercomponent, module)

		return keyvalue.Configuration{}, fmt.Errorf("%w after %d attempts: %w", ErrNoSupercomponent, attempt, err)
	}

	c.mu.Lock()
	c.module = module
	c.config = &cfg
	c.mu.Unlock()

	c.logger.Infof("Connected as %s/%s, received %d configuration keys", module, c.opts.Instance, cfg.Len())

	return cfg, nil
}

// Configuration implements keyvalue.Provider. The snapshot fetched by
// Connect is returned for the connected module. Other modules are fetched
// without caching.
func (c *Client) Configuration(ctx context.Context, module string) (keyvalue.Configuration, error) {
	c.mu.Lock()
	cached := c.config
	connected := c.module
	c.mu.Unlock()

	if cached != nil && connected == module {
		return *cached, nil
	}

	return c.Connect(ctx, module)
}

func (c *Client) fetchConfiguration(ctx context.Context, module string) (keyvalue.Configuration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	raw, err := getJSON[map[string]interface{}](reqCtx, c.http, c.opts.BaseURL, configurationEndpoint(module), c.logger)
	if err != nil {
		if ctx.Err() != nil {
			return keyvalue.Configuration{}, backoff.Permanent(err)
		}

		return keyvalue.Configuration{}, err
	}

	values := make(map[string]string)
	if raw != nil {
		for k, v := range *raw {
			if s, ok := v.(string); ok {
				values[k] = s
			} else {
				values[k] = fmt.Sprint(v)
			}
		}
	}

	return keyvalue.NewConfiguration(values), nil
}

// Run sends heartbeats until ctx is cancelled. Connect must have succeeded.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	module := c.module
	c.mu.Unlock()

	if module == "" {
		return errors.New("heartbeat requested before Connect")
	}

	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Heartbeat(ctx)
		}
	}
}

// Heartbeat sends one heartbeat and updates the missed-heartbeat tally.
func (c *Client) Heartbeat(ctx context.Context) {
	c.mu.Lock()
	module := c.module
	status := c.status
	c.mu.Unlock()

	hb := data.Heartbeat{
		Module:   module,
		Instance: c.opts.Instance,
		Sent:     data.Now(),
	}
	if status != nil {
		hb.Cycle, hb.State = status()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	_, err := postJSON[struct{}](reqCtx, c.http, c.opts.BaseURL, heartbeatEndpoint(module), &hb, c.logger)
	roundTrip := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return
		}

		c.recordMiss(module, err)

		return
	}

	c.latencies.Set(start, roundTrip)

	c.mu.Lock()
	if c.missed > 0 {
		c.logger.Infof("Supercomponent answered again after %d missed heartbeats", c.missed)
	}

	c.missed = 0
	c.lostFired = false
	c.mu.Unlock()
}

func (c *Client) recordMiss(module string, err error) {
	metrics.IncErrorCount(metrics.ComponentSupercomponent, module)

	c.mu.Lock()
	c.missed++
	missed := c.missed

	var fire func(error)
	if missed >= c.opts.MaxMissed && !c.lostFired {
		c.lostFired = true
		fire = c.onLost
	}
	c.mu.Unlock()

	c.logger.Warnf("Heartbeat %d/%d missed: %v", missed, c.opts.MaxMissed, err)

	if fire != nil {
		c.logger.Errorf("Lost connection to supercomponent after %d missed heartbeats", missed)
		fire(fmt.Errorf("missed %d heartbeats: %w", missed, err))
	}
}

// MissedHeartbeats returns the number of consecutive failed heartbeats.
func (c *Client) MissedHeartbeats() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.missed
}

// AverageLatency returns the mean heartbeat round trip within the latency
// window, or zero without samples.
func (c *Client) AverageLatency() time.Duration {
	return calculateLatency(c.latencies).Avg
}

// Latency returns the full heartbeat latency summary.
func (c *Client) Latency() Latency {
	return calculateLatency(c.latencies)
}
