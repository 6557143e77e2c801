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
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/metrics"
	"github.com/hesperia-light/hesperia-core/pkg/sentry"
	"go.uber.org/zap"
)

// ErrConnectTimeout is returned when the broker does not answer in time.
var ErrConnectTimeout = errors.New("timed out connecting to MQTT broker")

// MQTTOptions configures an MQTT conference.
type MQTTOptions struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker   string
	SenderID string
	// Group separates independent simulations on one broker.
	Group    string
	Username string
	Password string
	// OnConnectionLost is called each time the broker connection drops.
	// Paho reconnects on its own afterwards.
	OnConnectionLost ConnectionLostFunc
	ConnectTimeout   time.Duration
}

// MQTT is a conference over an MQTT broker. Containers are published with
// QoS 0 on <root>/<group>/<datatype> and every member subscribes to
// <root>/<group>/#. A member drops its own messages.
type MQTT struct {
	client    mqtt.Client
	senderID  string
	prefix    string
	logger    *zap.SugaredLogger
	listeners listeners
	onLost    ConnectionLostFunc
	closed    atomic.Bool
}

// NewMQTT connects to the broker and subscribes to the group.
func NewMQTT(ctx context.Context, o MQTTOptions) (*MQTT, error) {
	if o.SenderID == "" {
		o.SenderID = uuid.NewString()
	}

	if o.Group == "" {
		o.Group = constants.DefaultMQTTGroup
	}

	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = constants.MQTTConnectTimeout
	}

	m := &MQTT{
		senderID: o.SenderID,
		prefix:   constants.DefaultMQTTTopicRoot + "/" + o.Group + "/",
		logger:   logger.For(logger.ComponentConference).With("sender", o.SenderID),
		onLost:   o.OnConnectionLost,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID("hesperia-" + o.SenderID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onConnectionLost)

	m.client = mqtt.NewClient(opts)

	token := m.client.Connect()

	waitCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-waitCtx.Done():
		m.client.Disconnect(0)

		return nil, fmt.Errorf("%w %s: %w", ErrConnectTimeout, o.Broker, waitCtx.Err())
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", o.Broker, err)
	}

	return m, nil
}

// Topic returns the topic containers of type t are published on.
func (m *MQTT) Topic(t data.DataType) string {
	return m.prefix + t.String()
}

func (m *MQTT) onConnect(client mqtt.Client) {
	m.logger.Infof("Connected to MQTT broker, subscribing to %s#", m.prefix)

	token := client.Subscribe(m.prefix+"#", 0, m.handleMessage)
	go func() {
		<-token.Done()

		if err := token.Error(); err != nil {
			metrics.IncErrorCountAndLog(metrics.ComponentConference, m.senderID, err, m.logger)
			m.logger.Errorf("Failed to subscribe to %s#: %v", m.prefix, err)
		}
	}()
}

func (m *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	sentry.ReportIssue(fmt.Errorf("connection to MQTT broker lost: %w", err), sentry.IssueTypeWarning, m.logger)
	metrics.IncErrorCount(metrics.ComponentConference, m.senderID)

	if m.onLost != nil && !m.closed.Load() {
		m.onLost(err)
	}
}

func (m *MQTT) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	if !strings.HasPrefix(msg.Topic(), m.prefix) {
		return
	}

	c, err := data.Decode(msg.Payload())
	if err != nil {
		metrics.IncErrorCount(metrics.ComponentConference, m.senderID)
		m.logger.Debugf("Dropping undecodable message on %s: %v", msg.Topic(), err)

		return
	}

	if c.SenderID == m.senderID {
		return
	}

	c.Received = data.Now()
	metrics.IncContainersReceived(m.senderID, c.Type.String())
	m.listeners.deliver(c)
}

// Send publishes c without waiting for the broker's acknowledgement.
func (m *MQTT) Send(ctx context.Context, c data.Container) error {
	if m.closed.Load() {
		return fmt.Errorf("send %s: %w", c.Type, ErrClosed)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	c.SenderID = m.senderID
	c.Sent = data.Now()
	c.Received = data.TimeStamp{}

	frame, err := data.Encode(c)
	if err != nil {
		return err
	}

	m.client.Publish(m.Topic(c.Type), 0, false, frame)
	metrics.IncContainersSent(m.senderID, c.Type.String())

	return nil
}

func (m *MQTT) AddListener(listener Listener) {
	m.listeners.add(listener)
}

// Close disconnects from the broker. The connection-lost callback is not
// invoked for this disconnect.
func (m *MQTT) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	m.client.Disconnect(constants.MQTTDisconnectQuiesceMs)

	return nil
}
