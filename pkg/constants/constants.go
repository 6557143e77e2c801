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

package constants

import "time"

const (
	// DefaultAppVersion is the version reported by builds without ldflags.
	DefaultAppVersion = "0.0.0-dev"

	DefaultDevelopmentEnvironment = "development"
	DefaultProductionEnvironment  = "production"
)

const (
	// DefaultFrequency is the cycle frequency in Hz when neither the caller
	// nor the configuration sets one.
	DefaultFrequency = 10.0

	// MaxFrequency caps configured frequencies. Anything faster is clamped.
	MaxFrequency = 1000.0

	// StarvationThreshold is how long a module may go without finishing a
	// cycle before the starvation checker warns.
	StarvationThreshold = 15 * time.Second

	// MaxConsecutiveTransientErrors ends a module once its step has failed
	// transiently this many times in a row.
	MaxConsecutiveTransientErrors = 10

	// DefaultQueueCapacity is the history length kept per data type in the
	// input store.
	DefaultQueueCapacity = 10
)

const (
	// ServiceStopTimeout bounds the join in Service.Stop when callers pass a
	// context without deadline.
	ServiceStopTimeout = 10 * time.Second
)

const (
	DefaultSupercomponentTimeout = 5 * time.Second
	DefaultHeartbeatInterval     = 1 * time.Second
	MaxMissedHeartbeats          = 3
	ConnectMaxElapsedTime        = 30 * time.Second
	// LatencyWindow is how long heartbeat round-trip samples are kept.
	LatencyWindow = 1 * time.Minute
)

const (
	DefaultMQTTTopicRoot    = "hesperia"
	DefaultMQTTGroup        = "0"
	MQTTConnectTimeout      = 10 * time.Second
	MQTTDisconnectQuiesceMs = 250
)

const (
	DefaultConfigPath = "configuration.yaml"
	DefaultStatusAddr = ":8080"
	// EnvOverridePrefix is prepended to configuration keys to look up
	// environment overrides, with dots replaced by underscores.
	EnvOverridePrefix = "HESPERIA_"
)
