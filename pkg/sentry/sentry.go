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

// Package sentry logs issues and forwards them to Sentry. Error and warning
// events are rate limited per level; fatal issues always go out and panic.
package sentry

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/hesperia-light/hesperia-core/pkg/constants"
)

const maxTitleLength = 100

var debounce atomic.Bool

func init() {
	debounce.Store(true)
}

// EnableTestMode turns off rate limiting so every report reaches the hub.
func EnableTestMode() { debounce.Store(false) }

func DisableTestMode() { debounce.Store(true) }

// InitSentry configures the global hub. Without a dsn, or for the default
// development version, nothing is sent and issues are only logged.
func InitSentry(dsn, appVersion string, debounceErrors bool) {
	debounce.Store(debounceErrors)

	if dsn == "" || appVersion == "" || appVersion == constants.DefaultAppVersion {
		zap.S().Named("Sentry").Debug("reporting disabled")

		return
	}

	opts := sentry.ClientOptions{
		Dsn:         dsn,
		Release:     "hesperia@" + appVersion,
		Environment: Environment(appVersion),
	}
	if err := sentry.Init(opts); err != nil {
		zap.S().Named("Sentry").Errorw("init failed", "error", err)
	}
}

// Environment is production for release versions and development for
// prereleases or strings that are not semantic versions.
func Environment(appVersion string) string {
	v, err := semver.NewVersion(appVersion)
	if err == nil && v.Prerelease() == "" {
		return constants.DefaultProductionEnvironment
	}

	return constants.DefaultDevelopmentEnvironment
}

// title groups events by the first clause of the error message.
func title(err error) string {
	msg, _, _ := strings.Cut(err.Error(), ":")
	if i := strings.IndexAny(msg, ".,"); i > 0 {
		msg = msg[:i]
	}

	if len(msg) > maxTitleLength {
		return msg[:maxTitleLength-3] + "..."
	}

	return msg
}

// buildEvent turns err into an event. String fields become tags, everything
// else goes to extra. module and operation also refine the fingerprint.
func buildEvent(level sentry.Level, err error, fields map[string]interface{}) *sentry.Event {
	ev := sentry.NewEvent()
	ev.Level = level
	ev.Message = err.Error()
	ev.Fingerprint = []string{"{{ default }}", "level: " + string(level)}
	ev.Tags = make(map[string]string, len(fields))
	ev.Extra = make(map[string]interface{}, len(fields))
	ev.Exception = []sentry.Exception{{
		Type:       title(err),
		Value:      err.Error(),
		Stacktrace: sentry.ExtractStacktrace(err),
	}}

	for k, v := range fields {
		if s, ok := v.(string); ok {
			ev.Tags[k] = s
		} else {
			ev.Extra[k] = v
		}

		if k == "module" || k == "operation" {
			ev.Fingerprint = append(ev.Fingerprint, fmt.Sprintf("%s: %v", k, v))
		}
	}

	if level == sentry.LevelError || level == sentry.LevelFatal {
		attachGoroutines(ev)
	}

	return ev
}

func send(ev *sentry.Event) {
	sentry.CurrentHub().Clone().CaptureEvent(ev)
}
