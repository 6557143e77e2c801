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

package sentry

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// IssueType is the severity of a reported issue.
type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

const (
	debounceInterval = 2 * time.Hour
	fatalFlush       = 5 * time.Second
)

// debouncer lets one event through per debounceInterval.
type debouncer struct {
	mu   sync.Mutex
	last time.Time
}

func (d *debouncer) allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if debounce.Load() && !d.last.IsZero() && now.Sub(d.last) < debounceInterval {
		return false
	}

	d.last = now

	return true
}

var limiters = map[IssueType]*debouncer{
	IssueTypeWarning: {},
	IssueTypeError:   {},
}

func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	ReportIssueWithContext(err, issueType, log, nil)
}

func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssueWithContext(fmt.Errorf(template, args...), issueType, log, nil)
}

// ReportIssueWithContext logs err and sends it with fields attached. Fatal
// issues flush the hub and then panic through the logger.
func ReportIssueWithContext(err error, issueType IssueType, log *zap.SugaredLogger, fields map[string]interface{}) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeWarning:
		log.Warnw(err.Error(), mapToKV(fields)...)
	case IssueTypeError:
		log.Errorw(err.Error(), mapToKV(fields)...)
	case IssueTypeFatal:
		log.Errorw("fatal: "+err.Error(), "stack", string(debug.Stack()))
		send(buildEvent(sentry.LevelFatal, err, fields))
		sentry.Flush(fatalFlush)
		log.Panicw("terminating after fatal issue", "error", err)
	default:
		return
	}

	if l, ok := limiters[issueType]; ok && l.allow() {
		send(buildEvent(sentry.Level(issueType), err, fields))
	}
}

func mapToKV(fields map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, 2*len(fields))
	for k, v := range fields {
		kv = append(kv, k, v)
	}

	return kv
}

// ReportModuleError reports that operation failed in the named client module.
func ReportModuleError(log *zap.SugaredLogger, module string, operation string, err error) {
	ReportIssueWithContext(err, IssueTypeError, log, map[string]interface{}{
		"module":    module,
		"operation": operation,
	})
}

func ReportModuleErrorf(log *zap.SugaredLogger, module string, operation string, template string, args ...interface{}) {
	ReportModuleError(log, module, operation, fmt.Errorf(template, args...))
}
