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
	"bytes"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/DataDog/gostackparse"
	"github.com/getsentry/sentry-go"
)

// attachGoroutines adds every goroutine as a thread and the raw dump as an
// attachment.
func attachGoroutines(ev *sentry.Event) {
	dump := dumpGoroutines()

	ev.Attachments = append(ev.Attachments, &sentry.Attachment{
		Filename:    "goroutines.txt",
		ContentType: "text/plain",
		Payload:     dump,
	})

	parsed, _ := gostackparse.Parse(bytes.NewReader(dump))
	for _, g := range parsed {
		ev.Threads = append(ev.Threads, sentry.Thread{
			ID:         strconv.Itoa(g.ID),
			Name:       "goroutine " + strconv.Itoa(g.ID) + " [" + g.State + "]",
			Stacktrace: &sentry.Stacktrace{Frames: toFrames(g.Stack)},
		})
	}
}

func dumpGoroutines() []byte {
	for size := 1 << 14; ; size <<= 1 {
		buf := make([]byte, size)
		if n := runtime.Stack(buf, true); n < size {
			return buf[:n]
		}
	}
}

// toFrames reverses the parsed stack, Sentry wants the caller first.
func toFrames(stack []*gostackparse.Frame) []sentry.Frame {
	out := make([]sentry.Frame, len(stack))
	for i, f := range stack {
		out[len(stack)-1-i] = sentry.Frame{
			Function: f.Func,
			Filename: filepath.Base(f.File),
			AbsPath:  f.File,
			Lineno:   f.Line,
		}
	}

	return out
}
