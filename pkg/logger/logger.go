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

// Package logger owns the process-wide zap logger. Components obtain named
// children through For.
package logger

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hesperia-light/hesperia-core/pkg/env"
)

type LogFormat string

const (
	FormatConsole LogFormat = "CONSOLE"
	FormatJSON    LogFormat = "JSON"
)

// Options selects level and encoding. Zero values mean Info and console.
type Options struct {
	Level  string
	Format LogFormat
}

// OptionsFromEnv reads LOGGING_LEVEL and LOGGING_FORMAT.
func OptionsFromEnv() Options {
	level, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION")
	format, _ := env.GetAsString("LOGGING_FORMAT", false, string(FormatConsole))

	o := Options{Level: level, Format: FormatConsole}
	if LogFormat(strings.ToUpper(format)) == FormatJSON {
		o.Format = FormatJSON
	}

	return o
}

var (
	setup sync.Once
	ready atomic.Bool
)

// ParseLevel maps names like "debug" or "WARN" to a level. Anything it does
// not know, PRODUCTION included, is Info.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level

	switch up := strings.ToUpper(strings.TrimSpace(level)); up {
	case "WARNING":
		return zapcore.WarnLevel
	case "", "PRODUCTION":
		return zapcore.InfoLevel
	default:
		if err := l.UnmarshalText([]byte(up)); err != nil {
			return zapcore.InfoLevel
		}
	}

	return l
}

func consoleTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05.000"))
}

func encoderFor(format LogFormat) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.NameKey = "component"
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	if format == FormatJSON {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder

		return zapcore.NewJSONEncoder(cfg)
	}

	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = consoleTime
	cfg.ConsoleSeparator = " | "

	return zapcore.NewConsoleEncoder(cfg)
}

// New builds a logger writing to stdout.
func New(o Options) *zap.Logger {
	core := zapcore.NewCore(encoderFor(o.Format), zapcore.Lock(os.Stdout), ParseLevel(o.Level))

	return zap.New(core, zap.AddCaller())
}

// Initialize installs the global logger from the environment. Only the first
// call has an effect.
func Initialize() {
	setup.Do(func() {
		o := OptionsFromEnv()
		zap.ReplaceGlobals(New(o))
		ready.Store(true)

		zap.S().Named(ComponentCore).Infow("logger ready", "level", ParseLevel(o.Level).String(), "format", o.Format)
	})
}

func Sync() error {
	return zap.L().Sync()
}

// For returns a sugared logger named after component, initializing the
// global logger on first use.
func For(component string) *zap.SugaredLogger {
	if !ready.Load() {
		Initialize()
	}

	return zap.S().Named(component)
}
