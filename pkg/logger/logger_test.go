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

package logger_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"

	"github.com/hesperia-light/hesperia-core/pkg/logger"
)

var _ = Describe("ParseLevel", func() {
	DescribeTable("maps names to levels",
		func(name string, want zapcore.Level) {
			Expect(logger.ParseLevel(name)).To(Equal(want))
		},
		Entry("debug", "debug", zapcore.DebugLevel),
		Entry("upper warn", "WARN", zapcore.WarnLevel),
		Entry("warning alias", "warning", zapcore.WarnLevel),
		Entry("error", "Error", zapcore.ErrorLevel),
		Entry("production", "PRODUCTION", zapcore.InfoLevel),
		Entry("empty", "", zapcore.InfoLevel),
		Entry("garbage", "loud", zapcore.InfoLevel),
	)
})

var _ = Describe("OptionsFromEnv", func() {
	AfterEach(func() {
		Expect(os.Unsetenv("LOGGING_LEVEL")).To(Succeed())
		Expect(os.Unsetenv("LOGGING_FORMAT")).To(Succeed())
	})

	It("defaults to console output", func() {
		o := logger.OptionsFromEnv()
		Expect(o.Format).To(Equal(logger.FormatConsole))
		Expect(o.Level).To(Equal("PRODUCTION"))
	})

	It("reads level and a case-insensitive format", func() {
		Expect(os.Setenv("LOGGING_LEVEL", "debug")).To(Succeed())
		Expect(os.Setenv("LOGGING_FORMAT", "json")).To(Succeed())

		o := logger.OptionsFromEnv()
		Expect(o.Format).To(Equal(logger.FormatJSON))
		Expect(logger.ParseLevel(o.Level)).To(Equal(zapcore.DebugLevel))
	})
})

var _ = Describe("For", func() {
	It("returns a named logger", func() {
		log := logger.For(logger.ComponentCore)
		Expect(log).NotTo(BeNil())
		Expect(log.Desugar().Name()).To(Equal(logger.ComponentCore))
	})
})
