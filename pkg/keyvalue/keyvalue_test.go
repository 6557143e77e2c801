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

package keyvalue_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
)

const sampleYAML = `
global:
  car: FordEscape
  scenario: Track.scnx
vehicle:
  posX: 0.5
  posY: -2
  headingDEG: 90
  invertedSteering: false
  frequency: 20
  lights: [front, back]
driver:
  mode: manual
`

var _ = Describe("Configuration", func() {
	cfg := keyvalue.NewConfiguration(map[string]string{
		"Vehicle.PosX":    "1.25",
		"vehicle.wheels":  "4",
		"vehicle.enabled": "yes",
		"vehicle.timeout": "250ms",
		"vehicle.period":  "2",
		"driver.mode":     "auto",
	})

	It("matches keys case insensitively", func() {
		v, err := cfg.Float("vehicle.posx")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(1.25))
	})

	It("parses typed values", func() {
		Expect(cfg.Int("vehicle.wheels")).To(Equal(4))
		Expect(cfg.Bool("vehicle.enabled")).To(BeTrue())
		Expect(cfg.Duration("vehicle.timeout")).To(Equal(250 * time.Millisecond))
		Expect(cfg.Duration("vehicle.period")).To(Equal(2 * time.Second))
	})

	It("reports missing and malformed keys", func() {
		_, err := cfg.Value("vehicle.color")
		Expect(err).To(MatchError(keyvalue.ErrKeyNotFound))

		_, err = cfg.Int("driver.mode")
		Expect(err).To(HaveOccurred())

		Expect(cfg.FloatOr("vehicle.color", 3)).To(Equal(3.0))
		Expect(cfg.BoolOr("driver.mode", true)).To(BeTrue())
	})

	It("selects sections", func() {
		sub := cfg.Subset("vehicle")
		Expect(sub.Len()).To(Equal(5))
		Expect(sub.Keys()).NotTo(ContainElement("driver.mode"))
	})

	It("is not affected by changes to the source map", func() {
		src := map[string]string{"a.b": "1"}
		c := keyvalue.NewConfiguration(src)
		src["a.b"] = "2"

		Expect(c.Value("a.b")).To(Equal("1"))

		m := c.Map()
		m["a.b"] = "3"
		Expect(c.Value("a.b")).To(Equal("1"))
	})
})

var _ = Describe("Providers", func() {
	It("flattens YAML", func() {
		values, err := keyvalue.ParseYAML([]byte(sampleYAML))
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(HaveKeyWithValue("vehicle.posx", "0.5"))
		Expect(values).To(HaveKeyWithValue("vehicle.lights", "front,back"))
		Expect(values).To(HaveKeyWithValue("global.car", "FordEscape"))
	})

	It("serves the global and module sections from a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "configuration.yaml")
		Expect(os.WriteFile(path, []byte(sampleYAML), 0o600)).To(Succeed())

		Expect(os.Setenv("HESPERIA_VEHICLE_POSY", "7")).To(Succeed())
		DeferCleanup(os.Unsetenv, "HESPERIA_VEHICLE_POSY")

		p := keyvalue.NewFileProvider(path)
		cfg, err := p.Configuration(context.Background(), "Vehicle")
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Value("global.scenario")).To(Equal("Track.scnx"))
		Expect(cfg.Float("vehicle.headingdeg")).To(Equal(90.0))
		Expect(cfg.Float("vehicle.posy")).To(Equal(7.0))
		_, err = cfg.Value("driver.mode")
		Expect(err).To(MatchError(keyvalue.ErrKeyNotFound))

		Expect(keyvalue.Dump(cfg)).To(ContainSubstring("vehicle.posx=0.5\n"))
	})

	It("fails for a missing file", func() {
		p := keyvalue.NewFileProvider(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		_, err := p.Configuration(context.Background(), "vehicle")
		Expect(err).To(HaveOccurred())
	})

	It("narrows a static configuration per module", func() {
		p := keyvalue.StaticProvider{Config: keyvalue.NewConfiguration(map[string]string{
			"global.a":  "1",
			"vehicle.b": "2",
			"driver.c":  "3",
		})}

		cfg, err := p.Configuration(context.Background(), "driver")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Keys()).To(ConsistOf("global.a", "driver.c"))
	})
})
