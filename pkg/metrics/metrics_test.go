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

package metrics_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hesperia-light/hesperia-core/pkg/metrics"
)

// gaugeValue finds the first series of family name carrying label=value.
func gaugeValue(name, label, value string) (float64, bool) {
	families, err := prometheus.DefaultGatherer.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, f := range families {
		if f.GetName() != name {
			continue
		}

		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					if m.GetGauge() != nil {
						return m.GetGauge().GetValue(), true
					}

					return m.GetCounter().GetValue(), true
				}
			}
		}
	}

	return 0, false
}

var _ = Describe("Metrics", func() {
	It("encodes service states", func() {
		metrics.UpdateServiceState(metrics.ComponentService, "svc-a", "running")
		v, ok := gaugeValue("hesperia_core_service_state", "instance", "svc-a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(2.0))

		metrics.UpdateServiceState(metrics.ComponentService, "svc-a", "exploded")
		v, _ = gaugeValue("hesperia_core_service_state", "instance", "svc-a")
		Expect(v).To(Equal(-1.0))
	})

	It("tracks cycles and errors per instance", func() {
		metrics.SetCycleCount("mod-b", 17)
		v, ok := gaugeValue("hesperia_core_cycles", "instance", "mod-b")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(17.0))

		metrics.InitErrorCounter(metrics.ComponentClientModule, "mod-b")
		v, ok = gaugeValue("hesperia_core_errors_total", "instance", "mod-b")
		Expect(ok).To(BeTrue())
		Expect(v).To(BeZero())

		metrics.IncErrorCountAndLog(metrics.ComponentClientModule, "mod-b", nil, nil)
		v, _ = gaugeValue("hesperia_core_errors_total", "instance", "mod-b")
		Expect(v).To(Equal(1.0))
	})
})
