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

package dmcp

import (
	"sort"
	"time"

	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
)

// Latency summarizes the heartbeat round trips seen within the latency
// window.
type Latency struct {
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Avg     time.Duration `json:"avg"`
	P95     time.Duration `json:"p95"`
	Samples int           `json:"samples"`
}

func calculateLatency(latencies *expiremap.ExpireMap[time.Time, time.Duration]) Latency {
	var (
		out       Latency
		total     time.Duration
		durations []time.Duration
	)

	latencies.Range(func(_ time.Time, value time.Duration) bool {
		if out.Min == 0 || value < out.Min {
			out.Min = value
		}

		if value > out.Max {
			out.Max = value
		}

		total += value
		durations = append(durations, value)

		return true
	})

	out.Samples = len(durations)
	if out.Samples == 0 {
		return out
	}

	out.Avg = total / time.Duration(out.Samples)

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	p95Index := int(float64(out.Samples) * 0.95)
	if p95Index >= out.Samples {
		p95Index = out.Samples - 1
	}

	out.P95 = durations[p95Index]

	return out
}
