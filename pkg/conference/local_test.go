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

package conference_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hesperia-light/hesperia-core/pkg/conference"
	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/datastore"
)

type recorder struct {
	mu       sync.Mutex
	received []data.Container
}

func (r *recorder) NextContainer(c data.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.received = append(r.received, c)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.received)
}

func (r *recorder) first() data.Container {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.received[0]
}

var _ = Describe("Local conference", func() {
	var (
		hub            *conference.Hub
		vehicle, drive *conference.Local
		ctx            context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		hub = conference.NewHub()
		vehicle = hub.Join("vehicle")
		drive = hub.Join("driver")
	})

	AfterEach(func() {
		Expect(vehicle.Close()).To(Succeed())
		Expect(drive.Close()).To(Succeed())
	})

	It("delivers to other members but not back to the sender", func() {
		own := &recorder{}
		other := &recorder{}
		vehicle.AddListener(own)
		drive.AddListener(other)

		Expect(vehicle.Send(ctx, data.MustContainer(data.TypeEgoState, data.EgoState{}))).To(Succeed())

		Eventually(other.count).Should(Equal(1))
		Consistently(own.count, "50ms").Should(BeZero())

		got := other.first()
		Expect(got.SenderID).To(Equal("vehicle"))
		Expect(got.Sent.IsZero()).To(BeFalse())
		Expect(got.Received.IsZero()).To(BeFalse())
	})

	It("feeds a data store", func() {
		store := datastore.New(4)
		vehicle.AddListener(store)

		fc := data.ForceControl{Acceleration: 0.7}
		Expect(drive.Send(ctx, data.MustContainer(data.TypeForceControl, fc))).To(Succeed())

		Eventually(func() bool { return store.Get(data.TypeForceControl).IsEmpty() }).Should(BeFalse())

		var got data.ForceControl
		Expect(store.Get(data.TypeForceControl).Decode(&got)).To(Succeed())
		Expect(got).To(Equal(fc))
	})

	It("refuses to send after Close", func() {
		Expect(vehicle.Close()).To(Succeed())

		err := vehicle.Send(ctx, data.MustContainer(data.TypeEgoState, data.EgoState{}))
		Expect(err).To(MatchError(conference.ErrClosed))
	})

	It("accepts listener functions", func() {
		got := make(chan data.DataType, 1)
		drive.AddListener(conference.ListenerFunc(func(c data.Container) { got <- c.Type }))

		Expect(vehicle.Send(ctx, data.MustContainer(data.TypeVehicleData, data.VehicleData{}))).To(Succeed())
		Eventually(got).Should(Receive(Equal(data.TypeVehicleData)))
	})
})
