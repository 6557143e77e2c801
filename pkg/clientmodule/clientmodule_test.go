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

package clientmodule_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/hesperia-light/hesperia-core/pkg/backoff"
	"github.com/hesperia-light/hesperia-core/pkg/clientmodule"
	"github.com/hesperia-light/hesperia-core/pkg/conference"
	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
)

var _ = Describe("ClientModule", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		worker *fakeWorker
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		worker = &fakeWorker{}
	})

	AfterEach(func() {
		cancel()
	})

	newModule := func(w clientmodule.Worker, opts ...clientmodule.Option) *clientmodule.ClientModule {
		opts = append([]clientmodule.Option{
			clientmodule.WithLogger(zaptest.NewLogger(GinkgoT()).Sugar()),
			clientmodule.WithFrequency(200),
		}, opts...)

		m, err := clientmodule.New("vehicle", w, opts...)
		Expect(err).NotTo(HaveOccurred())

		return m
	}

	// runAsync starts RunModule and returns a channel carrying its exit code.
	runAsync := func(runCtx context.Context, m *clientmodule.ClientModule) <-chan clientmodule.ExitCode {
		exit := make(chan clientmodule.ExitCode, 1)

		go func() {
			defer GinkgoRecover()
			exit <- m.RunModule(runCtx)
		}()

		return exit
	}

	It("rejects invalid construction", func() {
		_, err := clientmodule.New("", worker)
		Expect(err).To(HaveOccurred())

		_, err = clientmodule.New("vehicle", nil)
		Expect(err).To(HaveOccurred())

		_, err = clientmodule.New("vehicle", worker, clientmodule.WithFrequency(-1))
		Expect(err).To(HaveOccurred())
	})

	It("cycles until cancelled and exits OKAY", func() {
		m := newModule(worker)
		runCtx, stop := context.WithCancel(ctx)
		exit := runAsync(runCtx, m)

		Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
		Eventually(m.CycleCounter).Should(BeNumerically(">=", 3))
		Expect(m.LastCycle()).NotTo(BeZero())
		Expect(m.LastWaitTime()).To(BeNumerically("<=", 5*time.Millisecond))

		stop()

		Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
		Expect(worker.SetUps()).To(Equal(1))
		Expect(worker.TearDowns()).To(Equal(1))
		Expect(m.ModuleState()).To(Equal(clientmodule.StateNotRunning))
	})

	It("stops on Stop", func() {
		m := newModule(worker)
		exit := runAsync(ctx, m)

		Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
		Expect(m.Stop(ctx)).To(Succeed())
		Expect(worker.TearDowns()).To(Equal(1))

		Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
		Expect(m.Stop(ctx)).To(Succeed())
	})

	It("does not run after an early Stop", func() {
		m := newModule(worker)
		Expect(m.Stop(ctx)).To(Succeed())

		Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitOkay))
		Expect(worker.SetUps()).To(BeZero())
	})

	It("can only run once", func() {
		m := newModule(worker)
		runCtx, stop := context.WithCancel(ctx)
		exit := runAsync(runCtx, m)

		Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
		Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitSeriousError))

		stop()
		Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
	})

	It("reads the frequency from the configuration", func() {
		provider := keyvalue.StaticProvider{Config: keyvalue.NewConfiguration(map[string]string{
			"vehicle.frequency": "50",
			"global.frequency":  "5",
		})}

		m, err := clientmodule.New("vehicle", worker,
			clientmodule.WithLogger(zaptest.NewLogger(GinkgoT()).Sugar()),
			clientmodule.WithConfiguration(provider))
		Expect(err).NotTo(HaveOccurred())

		runCtx, stop := context.WithCancel(ctx)
		exit := runAsync(runCtx, m)

		Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
		Expect(worker.Frequency()).To(Equal(50.0))
		Expect(m.Frequency()).To(Equal(50.0))

		stop()
		Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
	})

	It("clamps frequencies above the maximum", func() {
		m := newModule(worker, clientmodule.WithFrequency(constants.MaxFrequency*10))
		runCtx, stop := context.WithCancel(ctx)
		exit := runAsync(runCtx, m)

		Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
		Expect(m.Frequency()).To(Equal(constants.MaxFrequency))

		stop()
		Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
	})

	Describe("conference", func() {
		var (
			hub  *conference.Hub
			self *conference.Local
			peer *conference.Local
		)

		BeforeEach(func() {
			hub = conference.NewHub()
			self = hub.Join("vehicle")
			peer = hub.Join("driver")
		})

		AfterEach(func() {
			Expect(self.Close()).To(Succeed())
			Expect(peer.Close()).To(Succeed())
		})

		It("publishes what the step queued", func() {
			worker.step = func(ctx context.Context, mc *clientmodule.Context, n int) error {
				return mc.Publish(ctx, data.MustContainer(data.TypeEgoState, data.EgoState{
					Position: data.Point3{X: float64(n)},
				}))
			}

			received := make(chan data.Container, 100)
			peer.AddListener(conference.ListenerFunc(func(c data.Container) {
				select {
				case received <- c:
				default:
				}
			}))

			m := newModule(worker, clientmodule.WithConference(self))
			runCtx, stop := context.WithCancel(ctx)
			exit := runAsync(runCtx, m)

			var got data.Container
			Eventually(received).Should(Receive(&got))
			Expect(got.Type).To(Equal(data.TypeEgoState))
			Expect(got.SenderID).To(Equal("vehicle"))

			stop()
			Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
		})

		It("feeds inputs into the data store", func() {
			seen := make(chan float64, 100)
			worker.step = func(_ context.Context, mc *clientmodule.Context, _ int) error {
				latest := mc.Latest(data.TypeForceControl)
				if latest.IsEmpty() {
					return nil
				}

				var fc data.ForceControl
				if err := latest.Decode(&fc); err != nil {
					return err
				}

				select {
				case seen <- fc.Acceleration:
				default:
				}

				return nil
			}

			m := newModule(worker, clientmodule.WithConference(self))
			runCtx, stop := context.WithCancel(ctx)
			exit := runAsync(runCtx, m)

			Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
			Expect(peer.Send(ctx, data.MustContainer(data.TypeForceControl, data.ForceControl{Acceleration: 0.5}))).To(Succeed())

			Eventually(seen).Should(Receive(Equal(0.5)))

			stop()
			Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
		})
	})

	Describe("step errors", func() {
		It("ends with SERIOUS_ERROR on a permanent error", func() {
			worker.step = func(context.Context, *clientmodule.Context, int) error { return errStep }

			m := newModule(worker)
			Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitSeriousError))
			Expect(worker.Steps()).To(Equal(1))
			Expect(worker.TearDowns()).To(Equal(1))
			Expect(m.CycleCounter()).To(BeZero())
		})

		It("keeps running through ignored errors", func() {
			worker.step = func(_ context.Context, mc *clientmodule.Context, n int) error {
				if n >= 20 {
					mc.RequestStop()

					return nil
				}

				return backoff.NewIgnoredError(errStep)
			}

			m := newModule(worker)
			Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitOkay))
			Expect(worker.Steps()).To(Equal(20))
		})

		It("tolerates transient errors up to the limit", func() {
			worker.step = func(context.Context, *clientmodule.Context, int) error {
				return backoff.NewTransientError(errStep)
			}

			m := newModule(worker)
			Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitSeriousError))
			Expect(worker.Steps()).To(Equal(constants.MaxConsecutiveTransientErrors))
		})

		It("resets the transient tally after a good step", func() {
			worker.step = func(_ context.Context, mc *clientmodule.Context, n int) error {
				switch {
				case n >= 3*constants.MaxConsecutiveTransientErrors:
					mc.RequestStop()

					return nil
				case n%constants.MaxConsecutiveTransientErrors == 0:
					return nil
				default:
					return backoff.NewTransientError(errStep)
				}
			}

			m := newModule(worker, clientmodule.WithFrequency(constants.MaxFrequency))
			Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitOkay))
		})

		It("reports a panicking step as EXCEPTION_CAUGHT and still tears down", func() {
			worker.step = func(context.Context, *clientmodule.Context, int) error { panic("boom") }

			m := newModule(worker)
			Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitExceptionCaught))
			Expect(worker.TearDowns()).To(Equal(1))
		})

		It("ends with SERIOUS_ERROR when set up fails", func() {
			worker.setUpErr = errors.New("no model")

			m := newModule(worker)
			Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitSeriousError))
			Expect(worker.Steps()).To(BeZero())
			Expect(worker.TearDowns()).To(BeZero())
		})
	})

	It("exits with OKAY when cancelled while loading its configuration", func() {
		m := newModule(worker, clientmodule.WithConfiguration(blockingProvider{}))
		exit := runAsync(ctx, m)

		time.AfterFunc(50*time.Millisecond, cancel)

		Eventually(exit, 2*time.Second).Should(Receive(Equal(clientmodule.ExitOkay)))
		Expect(worker.SetUps()).To(BeZero())
	})

	Describe("supercomponent", func() {
		var super *fakeSupercomponent

		BeforeEach(func() {
			super = &fakeSupercomponent{
				config: keyvalue.NewConfiguration(map[string]string{"vehicle.frequency": "100"}),
			}
		})

		It("exits with NO_SUPERCOMPONENT when connect fails", func() {
			super.connectErr = errors.New("unreachable")

			m := newModule(worker, clientmodule.WithSupercomponent(super))
			Expect(m.RunModule(ctx)).To(Equal(clientmodule.ExitNoSupercomponent))
			Expect(worker.SetUps()).To(BeZero())
		})

		It("exits with OKAY when cancelled while connecting", func() {
			super.block = true

			m := newModule(worker, clientmodule.WithSupercomponent(super))
			exit := runAsync(ctx, m)

			Eventually(super.connectAttempts).Should(Equal(1))
			cancel()

			Eventually(exit, 2*time.Second).Should(Receive(Equal(clientmodule.ExitOkay)))
			Expect(m.ExitCode()).To(Equal(clientmodule.ExitOkay))
			Expect(worker.SetUps()).To(BeZero())
		})

		It("reports its state and stops on connection loss", func() {
			m, err := clientmodule.New("vehicle", worker,
				clientmodule.WithLogger(zaptest.NewLogger(GinkgoT()).Sugar()),
				clientmodule.WithSupercomponent(super))
			Expect(err).NotTo(HaveOccurred())

			exit := runAsync(ctx, m)

			Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
			Expect(m.Frequency()).To(Equal(100.0))
			Expect(super.reportedState()).To(Equal(string(clientmodule.StateRunning)))

			super.lose(errors.New("missed heartbeats"))

			Eventually(exit).Should(Receive(Equal(clientmodule.ExitConnectionLost)))
			Expect(worker.TearDowns()).To(Equal(1))
		})

		It("lets the worker handle connection loss", func() {
			resilient := &resilientWorker{}
			m := newModule(resilient, clientmodule.WithSupercomponent(super))

			runCtx, stop := context.WithCancel(ctx)
			exit := runAsync(runCtx, m)

			Eventually(m.ModuleState).Should(Equal(clientmodule.StateRunning))
			super.lose(errors.New("missed heartbeats"))

			Eventually(resilient.Lost).Should(Equal(1))
			Consistently(m.ModuleState, "50ms").Should(Equal(clientmodule.StateRunning))

			stop()
			Eventually(exit).Should(Receive(Equal(clientmodule.ExitOkay)))
		})
	})
})
