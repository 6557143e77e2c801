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

package lifoqueue_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hesperia-light/hesperia-core/pkg/data"
	"github.com/hesperia-light/hesperia-core/pkg/lifoqueue"
)

func named(name string) data.Container {
	return data.MustContainer(data.TypeForceControl, map[string]string{"name": name})
}

func nameOf(c data.Container) string {
	var m map[string]string
	Expect(c.Decode(&m)).To(Succeed())

	return m["name"]
}

var _ = Describe("BufferedLIFOQueue", func() {
	It("evicts the oldest entry once full", func() {
		q := lifoqueue.NewBufferedLIFOQueue(3)
		for _, n := range []string{"A", "B", "C", "D"} {
			q.Push(named(n))
		}

		Expect(q.IndexOfLastElement()).To(Equal(2))

		newest, err := q.ElementAt(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(nameOf(newest)).To(Equal("D"))

		oldest, err := q.ElementAt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(nameOf(oldest)).To(Equal("B"))

		for i := 0; i <= q.IndexOfLastElement(); i++ {
			c, err := q.ElementAt(i)
			Expect(err).NotTo(HaveOccurred())
			Expect(nameOf(c)).NotTo(Equal("A"))
		}

		_, err = q.ElementAt(3)
		Expect(err).To(MatchError(lifoqueue.ErrIndexOutOfBounds))
	})

	DescribeTable("reports min(pushes, capacity)-1 as the last index",
		func(capacity, pushes int) {
			q := lifoqueue.NewBufferedLIFOQueue(capacity)
			for i := range pushes {
				q.Push(named(fmt.Sprint(i)))
			}

			Expect(q.IndexOfLastElement()).To(Equal(min(pushes, capacity) - 1))
			Expect(q.Size()).To(Equal(min(pushes, capacity)))
		},
		Entry("empty", 4, 0),
		Entry("partially filled", 4, 2),
		Entry("exactly full", 4, 4),
		Entry("wrapped several times", 4, 11),
		Entry("single slot", 1, 5),
		Entry("zero capacity", 0, 3),
	)

	It("returns the n most recent pushes in push order", func() {
		q := lifoqueue.NewBufferedLIFOQueue(4)
		for i := range 10 {
			q.Push(named(fmt.Sprint(i)))
		}

		for i := 0; i < 4; i++ {
			c, err := q.ElementAt(i)
			Expect(err).NotTo(HaveOccurred())
			Expect(nameOf(c)).To(Equal(fmt.Sprint(6 + i)))
		}

		latest, ok := q.Latest()
		Expect(ok).To(BeTrue())
		Expect(nameOf(latest)).To(Equal("9"))
	})

	It("rejects negative and out-of-range indices without changing state", func() {
		q := lifoqueue.NewBufferedLIFOQueue(2)
		q.Push(named("A"))

		_, err := q.ElementAt(-1)
		Expect(err).To(MatchError(lifoqueue.ErrIndexOutOfBounds))
		_, err = q.ElementAt(1)
		Expect(err).To(MatchError(lifoqueue.ErrIndexOutOfBounds))

		Expect(q.IndexOfLastElement()).To(Equal(0))
	})

	It("reads idempotently", func() {
		q := lifoqueue.NewBufferedLIFOQueue(2)
		q.Push(named("A"))
		q.Push(named("B"))

		first, err := q.ElementAt(1)
		Expect(err).NotTo(HaveOccurred())
		second, err := q.ElementAt(1)
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
		Expect(q.IndexOfLastElement()).To(Equal(1))
	})

	It("never retains anything with zero capacity", func() {
		q := lifoqueue.NewBufferedLIFOQueue(0)
		q.Push(named("A"))

		Expect(q.IndexOfLastElement()).To(Equal(-1))
		Expect(q.IsEmpty()).To(BeTrue())
		_, ok := q.Latest()
		Expect(ok).To(BeFalse())
		_, err := q.ElementAt(0)
		Expect(err).To(MatchError(lifoqueue.ErrIndexOutOfBounds))
	})

	It("owns its entries", func() {
		q := lifoqueue.NewBufferedLIFOQueue(1)
		c := named("A")
		q.Push(c)

		c.Payload[2] = 'X'

		got, err := q.ElementAt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(nameOf(got)).To(Equal("A"))

		got.Payload[2] = 'Y'

		again, err := q.ElementAt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(nameOf(again)).To(Equal("A"))
	})

	It("clears all entries", func() {
		q := lifoqueue.NewBufferedLIFOQueue(3)
		q.Push(named("A"))
		q.Push(named("B"))
		q.Clear()

		Expect(q.IndexOfLastElement()).To(Equal(-1))
		q.Push(named("C"))
		c, err := q.ElementAt(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(nameOf(c)).To(Equal("C"))
	})

	It("serves readers while a producer pushes", func() {
		q := lifoqueue.NewBufferedLIFOQueue(8)
		q.Push(named("seed"))

		var wg sync.WaitGroup

		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()

			for i := range 2000 {
				q.Push(named(fmt.Sprint(i)))
			}
		}()

		for range 4 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				for range 2000 {
					last := q.IndexOfLastElement()
					Expect(last).To(BeNumerically(">=", 0))
					c, err := q.ElementAt(0)
					Expect(err).NotTo(HaveOccurred())
					Expect(c.Type).To(Equal(data.TypeForceControl))
				}
			}()
		}

		wg.Wait()
		Expect(q.IndexOfLastElement()).To(Equal(7))
	})
})
