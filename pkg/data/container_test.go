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

package data_test

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hesperia-light/hesperia-core/pkg/data"
)

var _ = Describe("Container", func() {
	It("carries a typed payload", func() {
		fc := data.ForceControl{Acceleration: 1.5, SteeringForce: -0.2, BrakeLights: true}

		c, err := data.NewContainer(data.TypeForceControl, fc)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Type).To(Equal(data.TypeForceControl))
		Expect(c.IsEmpty()).To(BeFalse())

		var decoded data.ForceControl
		Expect(c.Decode(&decoded)).To(Succeed())
		Expect(decoded).To(Equal(fc))
	})

	It("refuses to decode an empty container", func() {
		var fc data.ForceControl
		Expect(data.Container{}.Decode(&fc)).To(MatchError(data.ErrEmptyPayload))
		Expect(data.Container{}.IsEmpty()).To(BeTrue())
	})

	It("parses data type names case insensitively", func() {
		t, err := data.ParseDataType("EgoState")
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(data.TypeEgoState))

		_, err = data.ParseDataType("nope")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("TimeStamp", func() {
	It("converts to and from TAI64N", func() {
		ts := data.FromTime(time.Date(2025, 3, 14, 15, 9, 26, 535897932, time.UTC))

		label := ts.TAI64N()
		Expect(label).To(HavePrefix("@4"))
		Expect(label).To(HaveLen(25))

		parsed, err := data.ParseTAI64N(label)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed).To(Equal(ts))
	})

	It("treats the zero value as unset", func() {
		Expect(data.TimeStamp{}.IsZero()).To(BeTrue())
		Expect(data.TimeStamp{}.String()).To(Equal("unset"))
	})
})

var _ = Describe("Codec", func() {
	It("frames small containers uncompressed", func() {
		c := data.MustContainer(data.TypeEgoState, data.EgoState{Position: data.Point3{X: 1, Y: 2}})
		c.SenderID = "vehicle"
		c.Sent = data.Now()

		frame, err := data.Encode(c)
		Expect(err).NotTo(HaveOccurred())
		Expect(data.IsCompressedFrame(frame)).To(BeFalse())

		decoded, err := data.Decode(frame)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.ID).To(Equal(c.ID))
		Expect(decoded.Type).To(Equal(data.TypeEgoState))
		Expect(decoded.SenderID).To(Equal("vehicle"))
		Expect(decoded.Sent).To(Equal(c.Sent))
		Expect(decoded.Received.IsZero()).To(BeTrue())

		var es data.EgoState
		Expect(decoded.Decode(&es)).To(Succeed())
		Expect(es.Position.Y).To(Equal(2.0))
	})

	It("compresses large containers", func() {
		c := data.MustContainer(data.TypeConfiguration, map[string]string{"blob": strings.Repeat("hesperia ", 500)})

		frame, err := data.Encode(c)
		Expect(err).NotTo(HaveOccurred())
		Expect(data.IsCompressedFrame(frame)).To(BeTrue())
		Expect(len(frame)).To(BeNumerically("<", 4500))

		decoded, err := data.Decode(frame)
		Expect(err).NotTo(HaveOccurred())

		var m map[string]string
		Expect(decoded.Decode(&m)).To(Succeed())
		Expect(m["blob"]).To(HavePrefix("hesperia hesperia"))
	})

	It("detects corrupted frames", func() {
		frame, err := data.Encode(data.MustContainer(data.TypeHeartbeat, data.Heartbeat{Module: "m"}))
		Expect(err).NotTo(HaveOccurred())

		frame[len(frame)-2] ^= 0xff
		_, err = data.Decode(frame)
		Expect(err).To(HaveOccurred())

		_, err = data.Decode([]byte{1})
		Expect(err).To(MatchError(data.ErrShortFrame))

		bad := make([]byte, 12)
		bad[0] = 9
		_, err = data.Decode(bad)
		Expect(err).To(MatchError(ContainSubstring("unsupported frame version")))
	})

	Describe("size limits", func() {
		// frameOf builds a valid frame around body by hand.
		frameOf := func(flags byte, raw, body []byte) []byte {
			frame := make([]byte, 10, 10+len(body))
			frame[0] = 1
			frame[1] = flags
			binary.BigEndian.PutUint64(frame[2:], xxhash.Sum64(raw))

			return append(frame, body...)
		}

		It("refuses compressed frames that inflate past the limit", func() {
			raw := make([]byte, 4*data.MaxFrameSize)

			enc, err := zstd.NewWriter(nil)
			Expect(err).NotTo(HaveOccurred())
			defer enc.Close()

			packed := enc.EncodeAll(raw, nil)
			Expect(len(packed)).To(BeNumerically("<", data.MaxFrameSize/100))

			_, err = data.Decode(frameOf(1, raw, packed))
			Expect(err).To(MatchError(data.ErrFrameTooLarge))
		})

		It("refuses oversized uncompressed frames", func() {
			raw := make([]byte, data.MaxFrameSize+1)

			_, err := data.Decode(frameOf(0, raw, raw))
			Expect(err).To(MatchError(data.ErrFrameTooLarge))
		})

		It("refuses to encode oversized containers", func() {
			c := data.MustContainer(data.TypeConfiguration, map[string]string{"blob": strings.Repeat("x", data.MaxFrameSize)})

			_, err := data.Encode(c)
			Expect(err).To(MatchError(data.ErrFrameTooLarge))
		})
	})
})
