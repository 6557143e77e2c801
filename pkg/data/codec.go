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

package data

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// CompressionThreshold is the encoded size in bytes from which a container is
// zstd compressed on the wire.
const CompressionThreshold = 1024

// MaxFrameSize bounds the JSON body of a frame, before compression and after
// decompression.
const MaxFrameSize = 4 << 20

const (
	frameVersion    byte = 1
	flagCompressed  byte = 1 << 0
	frameHeaderSize      = 2 + 8
)

var (
	ErrShortFrame         = errors.New("frame too short")
	ErrUnsupportedVersion = errors.New("unsupported frame version")
	ErrChecksumMismatch   = errors.New("frame checksum mismatch")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// codecs returns the shared encoder and decoder. EncodeAll and DecodeAll are
// safe for concurrent use.
func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}

		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameSize))
	})

	return zstdEncoder, zstdDecoder, zstdErr
}

// Encode frames c for a transport. The frame is
//
//	version(1) | flags(1) | xxhash64 of the JSON body(8) | body
//
// where body is the JSON encoded container, zstd compressed if large.
func Encode(c Container) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal container: %w", err)
	}

	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrFrameTooLarge, len(body))
	}

	var flags byte

	sum := xxhash.Sum64(body)

	if len(body) >= CompressionThreshold {
		enc, _, err := codecs()
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}

		body = enc.EncodeAll(body, make([]byte, 0, len(body)/2))
		flags |= flagCompressed
	}

	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	frame[0] = frameVersion
	frame[1] = flags
	binary.BigEndian.PutUint64(frame[2:frameHeaderSize], sum)

	return append(frame, body...), nil
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (Container, error) {
	if len(frame) < frameHeaderSize {
		return Container{}, ErrShortFrame
	}

	if len(frame)-frameHeaderSize > MaxFrameSize {
		return Container{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	if frame[0] != frameVersion {
		return Container{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, frame[0])
	}

	flags := frame[1]
	sum := binary.BigEndian.Uint64(frame[2:frameHeaderSize])
	body := frame[frameHeaderSize:]

	if flags&flagCompressed != 0 {
		_, dec, err := codecs()
		if err != nil {
			return Container{}, fmt.Errorf("failed to create zstd decoder: %w", err)
		}

		body, err = dec.DecodeAll(body, nil)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return Container{}, fmt.Errorf("%w: %w", ErrFrameTooLarge, err)
		}

		if err != nil {
			return Container{}, fmt.Errorf("failed to decompress frame: %w", err)
		}
	}

	if xxhash.Sum64(body) != sum {
		return Container{}, ErrChecksumMismatch
	}

	var c Container
	if err := json.Unmarshal(body, &c); err != nil {
		return Container{}, fmt.Errorf("failed to unmarshal container: %w", err)
	}

	return c, nil
}

// IsCompressedFrame reports whether frame carries a compressed body.
func IsCompressedFrame(frame []byte) bool {
	return len(frame) >= frameHeaderSize && frame[1]&flagCompressed != 0
}
