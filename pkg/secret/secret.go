// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-tpm-token.
//
// go-tpm-token is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package secret provides an opaque, length-prefixed binary buffer type
// for key material, authorization values and hardware blobs. Buffers own
// their backing memory and zero it on Destroy so sensitive data does not
// linger on the heap after release.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrDestroyed is returned when a destroyed buffer is used.
	ErrDestroyed = errors.New("secret: buffer destroyed")

	// ErrOutOfRange is returned when a slice range exceeds the buffer length.
	ErrOutOfRange = errors.New("secret: slice out of range")
)

// Buffer is an owned, variable-length byte buffer with explicit length
// semantics (never NUL-terminated). The zero value is an empty, usable
// buffer. Callers that receive ownership of a Buffer are responsible for
// calling Destroy on every exit path, including error paths.
type Buffer struct {
	data      []byte
	destroyed bool
}

// New creates a Buffer holding a copy of b. The caller retains ownership
// of b; modifying it later does not affect the Buffer.
func New(b []byte) *Buffer {
	data := make([]byte, len(b))
	copy(data, b)
	return &Buffer{data: data}
}

// NewString creates a Buffer holding a copy of s.
func NewString(s string) *Buffer {
	return New([]byte(s))
}

// Random creates a Buffer of n cryptographically random bytes drawn from
// the host CSPRNG. Hardware randomness is available separately through
// the TPM context.
func Random(n int) (*Buffer, error) {
	data := make([]byte, n)
	if _, err := rand.Read(data); err != nil {
		return nil, fmt.Errorf("secret: failed to read random bytes: %w", err)
	}
	return &Buffer{data: data}, nil
}

// FromHex creates a Buffer by decoding a hex string.
func FromHex(s string) (*Buffer, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secret: invalid hex: %w", err)
	}
	return &Buffer{data: data}, nil
}

// Bytes returns the buffer contents. The returned slice aliases the
// buffer's backing memory and becomes invalid after Destroy; callers
// that need the data past the buffer's lifetime must copy it.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.destroyed {
		return nil
	}
	return b.data
}

// String returns the contents as a string. Returns "" after Destroy.
func (b *Buffer) String() string {
	if b == nil || b.destroyed {
		return ""
	}
	return string(b.data)
}

// Hex returns the contents hex-encoded.
func (b *Buffer) Hex() string {
	if b == nil || b.destroyed {
		return ""
	}
	return hex.EncodeToString(b.data)
}

// Len returns the buffer length in bytes. A destroyed buffer has length 0.
func (b *Buffer) Len() int {
	if b == nil || b.destroyed {
		return 0
	}
	return len(b.data)
}

// IsZero reports whether the buffer is nil, destroyed or empty.
func (b *Buffer) IsZero() bool {
	return b == nil || b.destroyed || len(b.data) == 0
}

// Equal compares two buffers in constant time.
func (b *Buffer) Equal(other *Buffer) bool {
	if b.IsZero() || other.IsZero() {
		return b.Len() == other.Len()
	}
	return subtle.ConstantTimeCompare(b.data, other.data) == 1
}

// Concat returns a new Buffer holding the concatenation of b and other.
// Neither input is consumed.
func (b *Buffer) Concat(other *Buffer) (*Buffer, error) {
	if b != nil && b.destroyed {
		return nil, ErrDestroyed
	}
	if other != nil && other.destroyed {
		return nil, ErrDestroyed
	}
	data := make([]byte, 0, b.Len()+other.Len())
	data = append(data, b.Bytes()...)
	data = append(data, other.Bytes()...)
	return &Buffer{data: data}, nil
}

// Slice returns a new Buffer holding a copy of the range [from, to).
func (b *Buffer) Slice(from, to int) (*Buffer, error) {
	if b == nil || b.destroyed {
		return nil, ErrDestroyed
	}
	if from < 0 || to < from || to > len(b.data) {
		return nil, ErrOutOfRange
	}
	return New(b.data[from:to]), nil
}

// Clone returns an independently owned copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	if b == nil || b.destroyed {
		return New(nil)
	}
	return New(b.data)
}

// Destroy zeroes the buffer contents and marks the buffer unusable.
// Safe to call more than once and on a nil receiver.
func (b *Buffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	Zero(b.data)
	b.data = nil
	b.destroyed = true
}

// Zero overwrites a raw byte slice with zeros, for scratch buffers that
// held sensitive material outside a Buffer.
func Zero(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
