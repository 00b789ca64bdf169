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

package tpm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPKCS7Pad(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		padLen  int
		total   int
	}{
		{"empty input gets a full pad block", nil, 16, 16},
		{"one byte", []byte{0xaa}, 15, 16},
		{"block-aligned input gets a full extra block", bytes.Repeat([]byte{1}, 16), 16, 32},
		{"fifteen bytes", bytes.Repeat([]byte{2}, 15), 1, 16},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := pkcs7Pad(tc.in, aesBlockSize)
			require.Len(t, out, tc.total)
			assert.True(t, bytes.Equal(tc.in, out[:len(tc.in)]))
			for _, b := range out[len(tc.in):] {
				assert.Equal(t, byte(tc.padLen), b)
			}
		})
	}
}

func TestPKCS7RoundTrip(t *testing.T) {
	for n := 0; n <= 48; n++ {
		in := bytes.Repeat([]byte{0x5a}, n)
		out, err := pkcs7Unpad(pkcs7Pad(in, aesBlockSize), aesBlockSize)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestPKCS7UnpadRejectsBadPadding(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"not block aligned", bytes.Repeat([]byte{1}, 15)},
		{"zero pad byte", append(bytes.Repeat([]byte{1}, 15), 0)},
		{"pad byte larger than block", append(bytes.Repeat([]byte{1}, 15), 17)},
		{"inconsistent pad bytes", append(bytes.Repeat([]byte{1}, 14), 3, 2)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pkcs7Unpad(tc.in, aesBlockSize)
			assert.ErrorIs(t, err, ErrDataInvalid)
		})
	}
}

func TestOperationLifecycleOrder(t *testing.T) {
	ctx := &Context{handles: make(map[Handle]struct{})}
	op := &Operation{ctx: ctx, kind: opSymmetric}
	ctx.activeOp = op

	// destroying detaches the operation from the context
	op.destroy()
	assert.Nil(t, ctx.activeOp)

	// any use after completion is a sequence fault
	_, err := op.Update([]byte{1})
	assert.ErrorIs(t, err, ErrOperationState)
	_, err = op.Final()
	assert.ErrorIs(t, err, ErrOperationState)

	// destroy is idempotent
	op.destroy()
}

func TestOperationDetachedFromContext(t *testing.T) {
	ctx := &Context{handles: make(map[Handle]struct{})}
	op := &Operation{ctx: ctx, kind: opSymmetric}

	// never installed as the active operation
	_, err := op.Update([]byte{1})
	assert.ErrorIs(t, err, ErrOperationState)
}
