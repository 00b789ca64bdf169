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

package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopies(t *testing.T) {
	src := []byte("hunter2")
	buf := New(src)

	src[0] = 'X'
	assert.Equal(t, []byte("hunter2"), buf.Bytes())
	assert.Equal(t, 7, buf.Len())
}

func TestStringAndHex(t *testing.T) {
	buf := NewString("abc")
	assert.Equal(t, "abc", buf.String())
	assert.Equal(t, "616263", buf.Hex())

	decoded, err := FromHex("616263")
	require.NoError(t, err)
	assert.True(t, buf.Equal(decoded))

	_, err = FromHex("not-hex")
	assert.Error(t, err)
}

func TestEqualConstantTime(t *testing.T) {
	a := NewString("same")
	b := NewString("same")
	c := NewString("diff")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	// Empty buffers compare equal to each other but not to data
	assert.True(t, New(nil).Equal(New(nil)))
	assert.False(t, New(nil).Equal(a))
}

func TestConcatAndSlice(t *testing.T) {
	a := NewString("foo")
	b := NewString("bar")

	joined, err := a.Concat(b)
	require.NoError(t, err)
	assert.Equal(t, "foobar", joined.String())

	// Inputs are not consumed
	assert.Equal(t, "foo", a.String())

	mid, err := joined.Slice(1, 4)
	require.NoError(t, err)
	assert.Equal(t, "oob", mid.String())

	_, err = joined.Slice(2, 99)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = joined.Slice(-1, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestDestroyZeroes(t *testing.T) {
	buf := NewString("sensitive")
	raw := buf.Bytes()

	buf.Destroy()

	for i := range raw {
		assert.Zero(t, raw[i], "byte %d not zeroed", i)
	}
	assert.Nil(t, buf.Bytes())
	assert.Equal(t, 0, buf.Len())
	assert.True(t, buf.IsZero())

	// Idempotent
	buf.Destroy()

	_, err := buf.Slice(0, 0)
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = buf.Concat(NewString("x"))
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestRandom(t *testing.T) {
	a, err := Random(32)
	require.NoError(t, err)
	b, err := Random(32)
	require.NoError(t, err)

	assert.Equal(t, 32, a.Len())
	assert.Equal(t, 32, b.Len())
	assert.False(t, a.Equal(b))
}

func TestClone(t *testing.T) {
	a := NewString("clone me")
	b := a.Clone()
	a.Destroy()
	assert.Equal(t, "clone me", b.String())
}

func TestNilReceiver(t *testing.T) {
	var buf *Buffer
	assert.True(t, buf.IsZero())
	assert.Equal(t, 0, buf.Len())
	assert.Nil(t, buf.Bytes())
	buf.Destroy()
}
