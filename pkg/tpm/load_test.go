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
	"testing"

	"github.com/google/go-tpm/tpm2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

func TestUnmarshalPublic(t *testing.T) {
	raw := tpm2.Marshal(tpm2.New2B(tpm2.RSASRKTemplate))
	blob := secret.New(raw)
	defer blob.Destroy()

	pub, err := unmarshalPublic(blob)
	require.NoError(t, err)

	tmpl, err := pub.Contents()
	require.NoError(t, err)
	assert.Equal(t, tpm2.TPMAlgRSA, tmpl.Type)
}

func TestUnmarshalPublicRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"truncated header", []byte{0x00}},
		{"noise", []byte{0xde, 0xad, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			blob := secret.New(tc.raw)
			defer blob.Destroy()

			_, err := unmarshalPublic(blob)
			assert.ErrorIs(t, err, ErrBlobFormat)

			_, err = unmarshalPrivate(blob)
			assert.ErrorIs(t, err, ErrBlobFormat)
		})
	}
}

func TestDeserializeHandleRejectsMalformedBlobs(t *testing.T) {
	// Malformed blobs are rejected before any hardware command, so a
	// bare context is enough.
	c := &Context{handles: make(map[Handle]struct{})}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"too short", []byte{'T', 'K', 'H', '1', 0x81}},
		{"wrong magic", []byte{'X', 'X', 'X', 'X', 0x81, 0x00, 0x00, 0x01}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			blob := secret.New(tc.raw)
			defer blob.Destroy()

			_, err := c.DeserializeHandle(blob)
			assert.ErrorIs(t, err, ErrBlobFormat)
		})
	}
}

func TestIsPersistent(t *testing.T) {
	tests := []struct {
		name       string
		h          Handle
		persistent bool
	}{
		{"first persistent handle", 0x81000000, true},
		{"provisioned primary", 0x81000001, true},
		{"last persistent handle", 0x81FFFFFF, true},
		{"transient", 0x80000000, false},
		{"owner hierarchy", Handle(tpm2.TPMRHOwner), false},
		{"nv index", 0x01000000, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.persistent, isPersistent(tc.h))
		})
	}
}

func TestLoadOnClosedContext(t *testing.T) {
	c := &Context{closed: true}

	blob := secret.New([]byte{1, 2, 3})
	defer blob.Destroy()

	_, err := c.Load(0x80000000, nil, blob, blob)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.SerializeHandle(0x80000000)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.DeserializeHandle(blob)
	assert.ErrorIs(t, err, ErrClosed)
}
