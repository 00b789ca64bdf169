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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]BlobStore {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			blob := []byte{0x00, 0x01, 0xfe, 0xff}
			require.NoError(t, store.Put("primary", blob))

			got, err := store.Get("primary")
			require.NoError(t, err)
			assert.Equal(t, blob, got)

			// Byte-identical across overwrite
			require.NoError(t, store.Put("primary", blob))
			got, err = store.Get("primary")
			require.NoError(t, err)
			assert.Equal(t, blob, got)
		})
	}
}

func TestGetNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get("missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("key", []byte("blob")))
			require.NoError(t, store.Delete("key"))

			_, err := store.Get("key")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.Delete("key"), ErrNotFound)
		})
	}
}

func TestList(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("obj-1.pub", []byte("a")))
			require.NoError(t, store.Put("obj-1.priv", []byte("b")))
			require.NoError(t, store.Put("other", []byte("c")))

			ids, err := store.List("obj-1")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"obj-1.pub", "obj-1.priv"}, ids)

			all, err := store.List("")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestInvalidID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Put("", []byte("x")), ErrInvalidID)
		})
	}

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, fileStore.Put("../escape", []byte("x")), ErrInvalidID)
	assert.ErrorIs(t, fileStore.Put("/abs", []byte("x")), ErrInvalidID)
}

func TestClosed(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("k", []byte("v")))
			require.NoError(t, store.Close())

			_, err := store.Get("k")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, store.Put("k", nil), ErrClosed)
			assert.ErrorIs(t, store.Delete("k"), ErrClosed)
			_, err = store.List("")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put("srk", []byte{0x81, 0x00, 0x00, 0x01}))
	require.NoError(t, first.Close())

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	blob, err := second.Get("srk")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x00, 0x00, 0x01}, blob)
}
