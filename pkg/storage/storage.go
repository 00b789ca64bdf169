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

// Package storage provides the blob persistence layer for hardware key
// material. Public and private blobs produced by the TPM are opaque to
// this package; it stores and retrieves them byte-identical so that a
// blob written after key generation reloads the same object across
// process restarts.
package storage

import "errors"

var (
	// ErrClosed is returned when attempting to use a closed store.
	ErrClosed = errors.New("storage: closed")

	// ErrNotFound is returned when a blob is not found.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidID is returned when a blob ID is empty or escapes the
	// store root.
	ErrInvalidID = errors.New("storage: invalid blob ID")
)

// BlobStore persists opaque hardware blobs keyed by string ID.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Get retrieves the blob for the given ID.
	// Returns ErrNotFound if it does not exist.
	Get(id string) ([]byte, error)

	// Put stores the blob under the given ID, overwriting any
	// previous value.
	Put(id string, blob []byte) error

	// Delete removes the blob. Returns ErrNotFound if it does not exist.
	Delete(id string) error

	// List returns all blob IDs with the given prefix. An empty prefix
	// returns every ID.
	List(prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
