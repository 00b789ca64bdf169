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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const blobExt = ".blob"

// FileStore is a BlobStore backed by a directory of .blob files, one
// file per blob. Writes go through a temp file and rename so a crashed
// write never leaves a truncated blob behind.
type FileStore struct {
	root   string
	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates a file-backed blob store rooted at dir, creating
// the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, ErrInvalidID
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("storage: failed to create %s: %w", dir, err)
	}
	return &FileStore{root: dir}, nil
}

func (f *FileStore) path(id string) (string, error) {
	if id == "" {
		return "", ErrInvalidID
	}
	name := filepath.Clean(id)
	if name != id || strings.Contains(id, "..") || filepath.IsAbs(id) {
		return "", ErrInvalidID
	}
	return filepath.Join(f.root, name+blobExt), nil
}

// Get retrieves the blob for the given ID.
func (f *FileStore) Get(id string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	p, err := f.path(id)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: failed to read blob %s: %w", id, err)
	}
	return blob, nil
}

// Put stores the blob under the given ID.
func (f *FileStore) Put(id string, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	p, err := f.path(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return fmt.Errorf("storage: failed to create blob dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, blob, 0600); err != nil {
		return fmt.Errorf("storage: failed to write blob %s: %w", id, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage: failed to commit blob %s: %w", id, err)
	}
	return nil
}

// Delete removes the blob.
func (f *FileStore) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	p, err := f.path(id)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: failed to delete blob %s: %w", id, err)
	}
	return nil
}

// List returns all blob IDs with the given prefix.
func (f *FileStore) List(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	var ids []string
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, blobExt) {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		id := strings.TrimSuffix(rel, blobExt)
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to list blobs: %w", err)
	}
	return ids, nil
}

// Close marks the store closed. Blobs remain on disk.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}
