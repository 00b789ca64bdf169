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
	"sync"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// Guard serializes access to a Context, making the external-lock
// contract a first-class type instead of a documented precondition.
// Every operation runs under the guard's mutex, including Close, so a
// guarded context is safe to share between goroutines. Code that holds
// its own lock around context operations can keep using Context
// directly instead.
type Guard struct {
	mu  sync.Mutex
	ctx *Context
}

// NewGuard wraps a context. The guard owns the context from this point:
// callers must not touch the wrapped context directly.
func NewGuard(ctx *Context) *Guard {
	return &Guard{ctx: ctx}
}

// Do runs fn with exclusive access to the wrapped context.
func (g *Guard) Do(fn func(*Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.ctx)
}

// Close closes the wrapped context under the lock.
func (g *Guard) Close() error {
	return g.Do(func(c *Context) error {
		return c.Close()
	})
}

// GetRandom reads from the hardware RNG under the lock. The remaining
// operations are reachable through Do; RNG reads get a direct method
// because they are the common case for callers that never touch key
// material.
func (g *Guard) GetRandom(n int) (*secret.Buffer, error) {
	var buf *secret.Buffer
	err := g.Do(func(c *Context) error {
		var err error
		buf, err = c.GetRandom(n)
		return err
	})
	return buf, err
}
