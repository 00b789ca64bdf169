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
	"fmt"

	"github.com/google/go-tpm/tpm2"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// ChangeAuth rewraps a loaded object's private area under a new
// authorization value and returns the new private blob. The loaded
// object and the original blob are untouched until the hardware
// confirms the rewrap: on failure the object remains fully usable under
// the old authorization, and the caller must not discard the original
// private blob until the new one is durably stored.
//
// The hardware offers no transactional replacement of a stored blob, so
// a power loss between persisting the new blob and retiring the old one
// can leave both on disk. The old blob stays valid under the old
// authorization in that window; callers that need the old value dead
// must complete the storage swap before acknowledging the rotation.
func (c *Context) ChangeAuth(
	parent Handle,
	object Handle,
	oldAuth *secret.Buffer,
	newAuth *secret.Buffer,
) (*secret.Buffer, error) {
	if c.closed {
		return nil, ErrClosed
	}

	objectName, _, err := c.readHandle(object)
	if err != nil {
		return nil, err
	}
	parentName, _, err := c.readHandle(parent)
	if err != nil {
		return nil, fmt.Errorf("parent 0x%x: %w", uint32(parent), err)
	}

	rsp, err := tpm2.ObjectChangeAuth{
		ObjectHandle: tpm2.AuthHandle{
			Handle: object,
			Name:   objectName,
			Auth:   c.authSession(oldAuth),
		},
		ParentHandle: tpm2.NamedHandle{
			Handle: parent,
			Name:   parentName,
		},
		NewAuth: tpm2.TPM2BAuth{
			Buffer: newAuth.Bytes(),
		},
	}.Execute(c.transport)
	if err != nil {
		return nil, classify("TPM2_ObjectChangeAuth", err)
	}

	c.logger.Debugf("tpm: rotated authorization for object 0x%x", uint32(object))
	return secret.New(tpm2.Marshal(rsp.OutPrivate)), nil
}
