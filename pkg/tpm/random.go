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
	"encoding/binary"
	"fmt"

	"github.com/google/go-tpm/tpm2"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// maxRandomChunk bounds a single TPM2_GetRandom request. The hardware
// may return fewer bytes than requested in any case, so reads loop.
const maxRandomChunk = 32

// GetRandom reads exactly n bytes from the hardware RNG.
func (c *Context) GetRandom(n int) (*secret.Buffer, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length", ErrArguments)
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		want := n - len(out)
		if want > maxRandomChunk {
			want = maxRandomChunk
		}
		rsp, err := tpm2.GetRandom{BytesRequested: uint16(want)}.Execute(c.transport)
		if err != nil {
			return nil, classify("TPM2_GetRandom", err)
		}
		if len(rsp.RandomBytes.Buffer) == 0 {
			return nil, fmt.Errorf("%w: TPM2_GetRandom returned no data", ErrDevice)
		}
		out = append(out, rsp.RandomBytes.Buffer...)
	}

	buf := secret.New(out[:n])
	secret.Zero(out)
	return buf, nil
}

// TPM2_StirRandom command code. The direct API exposes no command
// wrapper for it, so the command buffer is marshalled by hand and sent
// over the raw transport.
const ccStirRandom = 0x00000146

// tagNoSessions is TPM_ST_NO_SESSIONS: the command carries no
// authorization area.
const tagNoSessions = 0x8001

// StirRandom mixes caller-provided seed material into the hardware RNG
// state.
func (c *Context) StirRandom(seed *secret.Buffer) error {
	if c.closed {
		return ErrClosed
	}
	if seed.IsZero() {
		return fmt.Errorf("%w: empty seed", ErrArguments)
	}

	// TPM2B_SENSITIVE_DATA caps a single stir at 128 bytes
	data := seed.Bytes()
	for len(data) > 0 {
		chunk := data
		if len(chunk) > 128 {
			chunk = chunk[:128]
		}
		data = data[len(chunk):]

		cmd := buildStirRandomCommand(chunk)
		rsp, err := c.transport.Send(cmd)
		secret.Zero(cmd)
		if err != nil {
			return classify("TPM2_StirRandom", err)
		}
		if err := checkRawResponse(rsp); err != nil {
			return classify("TPM2_StirRandom", err)
		}
	}
	return nil
}

// buildStirRandomCommand marshals a TPM2_StirRandom command buffer:
// no-sessions header followed by the seed chunk as a TPM2B.
func buildStirRandomCommand(chunk []byte) []byte {
	cmd := make([]byte, 0, 12+len(chunk))
	cmd = binary.BigEndian.AppendUint16(cmd, tagNoSessions)
	cmd = binary.BigEndian.AppendUint32(cmd, uint32(12+len(chunk)))
	cmd = binary.BigEndian.AppendUint32(cmd, ccStirRandom)
	cmd = binary.BigEndian.AppendUint16(cmd, uint16(len(chunk)))
	return append(cmd, chunk...)
}

// checkRawResponse validates the header of a hand-marshalled command's
// response and surfaces a non-successful response code as a TPMRC.
func checkRawResponse(rsp []byte) error {
	if len(rsp) < 10 {
		return fmt.Errorf("%w: short response header", ErrDevice)
	}
	if rc := binary.BigEndian.Uint32(rsp[6:10]); rc != 0 {
		return tpm2.TPMRC(rc)
	}
	return nil
}

// Read implements io.Reader over the hardware RNG so the context can be
// used as a crypto/rand-style source.
func (c *Context) Read(p []byte) (int, error) {
	buf, err := c.GetRandom(len(p))
	if err != nil {
		return 0, err
	}
	defer buf.Destroy()
	return copy(p, buf.Bytes()), nil
}
