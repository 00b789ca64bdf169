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
)

func TestBuildStirRandomCommand(t *testing.T) {
	cmd := buildStirRandomCommand([]byte{0xaa, 0xbb, 0xcc})

	require.Len(t, cmd, 15)
	// TPM_ST_NO_SESSIONS header
	assert.Equal(t, []byte{0x80, 0x01}, cmd[0:2])
	// commandSize covers the whole buffer
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x0f}, cmd[2:6])
	// TPM_CC_StirRandom
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x46}, cmd[6:10])
	// TPM2B size prefix plus the seed chunk
	assert.Equal(t, []byte{0x00, 0x03, 0xaa, 0xbb, 0xcc}, cmd[10:])
}

func TestBuildStirRandomCommandEmptyChunk(t *testing.T) {
	cmd := buildStirRandomCommand(nil)

	require.Len(t, cmd, 12)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x0c}, cmd[2:6])
	assert.Equal(t, []byte{0x00, 0x00}, cmd[10:])
}

func TestCheckRawResponse(t *testing.T) {
	ok := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0x00}
	assert.NoError(t, checkRawResponse(ok))

	// truncated header is a device fault
	err := checkRawResponse(ok[:6])
	assert.ErrorIs(t, err, ErrDevice)

	// a failure response code surfaces as its TPMRC
	bad := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x01, 0x01}
	err = checkRawResponse(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, tpm2.TPMRCFailure)

	// and classifies like any other hardware error
	assert.ErrorIs(t, classify("TPM2_StirRandom", err), ErrDevice)
}
