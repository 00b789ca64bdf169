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
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-tpm/tpm2"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"nil", nil, nil},
		{"auth fail", tpm2.TPMRCAuthFail, ErrAuthFail},
		{"bad auth", tpm2.TPMRCBadAuth, ErrAuthFail},
		{"policy fail", tpm2.TPMRCPolicyFail, ErrAuthFail},
		{"lockout", tpm2.TPMRCLockout, ErrAuthFail},
		{"integrity", tpm2.TPMRCIntegrity, ErrBlobFormat},
		{"size", tpm2.TPMRCSize, ErrBlobFormat},
		{"object memory", tpm2.TPMRCObjectMemory, ErrHandleTableFull},
		{"session memory", tpm2.TPMRCSessionMemory, ErrHandleTableFull},
		{"scheme", tpm2.TPMRCScheme, ErrParameter},
		{"key size", tpm2.TPMRCKeySize, ErrParameter},
		{"mode", tpm2.TPMRCMode, ErrParameter},
		{"attributes", tpm2.TPMRCAttributes, ErrParameter},
		{"value", tpm2.TPMRCValue, ErrParameter},
		{"unknown falls through to device", tpm2.TPMRCFailure, ErrDevice},
		{"non-TPM error is a device fault", errors.New("connection reset"), ErrDevice},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("TPM2_Test", tc.err)
			if tc.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expected)
			assert.Contains(t, err.Error(), "TPM2_Test")
		})
	}
}

// Auth failures carried inside a session-indexed FMT1 response code
// must still classify as authorization faults.
func TestClassifyFMT1SessionError(t *testing.T) {
	// TPM_RC_AUTH_FAIL for session 1
	err := classify("TPM2_Unseal", tpm2.TPMRC(0x98e))
	assert.ErrorIs(t, err, ErrAuthFail)
}

// A missing persistent handle answers with a handle-indexed FMT1 code;
// anything else out of the device must not look like an absent handle.
func TestIsHandleAbsent(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		absent bool
	}{
		{"handle", tpm2.TPMRCHandle, true},
		{"value", tpm2.TPMRCValue, true},
		{"handle-indexed handle code", tpm2.TPMRC(0x18b), true},
		{"handle-indexed value code", tpm2.TPMRC(0x184), true},
		{"auth fail", tpm2.TPMRCAuthFail, false},
		{"device failure", tpm2.TPMRCFailure, false},
		{"transport fault", errors.New("connection reset"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.absent, isHandleAbsent(tc.err))
		})
	}
}

func TestClassifyWrapped(t *testing.T) {
	inner := classify("TPM2_Load", tpm2.TPMRCIntegrity)
	outer := fmt.Errorf("loading key: %w", inner)
	assert.ErrorIs(t, outer, ErrBlobFormat)
}
