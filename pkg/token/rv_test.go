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

package token

import (
	"errors"
	"fmt"
	"testing"

	"github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-tpm-token/pkg/tpm"
)

func TestRV(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want uint
	}{
		{"nil", nil, pkcs11.CKR_OK},
		{"arguments", tpm.ErrArguments, pkcs11.CKR_ARGUMENTS_BAD},
		{"init", tpm.ErrInit, pkcs11.CKR_DEVICE_ERROR},
		{"device", tpm.ErrDevice, pkcs11.CKR_DEVICE_ERROR},
		{"handle not registered", tpm.ErrHandleNotRegistered, pkcs11.CKR_KEY_HANDLE_INVALID},
		{"auth fail", tpm.ErrAuthFail, pkcs11.CKR_PIN_INCORRECT},
		{"mechanism invalid", tpm.ErrMechanismInvalid, pkcs11.CKR_MECHANISM_INVALID},
		{"parameter", tpm.ErrParameter, pkcs11.CKR_MECHANISM_PARAM_INVALID},
		{"blob format", tpm.ErrBlobFormat, pkcs11.CKR_DATA_INVALID},
		{"data invalid", tpm.ErrDataInvalid, pkcs11.CKR_DATA_INVALID},
		{"handle table full", tpm.ErrHandleTableFull, pkcs11.CKR_DEVICE_MEMORY},
		{"session active", tpm.ErrSessionActive, pkcs11.CKR_OPERATION_ACTIVE},
		{"no session", tpm.ErrNoSession, pkcs11.CKR_OPERATION_NOT_INITIALIZED},
		{"operation state", tpm.ErrOperationState, pkcs11.CKR_OPERATION_NOT_INITIALIZED},
		{"closed", tpm.ErrClosed, pkcs11.CKR_FUNCTION_FAILED},
		{"unknown", errors.New("boom"), pkcs11.CKR_FUNCTION_FAILED},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RV(tc.err))
		})
	}
}

func TestRVUnwrapsChains(t *testing.T) {
	err := fmt.Errorf("TPM2_Load: %w: truncated public area", tpm.ErrBlobFormat)
	assert.Equal(t, uint(pkcs11.CKR_DATA_INVALID), RV(err))

	err = fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", tpm.ErrAuthFail))
	assert.Equal(t, uint(pkcs11.CKR_PIN_INCORRECT), RV(err))
}
