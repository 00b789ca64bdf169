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

// Package token maps the hardware key-management core's fault taxonomy
// onto the stable PKCS#11 return-code domain consumed by the calling
// API layer.
package token

import (
	"errors"

	"github.com/miekg/pkcs11"

	"github.com/jeremyhahn/go-tpm-token/pkg/tpm"
)

// RV deterministically maps an error from the tpm package onto a CK_RV
// value. Unrecognized errors map to CKR_FUNCTION_FAILED so new faults
// degrade to a generic failure rather than a misleading specific one.
func RV(err error) uint {
	switch {
	case err == nil:
		return pkcs11.CKR_OK
	case errors.Is(err, tpm.ErrArguments):
		return pkcs11.CKR_ARGUMENTS_BAD
	case errors.Is(err, tpm.ErrInit),
		errors.Is(err, tpm.ErrDevice):
		return pkcs11.CKR_DEVICE_ERROR
	case errors.Is(err, tpm.ErrHandleNotRegistered):
		return pkcs11.CKR_KEY_HANDLE_INVALID
	case errors.Is(err, tpm.ErrAuthFail):
		return pkcs11.CKR_PIN_INCORRECT
	case errors.Is(err, tpm.ErrMechanismInvalid):
		return pkcs11.CKR_MECHANISM_INVALID
	case errors.Is(err, tpm.ErrParameter):
		return pkcs11.CKR_MECHANISM_PARAM_INVALID
	case errors.Is(err, tpm.ErrBlobFormat),
		errors.Is(err, tpm.ErrDataInvalid):
		return pkcs11.CKR_DATA_INVALID
	case errors.Is(err, tpm.ErrHandleTableFull):
		return pkcs11.CKR_DEVICE_MEMORY
	case errors.Is(err, tpm.ErrSessionActive):
		return pkcs11.CKR_OPERATION_ACTIVE
	case errors.Is(err, tpm.ErrNoSession),
		errors.Is(err, tpm.ErrOperationState):
		return pkcs11.CKR_OPERATION_NOT_INITIALIZED
	default:
		return pkcs11.CKR_FUNCTION_FAILED
	}
}
