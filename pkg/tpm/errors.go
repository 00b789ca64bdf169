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

	"github.com/google/go-tpm/tpm2"
)

// Sentinel errors forming the fault taxonomy surfaced to the calling
// token layer. Every public operation wraps its failures in exactly one
// of these so the caller can map them onto a stable return-code domain.
var (
	// ErrInit is returned when the hardware transport cannot be reached
	// or initialized.
	ErrInit = errors.New("tpm: failed to initialize hardware transport")

	// ErrDevice is returned on a transport or device fault. Never
	// recovered internally; no operation is retried.
	ErrDevice = errors.New("tpm: device error")

	// ErrAuthFail is returned when a presented authorization value is
	// rejected by the hardware. Distinct from ErrDevice so callers can
	// tell a wrong PIN from a broken device.
	ErrAuthFail = errors.New("tpm: authorization failed")

	// ErrBlobFormat is returned when a public, private or handle blob
	// is malformed or fails its integrity check.
	ErrBlobFormat = errors.New("tpm: malformed blob")

	// ErrMechanismInvalid is returned when no hardware mapping exists
	// for the requested mechanism.
	ErrMechanismInvalid = errors.New("tpm: mechanism not supported")

	// ErrParameter is returned when mechanism parameters are
	// inconsistent with the key, detected at init time.
	ErrParameter = errors.New("tpm: invalid mechanism parameter")

	// ErrArguments is returned for malformed caller arguments.
	ErrArguments = errors.New("tpm: bad arguments")

	// ErrHandleTableFull is returned when the context's transient
	// handle tracking limit is exceeded.
	ErrHandleTableFull = errors.New("tpm: handle table full")

	// ErrHandleNotRegistered is returned when flushing a handle the
	// context is not tracking.
	ErrHandleNotRegistered = errors.New("tpm: handle not registered")

	// ErrSessionActive is returned when starting an authorization
	// session while one is already active.
	ErrSessionActive = errors.New("tpm: authorization session already active")

	// ErrNoSession is returned when stopping an authorization session
	// while none is active.
	ErrNoSession = errors.New("tpm: no authorization session active")

	// ErrDataInvalid is returned when ciphertext or plaintext presented
	// to the crypto engine is structurally invalid, such as a bad
	// padding block or a non-block-aligned final length.
	ErrDataInvalid = errors.New("tpm: invalid data")

	// ErrOperationState is returned when a stateful crypto operation is
	// driven out of its init/update/final life-cycle order.
	ErrOperationState = errors.New("tpm: operation called out of sequence")

	// ErrPrimaryNotFound is returned when no primary key has been
	// provisioned at the configured persistent handle.
	ErrPrimaryNotFound = errors.New("tpm: primary key not provisioned")

	// ErrClosed is returned when using a context after Close.
	ErrClosed = errors.New("tpm: context closed")
)

// isHandleAbsent reports whether a raw hardware error means the
// addressed handle simply is not there, as opposed to the device
// failing to answer. Checked before classify, which folds the response
// code into one of the sentinels above and discards it.
func isHandleAbsent(err error) bool {
	return errors.Is(err, tpm2.TPMRCHandle) || errors.Is(err, tpm2.TPMRCValue)
}

// classify maps a raw hardware response code onto the fault taxonomy.
// The op string names the failing command for diagnostics. Response
// codes that do not indicate an authorization or format fault are
// device faults by default.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tpm2.TPMRCAuthFail),
		errors.Is(err, tpm2.TPMRCBadAuth),
		errors.Is(err, tpm2.TPMRCPolicyFail),
		errors.Is(err, tpm2.TPMRCLockout):
		return fmt.Errorf("%w: %s: %s", ErrAuthFail, op, err)
	case errors.Is(err, tpm2.TPMRCIntegrity),
		errors.Is(err, tpm2.TPMRCInsufficient),
		errors.Is(err, tpm2.TPMRCSize),
		errors.Is(err, tpm2.TPMRCSensitive):
		return fmt.Errorf("%w: %s: %s", ErrBlobFormat, op, err)
	case errors.Is(err, tpm2.TPMRCObjectMemory),
		errors.Is(err, tpm2.TPMRCSessionMemory),
		errors.Is(err, tpm2.TPMRCMemory):
		return fmt.Errorf("%w: %s: %s", ErrHandleTableFull, op, err)
	case errors.Is(err, tpm2.TPMRCScheme),
		errors.Is(err, tpm2.TPMRCKeySize),
		errors.Is(err, tpm2.TPMRCMode),
		errors.Is(err, tpm2.TPMRCAttributes),
		errors.Is(err, tpm2.TPMRCValue):
		return fmt.Errorf("%w: %s: %s", ErrParameter, op, err)
	default:
		return fmt.Errorf("%w: %s: %s", ErrDevice, op, err)
	}
}
