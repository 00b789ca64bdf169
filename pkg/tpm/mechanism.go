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
	"sort"

	"github.com/google/go-tpm/tpm2"
	"github.com/miekg/pkcs11"
)

// Mechanism is a standard PKCS#11 mechanism identifier (CKM_*).
type Mechanism uint

// mechClass partitions the capability table by the hardware pipeline a
// mechanism drives.
type mechClass int

const (
	classKeyGen mechClass = iota + 1
	classSign
	classSymCipher
	classRSACipher
)

// mechEntry maps a mechanism onto hardware algorithm parameters and the
// supported key-size range. The same table backs both operation
// validation and the capability-query calls.
type mechEntry struct {
	info    pkcs11.MechanismInfo
	class   mechClass
	hashAlg tpm2.TPMAlgID // TPMAlgNull: infer from digest length
	pss     bool          // RSASSA-PSS instead of PKCS#1 v1.5
	symMode tpm2.TPMAlgID // symmetric block mode for classSymCipher
	pad     bool          // PKCS#7 padding handled in software
}

var capabilityTable = map[Mechanism]mechEntry{
	// Key generation. RSA/EC sizes in bits, AES and generic secrets in
	// bytes, per PKCS#11 convention.
	pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN: {
		class: classKeyGen,
		info:  pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_GENERATE_KEY_PAIR},
	},
	pkcs11.CKM_EC_KEY_PAIR_GEN: {
		class: classKeyGen,
		info:  pkcs11.MechanismInfo{MinKeySize: 256, MaxKeySize: 521, Flags: pkcs11.CKF_HW | pkcs11.CKF_GENERATE_KEY_PAIR},
	},
	pkcs11.CKM_AES_KEY_GEN: {
		class: classKeyGen,
		info:  pkcs11.MechanismInfo{MinKeySize: 16, MaxKeySize: 32, Flags: pkcs11.CKF_HW | pkcs11.CKF_GENERATE},
	},
	pkcs11.CKM_GENERIC_SECRET_KEY_GEN: {
		class: classKeyGen,
		info:  pkcs11.MechanismInfo{MinKeySize: 16, MaxKeySize: 64, Flags: pkcs11.CKF_HW | pkcs11.CKF_GENERATE},
	},

	// RSA signing over caller-supplied digests.
	pkcs11.CKM_RSA_PKCS: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgNull,
		info:    pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},
	pkcs11.CKM_SHA256_RSA_PKCS: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgSHA256,
		info:    pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},
	pkcs11.CKM_SHA384_RSA_PKCS: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgSHA384,
		info:    pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},
	pkcs11.CKM_SHA512_RSA_PKCS: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgSHA512,
		info:    pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},
	pkcs11.CKM_RSA_PKCS_PSS: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgNull,
		pss:     true,
		info:    pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},
	pkcs11.CKM_SHA256_RSA_PKCS_PSS: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgSHA256,
		pss:     true,
		info:    pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},

	// ECDSA signing over caller-supplied digests.
	pkcs11.CKM_ECDSA: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgNull,
		info:    pkcs11.MechanismInfo{MinKeySize: 256, MaxKeySize: 521, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},
	pkcs11.CKM_ECDSA_SHA256: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgSHA256,
		info:    pkcs11.MechanismInfo{MinKeySize: 256, MaxKeySize: 521, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},
	pkcs11.CKM_ECDSA_SHA384: {
		class:   classSign,
		hashAlg: tpm2.TPMAlgSHA384,
		info:    pkcs11.MechanismInfo{MinKeySize: 256, MaxKeySize: 521, Flags: pkcs11.CKF_HW | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY},
	},

	// Symmetric cipher modes driven through the stateful engine.
	pkcs11.CKM_AES_CBC: {
		class:   classSymCipher,
		symMode: tpm2.TPMAlgCBC,
		info:    pkcs11.MechanismInfo{MinKeySize: 16, MaxKeySize: 32, Flags: pkcs11.CKF_HW | pkcs11.CKF_ENCRYPT | pkcs11.CKF_DECRYPT},
	},
	pkcs11.CKM_AES_CBC_PAD: {
		class:   classSymCipher,
		symMode: tpm2.TPMAlgCBC,
		pad:     true,
		info:    pkcs11.MechanismInfo{MinKeySize: 16, MaxKeySize: 32, Flags: pkcs11.CKF_HW | pkcs11.CKF_ENCRYPT | pkcs11.CKF_DECRYPT},
	},
	pkcs11.CKM_AES_CFB128: {
		class:   classSymCipher,
		symMode: tpm2.TPMAlgCFB,
		info:    pkcs11.MechanismInfo{MinKeySize: 16, MaxKeySize: 32, Flags: pkcs11.CKF_HW | pkcs11.CKF_ENCRYPT | pkcs11.CKF_DECRYPT},
	},
	pkcs11.CKM_AES_CTR: {
		class:   classSymCipher,
		symMode: tpm2.TPMAlgCTR,
		info:    pkcs11.MechanismInfo{MinKeySize: 16, MaxKeySize: 32, Flags: pkcs11.CKF_HW | pkcs11.CKF_ENCRYPT | pkcs11.CKF_DECRYPT},
	},

	// RSA encryption, single-part.
	pkcs11.CKM_RSA_PKCS_OAEP: {
		class:   classRSACipher,
		hashAlg: tpm2.TPMAlgSHA256,
		info:    pkcs11.MechanismInfo{MinKeySize: 2048, MaxKeySize: 4096, Flags: pkcs11.CKF_HW | pkcs11.CKF_ENCRYPT | pkcs11.CKF_DECRYPT},
	},
}

// Mechanisms returns the supported mechanism identifiers in ascending
// order, answering the token's C_GetMechanismList projection.
func (c *Context) Mechanisms() []Mechanism {
	mechs := make([]Mechanism, 0, len(capabilityTable))
	for m := range capabilityTable {
		mechs = append(mechs, m)
	}
	sort.Slice(mechs, func(i, j int) bool { return mechs[i] < mechs[j] })
	return mechs
}

// MechanismInfo returns the key-size range and capability flags for a
// mechanism, or ErrMechanismInvalid when it is not supported.
func (c *Context) MechanismInfo(m Mechanism) (pkcs11.MechanismInfo, error) {
	entry, ok := capabilityTable[m]
	if !ok {
		return pkcs11.MechanismInfo{}, fmt.Errorf("%w: 0x%x", ErrMechanismInvalid, uint(m))
	}
	return entry.info, nil
}

// lookupMechanism resolves a mechanism of the expected class.
func lookupMechanism(m Mechanism, class mechClass) (mechEntry, error) {
	entry, ok := capabilityTable[m]
	if !ok {
		return mechEntry{}, fmt.Errorf("%w: 0x%x", ErrMechanismInvalid, uint(m))
	}
	if entry.class != class {
		return mechEntry{}, fmt.Errorf("%w: mechanism 0x%x not valid for this operation", ErrMechanismInvalid, uint(m))
	}
	return entry, nil
}

// hashAlgForDigest infers the hash algorithm from a raw digest length
// for mechanisms that do not pin one (CKM_RSA_PKCS, CKM_ECDSA).
func hashAlgForDigest(digestLen int) (tpm2.TPMAlgID, error) {
	switch digestLen {
	case 20:
		return tpm2.TPMAlgSHA1, nil
	case 32:
		return tpm2.TPMAlgSHA256, nil
	case 48:
		return tpm2.TPMAlgSHA384, nil
	case 64:
		return tpm2.TPMAlgSHA512, nil
	default:
		return 0, fmt.Errorf("%w: cannot infer hash from %d-byte digest", ErrParameter, digestLen)
	}
}
