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
	"github.com/miekg/pkcs11"
)

// objectAttributes translates capability flags into hardware object
// attributes. Keys are created with SensitiveDataOrigin so the hardware
// generates the sensitive area itself; non-extractable objects are
// fixed to this device and parent.
func objectAttributes(attrs Attributes) tpm2.TPMAObject {
	return tpm2.TPMAObject{
		FixedTPM:            !attrs.Extractable,
		FixedParent:         !attrs.Extractable,
		SensitiveDataOrigin: true,
		UserWithAuth:        true,
		SignEncrypt:         attrs.Sign,
		Decrypt:             attrs.Decrypt,
	}
}

// buildTemplate turns a key-generation mechanism and capability flags
// into the hardware public template. Key-size and curve validation
// happens here so a bad request never reaches the device.
func buildTemplate(mech Mechanism, entry mechEntry, attrs Attributes) (tpm2.TPMTPublic, error) {
	switch mech {
	case pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN:
		return rsaTemplate(entry, attrs)
	case pkcs11.CKM_EC_KEY_PAIR_GEN:
		return eccTemplate(entry, attrs)
	case pkcs11.CKM_AES_KEY_GEN:
		return aesTemplate(entry, attrs)
	case pkcs11.CKM_GENERIC_SECRET_KEY_GEN:
		return secretTemplate(entry, attrs)
	default:
		return tpm2.TPMTPublic{}, fmt.Errorf("%w: 0x%x", ErrMechanismInvalid, uint(mech))
	}
}

func rsaTemplate(entry mechEntry, attrs Attributes) (tpm2.TPMTPublic, error) {
	bits := attrs.KeyBits
	if bits < int(entry.info.MinKeySize) || bits > int(entry.info.MaxKeySize) {
		return tpm2.TPMTPublic{}, fmt.Errorf("%w: RSA key size %d", ErrParameter, bits)
	}
	return tpm2.TPMTPublic{
		Type:             tpm2.TPMAlgRSA,
		NameAlg:          tpm2.TPMAlgSHA256,
		ObjectAttributes: objectAttributes(attrs),
		Parameters: tpm2.NewTPMUPublicParms(
			tpm2.TPMAlgRSA,
			&tpm2.TPMSRSAParms{
				// Scheme left null: the signing or decryption scheme is
				// chosen per operation from the mechanism.
				Scheme: tpm2.TPMTRSAScheme{
					Scheme: tpm2.TPMAlgNull,
				},
				Symmetric: tpm2.TPMTSymDefObject{
					Algorithm: tpm2.TPMAlgNull,
				},
				KeyBits: tpm2.TPMKeyBits(bits),
			},
		),
	}, nil
}

func eccTemplate(entry mechEntry, attrs Attributes) (tpm2.TPMTPublic, error) {
	var curve tpm2.TPMECCCurve
	switch attrs.KeyBits {
	case 256:
		curve = tpm2.TPMECCNistP256
	case 384:
		curve = tpm2.TPMECCNistP384
	case 521:
		curve = tpm2.TPMECCNistP521
	default:
		return tpm2.TPMTPublic{}, fmt.Errorf("%w: unsupported curve size %d", ErrParameter, attrs.KeyBits)
	}
	return tpm2.TPMTPublic{
		Type:             tpm2.TPMAlgECC,
		NameAlg:          tpm2.TPMAlgSHA256,
		ObjectAttributes: objectAttributes(attrs),
		Parameters: tpm2.NewTPMUPublicParms(
			tpm2.TPMAlgECC,
			&tpm2.TPMSECCParms{
				CurveID: curve,
				Scheme: tpm2.TPMTECCScheme{
					Scheme: tpm2.TPMAlgNull,
				},
			},
		),
	}, nil
}

func aesTemplate(entry mechEntry, attrs Attributes) (tpm2.TPMTPublic, error) {
	byteLen := attrs.KeyBits / 8
	if attrs.KeyBits%8 != 0 || byteLen < int(entry.info.MinKeySize) || byteLen > int(entry.info.MaxKeySize) {
		return tpm2.TPMTPublic{}, fmt.Errorf("%w: AES key size %d bits", ErrParameter, attrs.KeyBits)
	}
	a := objectAttributes(attrs)
	// Symmetric objects drive both directions of the cipher.
	a.SignEncrypt = true
	a.Decrypt = true
	return tpm2.TPMTPublic{
		Type:             tpm2.TPMAlgSymCipher,
		NameAlg:          tpm2.TPMAlgSHA256,
		ObjectAttributes: a,
		Parameters: tpm2.NewTPMUPublicParms(
			tpm2.TPMAlgSymCipher,
			&tpm2.TPMSSymCipherParms{
				Sym: tpm2.TPMTSymDefObject{
					Algorithm: tpm2.TPMAlgAES,
					// Mode left null so each operation selects its own
					// block mode from the mechanism.
					Mode: tpm2.NewTPMUSymMode(tpm2.TPMAlgAES, tpm2.TPMAlgNull),
					KeyBits: tpm2.NewTPMUSymKeyBits(
						tpm2.TPMAlgAES,
						tpm2.TPMKeyBits(attrs.KeyBits),
					),
				},
			},
		),
	}, nil
}

func secretTemplate(entry mechEntry, attrs Attributes) (tpm2.TPMTPublic, error) {
	byteLen := attrs.KeyBits / 8
	if attrs.KeyBits%8 != 0 || byteLen < int(entry.info.MinKeySize) || byteLen > int(entry.info.MaxKeySize) {
		return tpm2.TPMTPublic{}, fmt.Errorf("%w: secret key size %d bits", ErrParameter, attrs.KeyBits)
	}
	a := objectAttributes(attrs)
	a.SignEncrypt = false
	a.Decrypt = false
	return tpm2.TPMTPublic{
		Type:             tpm2.TPMAlgKeyedHash,
		NameAlg:          tpm2.TPMAlgSHA256,
		ObjectAttributes: a,
		Parameters: tpm2.NewTPMUPublicParms(
			tpm2.TPMAlgKeyedHash,
			&tpm2.TPMSKeyedHashParms{
				Scheme: tpm2.TPMTKeyedHashScheme{
					Scheme: tpm2.TPMAlgNull,
				},
			},
		),
	}, nil
}

// sealTemplate is the keyedhash container template used by the sealing
// subsystem. With caller-supplied data the sensitive area does not
// originate inside the hardware; an empty container instead has the
// hardware seed it, since a keyedhash create requires one or the other.
func sealTemplate(hardwareOrigin bool) tpm2.TPMTPublic {
	return tpm2.TPMTPublic{
		Type:    tpm2.TPMAlgKeyedHash,
		NameAlg: tpm2.TPMAlgSHA256,
		ObjectAttributes: tpm2.TPMAObject{
			FixedTPM:            true,
			FixedParent:         true,
			UserWithAuth:        true,
			SensitiveDataOrigin: hardwareOrigin,
		},
		Parameters: tpm2.NewTPMUPublicParms(
			tpm2.TPMAlgKeyedHash,
			&tpm2.TPMSKeyedHashParms{
				Scheme: tpm2.TPMTKeyedHashScheme{
					Scheme: tpm2.TPMAlgNull,
				},
			},
		),
	}
}
