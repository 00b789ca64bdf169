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

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// Sign signs a caller-supplied digest with the object's key under the
// given signing mechanism. The signature is returned in standard token
// wire form: the raw modulus-length block for RSASSA and RSA-PSS, and
// the fixed-width big-endian r||s concatenation for ECDSA.
func (c *Context) Sign(handle Handle, auth *secret.Buffer, mech Mechanism, digest []byte) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}

	entry, err := lookupMechanism(mech, classSign)
	if err != nil {
		return nil, err
	}
	hashAlg, err := resolveHashAlg(entry, len(digest))
	if err != nil {
		return nil, err
	}

	name, pub, err := c.readHandle(handle)
	if err != nil {
		return nil, err
	}
	sigAlg, err := signScheme(pub.Type, entry)
	if err != nil {
		return nil, err
	}

	rsp, err := tpm2.Sign{
		KeyHandle: tpm2.AuthHandle{
			Handle: handle,
			Name:   name,
			Auth:   c.authSession(auth),
		},
		Digest: tpm2.TPM2BDigest{
			Buffer: digest,
		},
		InScheme: tpm2.TPMTSigScheme{
			Scheme: sigAlg,
			Details: tpm2.NewTPMUSigScheme(
				sigAlg, &tpm2.TPMSSchemeHash{
					HashAlg: hashAlg,
				}),
		},
		Validation: tpm2.TPMTTKHashCheck{
			Tag: tpm2.TPMSTHashCheck,
		},
	}.Execute(c.transport)
	if err != nil {
		return nil, classify("TPM2_Sign", err)
	}

	return encodeSignature(&rsp.Signature, sigAlg, pub)
}

// Verify checks a signature against a digest using the object's public
// key. A bad signature is a normal negative outcome, returned as
// (false, nil); only transport and parameter faults produce an error.
func (c *Context) Verify(handle Handle, mech Mechanism, digest, signature []byte) (bool, error) {
	if c.closed {
		return false, ErrClosed
	}

	entry, err := lookupMechanism(mech, classSign)
	if err != nil {
		return false, err
	}
	hashAlg, err := resolveHashAlg(entry, len(digest))
	if err != nil {
		return false, err
	}

	_, pub, err := c.readHandle(handle)
	if err != nil {
		return false, err
	}
	sigAlg, err := signScheme(pub.Type, entry)
	if err != nil {
		return false, err
	}
	sig, err := decodeSignature(signature, sigAlg, hashAlg, pub)
	if err != nil {
		return false, err
	}

	_, err = tpm2.VerifySignature{
		KeyHandle: handle,
		Digest: tpm2.TPM2BDigest{
			Buffer: digest,
		},
		Signature: *sig,
	}.Execute(c.transport)
	if err != nil {
		if errors.Is(err, tpm2.TPMRCSignature) {
			return false, nil
		}
		return false, classify("TPM2_VerifySignature", err)
	}
	return true, nil
}

// resolveHashAlg returns the mechanism's pinned hash algorithm, or
// infers one from the digest length for raw-digest mechanisms.
func resolveHashAlg(entry mechEntry, digestLen int) (tpm2.TPMAlgID, error) {
	if entry.hashAlg != tpm2.TPMAlgNull {
		return entry.hashAlg, nil
	}
	return hashAlgForDigest(digestLen)
}

// signScheme maps the key type and mechanism onto the hardware signing
// scheme, rejecting mechanism/key mismatches before any command runs.
func signScheme(keyType tpm2.TPMAlgID, entry mechEntry) (tpm2.TPMAlgID, error) {
	switch keyType {
	case tpm2.TPMAlgRSA:
		if entry.pss {
			return tpm2.TPMAlgRSAPSS, nil
		}
		return tpm2.TPMAlgRSASSA, nil
	case tpm2.TPMAlgECC:
		if entry.pss {
			return 0, fmt.Errorf("%w: PSS mechanism with EC key", ErrParameter)
		}
		return tpm2.TPMAlgECDSA, nil
	default:
		return 0, fmt.Errorf("%w: key type 0x%x cannot sign", ErrParameter, uint16(keyType))
	}
}

// encodeSignature flattens a hardware signature into token wire form.
func encodeSignature(sig *tpm2.TPMTSignature, sigAlg tpm2.TPMAlgID, pub *tpm2.TPMTPublic) ([]byte, error) {
	switch sigAlg {
	case tpm2.TPMAlgRSASSA:
		rsa, err := sig.Signature.RSASSA()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDevice, err)
		}
		return rsa.Sig.Buffer, nil
	case tpm2.TPMAlgRSAPSS:
		rsa, err := sig.Signature.RSAPSS()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDevice, err)
		}
		return rsa.Sig.Buffer, nil
	case tpm2.TPMAlgECDSA:
		ecc, err := sig.Signature.ECDSA()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDevice, err)
		}
		n, err := eccByteLen(pub)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 2*n)
		copy(out[n-len(ecc.SignatureR.Buffer):n], ecc.SignatureR.Buffer)
		copy(out[2*n-len(ecc.SignatureS.Buffer):], ecc.SignatureS.Buffer)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: signature scheme 0x%x", ErrParameter, uint16(sigAlg))
	}
}

// decodeSignature rebuilds a hardware signature structure from token
// wire form for verification.
func decodeSignature(raw []byte, sigAlg, hashAlg tpm2.TPMAlgID, pub *tpm2.TPMTPublic) (*tpm2.TPMTSignature, error) {
	switch sigAlg {
	case tpm2.TPMAlgRSASSA, tpm2.TPMAlgRSAPSS:
		return &tpm2.TPMTSignature{
			SigAlg: sigAlg,
			Signature: tpm2.NewTPMUSignature[*tpm2.TPMSSignatureRSA](
				sigAlg,
				&tpm2.TPMSSignatureRSA{
					Hash: hashAlg,
					Sig: tpm2.TPM2BPublicKeyRSA{
						Buffer: raw,
					},
				},
			),
		}, nil
	case tpm2.TPMAlgECDSA:
		n, err := eccByteLen(pub)
		if err != nil {
			return nil, err
		}
		if len(raw) != 2*n {
			return nil, fmt.Errorf("%w: ECDSA signature length %d, want %d", ErrParameter, len(raw), 2*n)
		}
		return &tpm2.TPMTSignature{
			SigAlg: tpm2.TPMAlgECDSA,
			Signature: tpm2.NewTPMUSignature[*tpm2.TPMSSignatureECC](
				tpm2.TPMAlgECDSA,
				&tpm2.TPMSSignatureECC{
					Hash: hashAlg,
					SignatureR: tpm2.TPM2BECCParameter{
						Buffer: raw[:n],
					},
					SignatureS: tpm2.TPM2BECCParameter{
						Buffer: raw[n:],
					},
				},
			),
		}, nil
	default:
		return nil, fmt.Errorf("%w: signature scheme 0x%x", ErrParameter, uint16(sigAlg))
	}
}

// eccByteLen returns the per-coordinate signature width for the key's
// curve.
func eccByteLen(pub *tpm2.TPMTPublic) (int, error) {
	ecc, err := pub.Parameters.ECCDetail()
	if err != nil {
		return 0, fmt.Errorf("%w: not an EC key: %s", ErrParameter, err)
	}
	switch ecc.CurveID {
	case tpm2.TPMECCNistP256:
		return 32, nil
	case tpm2.TPMECCNistP384:
		return 48, nil
	case tpm2.TPMECCNistP521:
		return 66, nil
	default:
		return 0, fmt.Errorf("%w: curve 0x%x", ErrParameter, uint16(ecc.CurveID))
	}
}
