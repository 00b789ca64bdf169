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

const (
	aesBlockSize = 16

	// maxCipherChunk bounds a single TPM2_EncryptDecrypt2 transfer to
	// the standard TPM2B_MAX_BUFFER capacity.
	maxCipherChunk = 1024
)

// opKind tags the variant payload of an Operation.
type opKind int

const (
	opSymmetric opKind = iota + 1
	opRSA
)

// Operation is the state of one stateful encrypt or decrypt pipeline:
// created by EncryptInit or DecryptInit, advanced by Update, consumed
// by Final. Any failure destroys the state; there is no resumption. A
// context runs at most one operation at a time.
type Operation struct {
	ctx     *Context
	kind    opKind
	decrypt bool
	done    bool

	handle Handle
	name   tpm2.TPM2BName
	auth   *secret.Buffer

	// symmetric state: block mode, running IV, partial-block buffer
	mode tpm2.TPMAlgID
	pad  bool
	iv   []byte
	buf  []byte

	// RSA state: accumulated single-part input and modulus size
	rsaHash tpm2.TPMAlgID
	rsaIn   []byte
	keySize int
}

// EncryptInit begins a stateful encryption under the object's key. The
// mechanism's hardware algorithm and mode are resolved here, and every
// mechanism/key mismatch (wrong key type, bad IV length, parameter on a
// parameterless mechanism) is surfaced now rather than at Final.
func (c *Context) EncryptInit(handle Handle, auth *secret.Buffer, mech Mechanism, param []byte) (*Operation, error) {
	return c.initOperation(handle, auth, mech, param, false)
}

// DecryptInit begins a stateful decryption under the object's key. See
// EncryptInit.
func (c *Context) DecryptInit(handle Handle, auth *secret.Buffer, mech Mechanism, param []byte) (*Operation, error) {
	return c.initOperation(handle, auth, mech, param, true)
}

func (c *Context) initOperation(handle Handle, auth *secret.Buffer, mech Mechanism, param []byte, decrypt bool) (*Operation, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.activeOp != nil {
		return nil, fmt.Errorf("%w: operation already active", ErrOperationState)
	}

	entry, ok := capabilityTable[mech]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrMechanismInvalid, uint(mech))
	}

	name, pub, err := c.readHandle(handle)
	if err != nil {
		return nil, err
	}

	op := &Operation{
		ctx:     c,
		decrypt: decrypt,
		handle:  handle,
		name:    name,
		auth:    auth.Clone(),
	}

	switch entry.class {
	case classSymCipher:
		if pub.Type != tpm2.TPMAlgSymCipher {
			op.destroy()
			return nil, fmt.Errorf("%w: mechanism requires a symmetric key", ErrParameter)
		}
		if len(param) != aesBlockSize {
			op.destroy()
			return nil, fmt.Errorf("%w: IV length %d, want %d", ErrParameter, len(param), aesBlockSize)
		}
		op.kind = opSymmetric
		op.mode = entry.symMode
		op.pad = entry.pad
		op.iv = append([]byte(nil), param...)

	case classRSACipher:
		if pub.Type != tpm2.TPMAlgRSA {
			op.destroy()
			return nil, fmt.Errorf("%w: mechanism requires an RSA key", ErrParameter)
		}
		if len(param) != 0 {
			op.destroy()
			return nil, fmt.Errorf("%w: unexpected mechanism parameter", ErrParameter)
		}
		rsaDetail, err := pub.Parameters.RSADetail()
		if err != nil {
			op.destroy()
			return nil, fmt.Errorf("%w: %s", ErrParameter, err)
		}
		op.kind = opRSA
		op.rsaHash = entry.hashAlg
		op.keySize = int(rsaDetail.KeyBits) / 8

	default:
		op.destroy()
		return nil, fmt.Errorf("%w: mechanism 0x%x not valid for encryption", ErrMechanismInvalid, uint(mech))
	}

	c.activeOp = op
	return op, nil
}

// Update consumes an input chunk and returns the corresponding output
// chunk, which may be empty while a partial block is buffered.
func (o *Operation) Update(in []byte) ([]byte, error) {
	if err := o.check(); err != nil {
		return nil, err
	}

	switch o.kind {
	case opSymmetric:
		o.buf = append(o.buf, in...)

		processable := len(o.buf) - len(o.buf)%aesBlockSize
		// Padded decryption holds the last full block back so Final can
		// strip the padding from it.
		if o.decrypt && o.pad && processable > 0 && processable == len(o.buf) {
			processable -= aesBlockSize
		}
		if processable == 0 {
			return nil, nil
		}

		out, err := o.cipher(o.buf[:processable])
		if err != nil {
			o.destroy()
			return nil, err
		}
		o.buf = append(o.buf[:0], o.buf[processable:]...)
		return out, nil

	case opRSA:
		if len(o.rsaIn)+len(in) > o.keySize {
			o.destroy()
			return nil, fmt.Errorf("%w: input exceeds RSA block", ErrDataInvalid)
		}
		o.rsaIn = append(o.rsaIn, in...)
		return nil, nil

	default:
		o.destroy()
		return nil, ErrOperationState
	}
}

// Final produces the last output chunk, which may be empty, and
// destroys the operation state.
func (o *Operation) Final() ([]byte, error) {
	if err := o.check(); err != nil {
		return nil, err
	}
	defer o.destroy()

	switch o.kind {
	case opSymmetric:
		return o.finalSymmetric()
	case opRSA:
		return o.finalRSA()
	default:
		return nil, ErrOperationState
	}
}

func (o *Operation) finalSymmetric() ([]byte, error) {
	tail := o.buf
	if !o.decrypt && o.pad {
		tail = pkcs7Pad(tail, aesBlockSize)
	}

	if len(tail) == 0 {
		if o.decrypt && o.pad {
			return nil, fmt.Errorf("%w: ciphertext shorter than one block", ErrDataInvalid)
		}
		return nil, nil
	}
	if o.mode == tpm2.TPMAlgCBC && len(tail)%aesBlockSize != 0 {
		return nil, fmt.Errorf("%w: length not a multiple of the block size", ErrDataInvalid)
	}

	out, err := o.cipher(tail)
	if err != nil {
		return nil, err
	}
	if o.decrypt && o.pad {
		return pkcs7Unpad(out, aesBlockSize)
	}
	return out, nil
}

func (o *Operation) finalRSA() ([]byte, error) {
	scheme := tpm2.TPMTRSADecrypt{
		Scheme: tpm2.TPMAlgOAEP,
		Details: tpm2.NewTPMUAsymScheme(
			tpm2.TPMAlgOAEP,
			&tpm2.TPMSEncSchemeOAEP{
				HashAlg: o.rsaHash,
			},
		),
	}

	if o.decrypt {
		rsp, err := tpm2.RSADecrypt{
			KeyHandle: tpm2.AuthHandle{
				Handle: o.handle,
				Name:   o.name,
				Auth:   o.ctx.authSession(o.auth),
			},
			CipherText: tpm2.TPM2BPublicKeyRSA{
				Buffer: o.rsaIn,
			},
			InScheme: scheme,
		}.Execute(o.ctx.transport)
		if err != nil {
			return nil, classify("TPM2_RSA_Decrypt", err)
		}
		return rsp.Message.Buffer, nil
	}

	rsp, err := tpm2.RSAEncrypt{
		KeyHandle: o.handle,
		Message: tpm2.TPM2BPublicKeyRSA{
			Buffer: o.rsaIn,
		},
		InScheme: scheme,
	}.Execute(o.ctx.transport)
	if err != nil {
		return nil, classify("TPM2_RSA_Encrypt", err)
	}
	return rsp.OutData.Buffer, nil
}

// cipher runs one or more TPM2_EncryptDecrypt2 calls over the input,
// chaining the hardware-returned IV between calls.
func (o *Operation) cipher(in []byte) ([]byte, error) {
	out := make([]byte, 0, len(in))
	for len(in) > 0 {
		chunk := in
		if len(chunk) > maxCipherChunk {
			chunk = chunk[:maxCipherChunk]
		}
		in = in[len(chunk):]

		rsp, err := tpm2.EncryptDecrypt2{
			KeyHandle: tpm2.AuthHandle{
				Handle: o.handle,
				Name:   o.name,
				Auth:   o.ctx.authSession(o.auth),
			},
			Message: tpm2.TPM2BMaxBuffer{
				Buffer: chunk,
			},
			Mode:    o.mode,
			Decrypt: o.decrypt,
			IV: tpm2.TPM2BIV{
				Buffer: o.iv,
			},
		}.Execute(o.ctx.transport)
		if err != nil {
			return nil, classify("TPM2_EncryptDecrypt2", err)
		}
		out = append(out, rsp.OutData.Buffer...)
		o.iv = rsp.IV.Buffer
	}
	return out, nil
}

// check enforces the init/update/final ordering.
func (o *Operation) check() error {
	if o == nil || o.done {
		return fmt.Errorf("%w: operation already completed", ErrOperationState)
	}
	if o.ctx.closed {
		o.destroy()
		return ErrClosed
	}
	if o.ctx.activeOp != o {
		return fmt.Errorf("%w: operation no longer active", ErrOperationState)
	}
	return nil
}

// destroy releases the operation state, zeroing buffered plaintext and
// the cloned auth value. Idempotent.
func (o *Operation) destroy() {
	if o == nil || o.done {
		return
	}
	o.done = true
	o.auth.Destroy()
	secret.Zero(o.buf)
	secret.Zero(o.rsaIn)
	o.buf = nil
	o.rsaIn = nil
	if o.ctx.activeOp == o {
		o.ctx.activeOp = nil
	}
}

// pkcs7Pad appends PKCS#7 padding, always adding at least one byte.
func pkcs7Pad(in []byte, blockSize int) []byte {
	n := blockSize - len(in)%blockSize
	out := make([]byte, len(in)+n)
	copy(out, in)
	for i := len(in); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// pkcs7Unpad strips and validates PKCS#7 padding.
func pkcs7Unpad(in []byte, blockSize int) ([]byte, error) {
	if len(in) == 0 || len(in)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length %d", ErrDataInvalid, len(in))
	}
	n := int(in[len(in)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDataInvalid)
	}
	for _, b := range in[len(in)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDataInvalid)
		}
	}
	return in[:len(in)-n], nil
}
