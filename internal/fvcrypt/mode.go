package fvcrypt

import (
	"errors"
	"fmt"
)

// FVCBC is the viewer's homebrew propagating-CBC construction over SAFER
// SK-128. It is regular CBC except that the feedback register is the IV XORed
// with every ciphertext block seen so far (ordinary PCBC folds plaintext in
// instead). Trailing input shorter than a block is finished in block-sized
// CFB keyed with the running feedback, so ciphertext length always equals
// plaintext length.
type FVCBC struct {
	cipher   *Safer
	feedback [SaferBlockSize]byte
	state    fvcbcState
}

type fvcbcState int

const (
	stateInitialized fvcbcState = iota
	stateEncrypting
	stateDecrypting
)

var errDirectionMixed = errors.New("fvcrypt: cannot mix encryption and decryption on one context")

// NewFVCBC builds a context from a 16-byte key and an 8-byte IV.
func NewFVCBC(key, iv []byte) (*FVCBC, error) {
	if len(iv) != SaferBlockSize {
		return nil, fmt.Errorf("fvcrypt: iv must be %d bytes, got %d", SaferBlockSize, len(iv))
	}
	cipher, err := NewSafer(key)
	if err != nil {
		return nil, err
	}
	m := &FVCBC{cipher: cipher}
	copy(m.feedback[:], iv)
	return m, nil
}

// NewFVCBCFromPassphrase derives key and IV from a passphrase and builds a
// context.
func NewFVCBCFromPassphrase(passphrase string) (*FVCBC, error) {
	key := DeriveKey(passphrase)
	iv, err := DeriveIV(key)
	if err != nil {
		return nil, err
	}
	return NewFVCBC(key, iv)
}

// Encrypt transforms data, which must be a whole number of blocks. Calls
// accumulate: the feedback carries across invocations on one context.
func (m *FVCBC) Encrypt(data []byte) ([]byte, error) {
	if len(data)%SaferBlockSize != 0 {
		return nil, errors.New("fvcrypt: input is not a multiple of the block size; use EncryptAutofinish for the final partial block")
	}
	if m.state == stateDecrypting {
		return nil, errDirectionMixed
	}
	m.state = stateEncrypting

	out := make([]byte, len(data))
	var block [SaferBlockSize]byte
	for off := 0; off < len(data); off += SaferBlockSize {
		for i := 0; i < SaferBlockSize; i++ {
			block[i] = data[off+i] ^ m.feedback[i]
		}
		m.cipher.EncryptBlock(out[off:off+SaferBlockSize], block[:])
		for i := 0; i < SaferBlockSize; i++ {
			m.feedback[i] ^= out[off+i]
		}
	}
	return out, nil
}

// Decrypt transforms data, which must be a whole number of blocks.
func (m *FVCBC) Decrypt(data []byte) ([]byte, error) {
	if len(data)%SaferBlockSize != 0 {
		return nil, errors.New("fvcrypt: input is not a multiple of the block size; use DecryptAutofinish for the final partial block")
	}
	if m.state == stateEncrypting {
		return nil, errDirectionMixed
	}
	m.state = stateDecrypting

	out := make([]byte, len(data))
	for off := 0; off < len(data); off += SaferBlockSize {
		m.cipher.DecryptBlock(out[off:off+SaferBlockSize], data[off:off+SaferBlockSize])
		for i := 0; i < SaferBlockSize; i++ {
			out[off+i] ^= m.feedback[i]
			m.feedback[i] ^= data[off+i]
		}
	}
	return out, nil
}

// EncryptAutofinish encrypts data of any length, finishing a trailing partial
// block in CFB keyed with the current feedback.
func (m *FVCBC) EncryptAutofinish(data []byte) ([]byte, error) {
	aligned, tail := splitAligned(data)
	out, err := m.Encrypt(aligned)
	if err != nil {
		return nil, err
	}
	if len(tail) == 0 {
		return out, nil
	}
	return append(out, m.finishTail(tail)...), nil
}

// DecryptAutofinish decrypts data of any length, finishing a trailing partial
// block in CFB keyed with the current feedback.
func (m *FVCBC) DecryptAutofinish(data []byte) ([]byte, error) {
	aligned, tail := splitAligned(data)
	out, err := m.Decrypt(aligned)
	if err != nil {
		return nil, err
	}
	if len(tail) == 0 {
		return out, nil
	}
	return append(out, m.finishTail(tail)...), nil
}

// finishTail applies the CFB finisher: a single keystream block generated
// from the running feedback. XOR makes it direction-agnostic.
func (m *FVCBC) finishTail(tail []byte) []byte {
	var keystream [SaferBlockSize]byte
	m.cipher.EncryptBlock(keystream[:], m.feedback[:])
	out := make([]byte, len(tail))
	for i := range tail {
		out[i] = tail[i] ^ keystream[i]
	}
	return out
}

func splitAligned(data []byte) (aligned, tail []byte) {
	cut := len(data) / SaferBlockSize * SaferBlockSize
	return data[:cut], data[cut:]
}
