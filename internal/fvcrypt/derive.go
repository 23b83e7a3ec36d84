package fvcrypt

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Scheme constants recovered from the viewer binaries. Everything that would
// change for another deployment of the same product lives in this file.
const (
	// offlineLicensePassphrase decrypts the master passphrase embedded in an
	// offline license file.
	offlineLicensePassphrase = "0b8b6a4650b148a1975331bc2da63f93"
	// passwordPassphraseSuffix is appended to the master passphrase before
	// hashing to obtain the passphrase that guards the book password.
	passwordPassphraseSuffix = "885d813a749641888o2b414729bb0dcb"
)

// DeriveKey maps a passphrase to a SAFER user key: RIPEMD-256 truncated to
// the key length.
func DeriveKey(passphrase string) []byte {
	digest := Ripemd256Sum([]byte(passphrase))
	return digest[:SaferKeySize]
}

// DeriveIV computes the scheme IV for a key: the ECB encryption of a block of
// 0xFF bytes under that key.
func DeriveIV(key []byte) ([]byte, error) {
	cipher, err := NewSafer(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, SaferBlockSize)
	for i := range iv {
		iv[i] = 0xFF
	}
	cipher.EncryptBlock(iv, iv)
	return iv, nil
}

// DoubleMD5 is the viewer's passphrase combiner: md5(data || data) as a lower
// case hex string.
func DoubleMD5(data []byte) string {
	h := md5.New()
	h.Write(data)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// passwordPassphrase derives the passphrase protecting the book password from
// the license master passphrase.
func passwordPassphrase(masterPassphrase string) string {
	return DoubleMD5([]byte(masterPassphrase + passwordPassphraseSuffix))
}

// ObjectPassphrase derives the per-object passphrase from the book access
// code and the object's manifest position, so identical content at two
// positions never shares a keystream.
func ObjectPassphrase(accessCode string, chapter, page, object int) string {
	return DoubleMD5(fmt.Appendf(nil, "%s_%d_%d_%d", accessCode, chapter, page, object))
}
