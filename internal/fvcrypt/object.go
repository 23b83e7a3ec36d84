package fvcrypt

import (
	"bytes"
	"fmt"
	"io"

	"fvrip/internal/services"
)

// EncryptedHead is how much of an object file the viewer actually encrypts.
// Anything beyond the first 8 KiB is stored in the clear.
const EncryptedHead = 8192

// DecryptObject decrypts one object stream under the given passphrase. Only
// the leading EncryptedHead bytes are ciphertext; the remainder is copied
// through untouched.
func DecryptObject(passphrase string, src io.Reader, dst io.Writer) error {
	return transformObject(passphrase, src, dst, func(m *FVCBC, head []byte) ([]byte, error) {
		return m.DecryptAutofinish(head)
	})
}

// EncryptObject is the inverse of DecryptObject.
func EncryptObject(passphrase string, src io.Reader, dst io.Writer) error {
	return transformObject(passphrase, src, dst, func(m *FVCBC, head []byte) ([]byte, error) {
		return m.EncryptAutofinish(head)
	})
}

func transformObject(passphrase string, src io.Reader, dst io.Writer, apply func(*FVCBC, []byte) ([]byte, error)) error {
	mode, err := NewFVCBCFromPassphrase(passphrase)
	if err != nil {
		return err
	}

	head := make([]byte, EncryptedHead)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read object head: %w", err)
	}

	out, err := apply(mode, head[:n])
	if err != nil {
		return err
	}
	if _, err := dst.Write(out); err != nil {
		return fmt.Errorf("write object head: %w", err)
	}

	if n == EncryptedHead {
		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("copy object remainder: %w", err)
		}
	}
	return nil
}

// DecryptObjectBytes is the in-memory convenience form of DecryptObject.
func DecryptObjectBytes(passphrase string, data []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(data))
	if err := DecryptObject(passphrase, bytes.NewReader(data), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// EncryptObjectBytes is the in-memory convenience form of EncryptObject.
func EncryptObjectBytes(passphrase string, data []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(data))
	if err := EncryptObject(passphrase, bytes.NewReader(data), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// payloadMagics maps declared content types to the file signatures a correct
// decryption must produce. An unexpected head is the primary wrong-key
// signal, so it surfaces as a cipher mismatch rather than garbage output.
var payloadMagics = map[string][][]byte{
	"application/x-shockwave-flash": {
		[]byte("FWS"), []byte("CWS"), []byte("ZWS"),
	},
	"image/x-flp": {
		{0x89, 'P', 'N', 'G'},
		{0xFF, 0xD8, 0xFF},
		[]byte("GIF8"),
	},
}

// CheckPayload verifies that decrypted bytes start with a signature valid for
// the declared content type. Unknown content types are accepted as-is.
func CheckPayload(contentType string, payload []byte) error {
	magics, ok := payloadMagics[contentType]
	if !ok {
		return nil
	}
	for _, magic := range magics {
		if len(payload) >= len(magic) && bytes.Equal(payload[:len(magic)], magic) {
			return nil
		}
	}
	return services.Wrap(services.ErrCipherMismatch, "decrypt", "verify payload",
		fmt.Sprintf("decrypted bytes carry no %s signature; wrong access code or position parameters", contentType), nil)
}
