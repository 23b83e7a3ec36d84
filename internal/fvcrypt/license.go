package fvcrypt

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"strings"
	"unicode/utf8"

	"fvrip/internal/services"
)

// Wrapped strings are published as uppercase hex of base64 of the raw cipher
// bytes. Both layers must decode cleanly or the token is malformed.

// DecryptWrappedString unwraps a published token and decrypts it as UTF-8
// under the given passphrase.
func DecryptWrappedString(passphrase, wrapped string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(wrapped))
	if err != nil {
		return "", services.Wrap(services.ErrMalformedAccessCode, "key", "unwrap", "token is not valid hex", err)
	}
	ct, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return "", services.Wrap(services.ErrMalformedAccessCode, "key", "unwrap", "token is not valid base64", err)
	}
	mode, err := NewFVCBCFromPassphrase(passphrase)
	if err != nil {
		return "", services.Wrap(services.ErrMalformedAccessCode, "key", "unwrap", "derive cipher", err)
	}
	pt, err := mode.DecryptAutofinish(ct)
	if err != nil {
		return "", services.Wrap(services.ErrMalformedAccessCode, "key", "unwrap", "decrypt", err)
	}
	if !utf8.Valid(pt) {
		return "", services.Wrap(services.ErrMalformedAccessCode, "key", "unwrap", "decryption produced invalid text; wrong key?", nil)
	}
	return string(pt), nil
}

// EncryptWrappedString encrypts a string under the given passphrase and wraps
// it the way the site publishes tokens.
func EncryptWrappedString(passphrase, plaintext string) (string, error) {
	mode, err := NewFVCBCFromPassphrase(passphrase)
	if err != nil {
		return "", err
	}
	ct, err := mode.EncryptAutofinish([]byte(plaintext))
	if err != nil {
		return "", err
	}
	b64 := base64.StdEncoding.EncodeToString(ct)
	return strings.ToUpper(hex.EncodeToString([]byte(b64))), nil
}

// EncryptLicense builds a license document embedding the given access code,
// the inverse of AccessCodeFromLicense.
func EncryptLicense(master, accessCode string) ([]byte, error) {
	wrappedMaster, err := EncryptWrappedString(offlineLicensePassphrase, master)
	if err != nil {
		return nil, err
	}
	wrappedCode, err := EncryptWrappedString(passwordPassphrase(master), accessCode)
	if err != nil {
		return nil, err
	}
	var lic license
	lic.Certificate.Security.Encryption.Content = wrappedMaster
	lic.Certificate.Security.Password.Content = wrappedCode
	return xml.Marshal(lic)
}

// license mirrors the subset of the license XML the key recovery needs.
type license struct {
	XMLName     xml.Name `xml:"package"`
	Certificate struct {
		Security struct {
			Encryption struct {
				Content string `xml:"content,attr"`
			} `xml:"encryption"`
			Password struct {
				Content string `xml:"content,attr"`
			} `xml:"password"`
		} `xml:"security"`
	} `xml:"certificate"`
}

func parseLicense(data []byte) (*license, error) {
	var lic license
	if err := xml.Unmarshal(data, &lic); err != nil {
		return nil, services.Wrap(services.ErrMalformedAccessCode, "key", "parse license", "", err)
	}
	return &lic, nil
}

// MasterPassphraseFromLicense recovers the license master passphrase from a
// license document.
func MasterPassphraseFromLicense(data []byte) (string, error) {
	lic, err := parseLicense(data)
	if err != nil {
		return "", err
	}
	wrapped := strings.TrimSpace(lic.Certificate.Security.Encryption.Content)
	if wrapped == "" {
		return "", services.Wrap(services.ErrMalformedAccessCode, "key", "parse license", "encryption tag does not carry the encrypted passphrase", nil)
	}
	return DecryptWrappedString(offlineLicensePassphrase, wrapped)
}

// AccessCodeFromLicense recovers the book access code from a license
// document: the master passphrase unlocks the password passphrase, which
// unlocks the access code itself. Pure; no I/O, no clock.
func AccessCodeFromLicense(data []byte) (string, error) {
	master, err := MasterPassphraseFromLicense(data)
	if err != nil {
		return "", err
	}
	lic, err := parseLicense(data)
	if err != nil {
		return "", err
	}
	wrapped := strings.TrimSpace(lic.Certificate.Security.Password.Content)
	if wrapped == "" {
		return "", services.Wrap(services.ErrMalformedAccessCode, "key", "parse license", "password tag does not carry the encrypted password", nil)
	}
	return DecryptWrappedString(passwordPassphrase(master), wrapped)
}
