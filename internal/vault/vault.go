// Package vault provides authenticated symmetric encryption for stored
// mailbox passwords using AES-256-GCM. Ciphertext and nonce are stored
// side by side in the accounts table; the key is process-wide
// configuration and is never persisted with the data it protects.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// DecryptError indicates that credential material could not be
// decrypted: the key, nonce, or ciphertext is malformed, or the GCM
// authentication tag failed to verify (tampering).
type DecryptError struct {
	Err error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypting credential: %v", e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// Vault encrypts and decrypts credential material with a fixed key.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns the
// ciphertext and nonce separately, matching the storage layout of the
// accounts table.
func (v *Vault) Encrypt(plaintext string) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext = v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Any malformed input or
// authentication failure returns a *DecryptError; a wrong key never
// yields a plausible-looking plaintext silently.
func (v *Vault) Decrypt(ciphertext, nonce []byte) (string, error) {
	if len(nonce) != v.aead.NonceSize() {
		return "", &DecryptError{Err: fmt.Errorf("nonce must be %d bytes, got %d", v.aead.NonceSize(), len(nonce))}
	}

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &DecryptError{Err: err}
	}

	return string(plaintext), nil
}
