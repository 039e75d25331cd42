// Package crypto implements the AEAD layer (§4.4): AES-256-GCM encryption
// of the Secret column, with associated data bound to the row's
// non-secret columns via store.Row.CanonicalAAD so that tampering with any
// column invalidates decryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// nonceSize is the standard GCM nonce length.
const nonceSize = 12

// Seal encrypts plaintext under key, binding aad, and returns
// ciphertext‖tag‖nonce as a single blob, per §4.4 exactly (a fresh random
// nonce is drawn every call; §9's open question forbids nonce reuse).
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "constructing AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "constructing GCM mode")
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "generating nonce")
	}
	sealed := gcm.Seal(nil, nonce, plaintext, aad) // ciphertext‖tag
	out := make([]byte, 0, len(sealed)+len(nonce))
	out = append(out, sealed...)
	out = append(out, nonce...)
	return out, nil
}

// Open decrypts a blob produced by Seal, verifying aad matches exactly
// what it was sealed with. Any mismatch, including stale AAD from a row
// whose non-secret columns changed after sealing, returns CryptoError.
func Open(key, blob, aad []byte) ([]byte, error) {
	if len(blob) < nonceSize {
		return nil, asseterr.New(asseterr.CryptoError, "ciphertext too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "constructing AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "constructing GCM mode")
	}
	split := len(blob) - nonceSize
	sealed, nonce := blob[:split], blob[split:]
	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "decrypting secret")
	}
	return plaintext, nil
}
