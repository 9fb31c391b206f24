// Package crypto seals small secrets at rest for Octave.
// Uses AES-256-GCM for encryption and PBKDF2-SHA256 for key derivation.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinIterations is the lowest PBKDF2 iteration count accepted.
	MinIterations = 100000

	keyLength   = 32 // AES-256
	saltLength  = 16
	nonceLength = 12 // GCM standard nonce size
)

var (
	ErrSealedTooShort    = errors.New("sealed data too short")
	ErrEmptyPassphrase   = errors.New("passphrase cannot be empty")
	ErrIterationsTooLow  = fmt.Errorf("iteration count too low (minimum %d)", MinIterations)
	ErrInvalidSaltLength = errors.New("invalid salt length")
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("invalid byte count")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// deriveKey stretches a passphrase into an AES-256 key.
func deriveKey(passphrase string, salt []byte, iterations int) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) != saltLength {
		return nil, ErrInvalidSaltLength
	}
	if iterations < MinIterations {
		return nil, ErrIterationsTooLow
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keyLength, sha256.New), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under a key derived from passphrase.
// The result is salt || nonce || ciphertext and is self-contained.
func Seal(passphrase string, plaintext []byte, iterations int) ([]byte, error) {
	salt, err := RandomBytes(saltLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := deriveKey(passphrase, salt, iterations)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := RandomBytes(nonceLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltLength+nonceLength+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal. A wrong passphrase or tampered data fails authentication.
func Open(passphrase string, sealed []byte, iterations int) ([]byte, error) {
	if len(sealed) < saltLength+nonceLength {
		return nil, ErrSealedTooShort
	}
	salt := sealed[:saltLength]
	nonce := sealed[saltLength : saltLength+nonceLength]

	key, err := deriveKey(passphrase, salt, iterations)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed[saltLength+nonceLength:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// Wipe overwrites sensitive data with zeros then random data.
func Wipe(data []byte) {
	if len(data) == 0 {
		return
	}
	for i := range data {
		data[i] = 0
	}
	// Best effort; memory is already zeroed.
	io.ReadFull(rand.Reader, data)
}
