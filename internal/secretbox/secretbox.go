// Package secretbox encrypts NWC connection URIs at rest using
// AES-256-GCM with an Argon2id-derived key.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	KeySize   = 32 // AES-256 requires 32 bytes
	NonceSize = 12 // GCM standard nonce size
	SaltSize  = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Encrypt encrypts plaintext using AES-256-GCM. Returns base64-encoded:
// nonce + ciphertext.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", errors.New("encryption key must be 32 bytes long")
	}

	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGcm.Seal(nil, nonce, []byte(plaintext), nil)
	result := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(result), nil
}

// Decrypt decrypts AES-256-GCM encrypted data.
func Decrypt(ciphertext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", errors.New("encryption key must be 32 bytes long")
	}

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	if len(decoded) < NonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce := decoded[:NonceSize]
	cipherData := decoded[NonceSize:]

	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}

	plaintext, err := aesGcm.Open(nil, nonce, cipherData, nil)
	if err != nil {
		return "", errors.New("decryption failed: invalid key or corrupted data")
	}

	return string(plaintext), nil
}

// GenerateKey generates a random 32-byte encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveKey derives a 32-byte encryption key from a password using
// Argon2id, tuned for interactive request-path use rather than bulk
// password hashing.
func DeriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, KeySize)
}

// EncryptWithPassword encrypts plaintext under a password, generating
// and prepending a random salt so DecryptWithPassword needs only the
// password to recover the key.
func EncryptWithPassword(plaintext, password string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := DeriveKey(password, salt)
	body, err := Encrypt(plaintext, key)
	if err != nil {
		return "", err
	}

	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(append(salt, decoded...)), nil
}

// DecryptWithPassword reverses EncryptWithPassword.
func DecryptWithPassword(ciphertext, password string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(decoded) < SaltSize {
		return "", errors.New("ciphertext too short")
	}

	salt := decoded[:SaltSize]
	body := decoded[SaltSize:]
	key := DeriveKey(password, salt)

	return Decrypt(base64.StdEncoding.EncodeToString(body), key)
}

// Cipher is the password-taking encrypt/decrypt interface implemented
// by DefaultCipher. internal/payout depends on the narrower
// SecretCipher, which MasterCipher satisfies.
type Cipher interface {
	DecryptWithPassword(ciphertext, password string) (string, error)
	EncryptWithPassword(plaintext, password string) (string, error)
}

// DefaultCipher adapts the package-level functions to the Cipher
// interface so callers can inject a fake in tests.
type DefaultCipher struct{}

func (DefaultCipher) DecryptWithPassword(ciphertext, password string) (string, error) {
	return DecryptWithPassword(ciphertext, password)
}

func (DefaultCipher) EncryptWithPassword(plaintext, password string) (string, error) {
	return EncryptWithPassword(plaintext, password)
}

// MasterCipher binds a single operator-configured master password,
// satisfying internal/payout.SecretCipher's narrower single-argument
// Decrypt contract.
type MasterCipher struct {
	Password string
}

// Decrypt recovers the plaintext NWC URI stored under c.Password.
func (c MasterCipher) Decrypt(ciphertext string) (string, error) {
	return DecryptWithPassword(ciphertext, c.Password)
}

// Encrypt encrypts plaintext under c.Password, for use when an intent
// is first created with an nwc destination.
func (c MasterCipher) Encrypt(plaintext string) (string, error) {
	return EncryptWithPassword(plaintext, c.Password)
}
