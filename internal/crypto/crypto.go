// Package crypto provides AES-256-GCM encryption for credential storage at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the required size for AES-256 keys (32 bytes)
	KeySize = 32

	pbkdf2Iterations = 100_000
)

// keySalt is fixed per application; the passphrase itself must be secret.
var keySalt = []byte("redmine-jira-integration.credentials.v1")

var (
	ErrInvalidKeySize     = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// Encryptor handles AES-256-GCM encryption and decryption
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new Encryptor with the given key.
// Key must be exactly 32 bytes for AES-256.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	// Copy key to avoid external mutation
	keyCopy := make([]byte, KeySize)
	copy(keyCopy, key)

	return &Encryptor{key: keyCopy}, nil
}

// NewEncryptorFromPassphrase derives an AES-256 key from a passphrase with
// PBKDF2-SHA256 and returns an Encryptor using it. The same passphrase always
// yields the same key, so stored credentials survive restarts.
func NewEncryptorFromPassphrase(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase must not be empty")
	}
	key := pbkdf2.Key([]byte(passphrase), keySalt, pbkdf2Iterations, KeySize, sha256.New)
	return NewEncryptor(key)
}

// Encrypt encrypts plaintext using AES-256-GCM.
// Returns base64-encoded ciphertext (nonce prepended).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext using AES-256-GCM.
func (e *Encryptor) Decrypt(encodedCiphertext string) (string, error) {
	if encodedCiphertext == "" {
		return "", nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encodedCiphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateKey generates a new random 32-byte key for AES-256.
// Returns the key as a base64-encoded string.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
