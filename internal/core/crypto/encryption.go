// Package crypto provides key material handling for deployer identities.
// This is part of the Functional Core - all functions are pure with no I/O
// beyond reading the system random source.
//
// Identity seeds are encrypted at rest using AES-256-GCM with a key derived
// from a passphrase by Argon2id.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/artpar/trellis/internal/core/strkey"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrKeyTooShort is returned when the encryption key is too short.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

	// ErrInvalidCiphertext is returned when decryption fails due to invalid ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrInvalidSeed is returned when a decrypted seed has the wrong size.
	ErrInvalidSeed = errors.New("invalid identity seed")
)

// =============================================================================
// Key Derivation
// =============================================================================

// SaltSize is the size of the random salt stored with each sealed seed.
const SaltSize = 16

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DeriveKey derives a 32-byte AES-256 key from a passphrase with Argon2id.
// Same passphrase and salt always produce the same key.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, 32)
}

// =============================================================================
// AES-256-GCM Encryption
// =============================================================================

// Encrypt encrypts plaintext using AES-256-GCM with the provided key.
// The ciphertext format is: nonce (12 bytes) || encrypted data || auth tag (16 bytes)
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext that was encrypted with Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) < 32 {
		return nil, ErrKeyTooShort
	}
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// =============================================================================
// Sealed Seeds
// =============================================================================

// SealSeed encrypts an identity seed under a passphrase. The result is
// base64(salt || nonce || ciphertext || tag), suitable for a text column.
func SealSeed(seed []byte, passphrase string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	ciphertext, err := Encrypt(seed, DeriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(salt, ciphertext...)), nil
}

// OpenSeed reverses SealSeed.
func OpenSeed(sealed, passphrase string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	if len(raw) < SaltSize {
		return nil, ErrInvalidCiphertext
	}
	seed, err := Decrypt(raw[SaltSize:], DeriveKey(passphrase, raw[:SaltSize]))
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSeed
	}
	return seed, nil
}

// =============================================================================
// Identities
// =============================================================================

// Identity is an ed25519 key pair with its account address.
type Identity struct {
	Address    string
	PrivateKey ed25519.PrivateKey
}

// GenerateIdentity creates a new random identity and returns it with its seed.
func GenerateIdentity() (Identity, []byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	seed := priv.Seed()
	id, err := IdentityFromSeed(seed)
	return id, seed, err
}

// IdentityFromSeed rebuilds an identity from its 32-byte seed.
func IdentityFromSeed(seed []byte) (Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return Identity{}, ErrInvalidSeed
	}
	priv := ed25519.NewKeyFromSeed(seed)
	addr, err := strkey.Encode(strkey.VersionAccount, priv.Public().(ed25519.PublicKey))
	if err != nil {
		return Identity{}, err
	}
	return Identity{Address: addr, PrivateKey: priv}, nil
}

// Sign signs payload with the identity's key and returns base64 signature.
func (i Identity) Sign(payload []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(i.PrivateKey, payload))
}

// Verify checks a base64 signature produced by Sign against an address.
func Verify(address string, payload []byte, signature string) bool {
	pub, err := strkey.Decode(strkey.VersionAccount, address)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}
