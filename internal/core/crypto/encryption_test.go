package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/trellis/internal/core/strkey"
)

var testSalt = []byte("0123456789abcdef")

// =============================================================================
// DeriveKey Tests
// =============================================================================

func TestDeriveKey(t *testing.T) {
	key := DeriveKey("my-secret-passphrase", testSalt)
	assert.Len(t, key, 32)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	key1 := DeriveKey("same-passphrase", testSalt)
	key2 := DeriveKey("same-passphrase", testSalt)
	assert.Equal(t, key1, key2)
}

func TestDeriveKey_DifferentInput(t *testing.T) {
	assert.NotEqual(t, DeriveKey("passphrase1", testSalt), DeriveKey("passphrase2", testSalt))
	assert.NotEqual(t, DeriveKey("passphrase", testSalt), DeriveKey("passphrase", []byte("fedcba9876543210")))
}

// =============================================================================
// Encrypt/Decrypt Tests
// =============================================================================

func TestEncrypt_Decrypt_Roundtrip(t *testing.T) {
	plaintext := []byte("This is a secret message!")
	key := DeriveKey("test-encryption-key", testSalt)

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_DifferentNonces(t *testing.T) {
	key := DeriveKey("test-key", testSalt)

	ciphertext1, err := Encrypt([]byte("Same message"), key)
	require.NoError(t, err)
	ciphertext2, err := Encrypt([]byte("Same message"), key)
	require.NoError(t, err)

	assert.NotEqual(t, ciphertext1, ciphertext2)
}

func TestEncrypt_KeyTooShort(t *testing.T) {
	_, err := Encrypt([]byte("test"), []byte("too-short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)

	_, err = Decrypt([]byte("some-ciphertext-data-that-is-long-enough"), []byte("too-short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestDecrypt_WrongKey(t *testing.T) {
	ciphertext, err := Encrypt([]byte("secret"), DeriveKey("correct-key", testSalt))
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, DeriveKey("wrong-key", testSalt))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_CiphertextTooShort(t *testing.T) {
	_, err := Decrypt([]byte("short"), DeriveKey("test-key", testSalt))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecrypt_CorruptedCiphertext(t *testing.T) {
	key := DeriveKey("test-key", testSalt)
	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = Decrypt(ciphertext, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncrypt_LargePlaintext(t *testing.T) {
	plaintext := bytes.Repeat([]byte("A"), 1024*1024)
	key := DeriveKey("test-key", testSalt)

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

// =============================================================================
// Sealed Seed Tests
// =============================================================================

func TestSealSeed_OpenSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)

	sealed, err := SealSeed(seed, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, sealed, string(seed))

	opened, err := OpenSeed(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, seed, opened)

	_, err = OpenSeed(sealed, "wrong")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenSeed_Invalid(t *testing.T) {
	_, err := OpenSeed("not base64!!", "x")
	assert.Error(t, err)

	_, err = OpenSeed("AAAA", "x")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	sealed, err := SealSeed([]byte("short"), "x")
	require.NoError(t, err)
	_, err = OpenSeed(sealed, "x")
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

// =============================================================================
// Identity Tests
// =============================================================================

func TestGenerateIdentity(t *testing.T) {
	id, seed, err := GenerateIdentity()
	require.NoError(t, err)
	assert.Len(t, seed, 32)
	assert.True(t, strings.HasPrefix(id.Address, "G"))
	assert.True(t, strkey.IsValidAccount(id.Address))

	again, err := IdentityFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, id.Address, again.Address)
}

func TestIdentityFromSeed_Invalid(t *testing.T) {
	_, err := IdentityFromSeed([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestIdentity_SignVerify(t *testing.T) {
	id, _, err := GenerateIdentity()
	require.NoError(t, err)

	payload := []byte(`{"method":"installContract"}`)
	sig := id.Sign(payload)

	assert.True(t, Verify(id.Address, payload, sig))
	assert.False(t, Verify(id.Address, []byte("tampered"), sig))
	assert.False(t, Verify("GBAD", payload, sig))
	assert.False(t, Verify(id.Address, payload, "%%%"))
}
