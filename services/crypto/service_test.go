package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	er "github.com/robinmail/dnsguard/internal/errors"
)

var rawKey = "0123456789abcdef0123456789abcdef"

func TestSecretVault_RoundTripAllKeyEncodings(t *testing.T) {
	encodings := map[string]string{
		"raw":            rawKey,
		"base64_prefix":  "base64:" + base64.StdEncoding.EncodeToString([]byte(rawKey)),
		"hex":            hex.EncodeToString([]byte(rawKey)),
		"bare_base64":    base64.StdEncoding.EncodeToString([]byte(rawKey)),
	}

	for name, key := range encodings {
		t.Run(name, func(t *testing.T) {
			vault, err := NewSecretVault(key)
			require.NoError(t, err)

			envelope, err := vault.Encrypt("super secret credential")
			require.NoError(t, err)

			plaintext, err := vault.Decrypt(envelope)
			require.NoError(t, err)
			assert.Equal(t, "super secret credential", plaintext)
		})
	}
}

func TestSecretVault_EnvelopeFormat(t *testing.T) {
	vault, err := NewSecretVault(rawKey)
	require.NoError(t, err)

	envelope, err := vault.Encrypt("payload")
	require.NoError(t, err)

	parts := strings.Split(envelope, ".")
	require.Len(t, parts, 3)
	assert.Equal(t, "v1", parts[0])

	nonce, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, nonce, 12)

	sealed, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	// ciphertext plus 16-byte gcm tag
	assert.Equal(t, len("payload")+16, len(sealed))
}

func TestSecretVault_FreshNoncePerCall(t *testing.T) {
	vault, err := NewSecretVault(rawKey)
	require.NoError(t, err)

	first, err := vault.Encrypt("same input")
	require.NoError(t, err)
	second, err := vault.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSecretVault_TamperedEnvelopeFailsClosed(t *testing.T) {
	vault, err := NewSecretVault(rawKey)
	require.NoError(t, err)

	envelope, err := vault.Encrypt("payload")
	require.NoError(t, err)

	parts := strings.Split(envelope, ".")
	sealed, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	sealed[0] ^= 0xff
	tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(sealed)

	_, err = vault.Decrypt(tampered)
	assert.ErrorIs(t, err, er.ErrInvalidEnvelope)
}

func TestSecretVault_MalformedEnvelopes(t *testing.T) {
	vault, err := NewSecretVault(rawKey)
	require.NoError(t, err)

	for _, envelope := range []string{
		"",
		"v1",
		"v1.only-two",
		"v2.aaaa.bbbb",
		"v1.!!!.bbbb",
		"v1.aaaa.!!!",
	} {
		_, err := vault.Decrypt(envelope)
		assert.ErrorIs(t, err, er.ErrInvalidEnvelope, "envelope %q", envelope)
	}
}

func TestNewSecretVault_RejectsBadKeys(t *testing.T) {
	_, err := NewSecretVault("")
	assert.ErrorIs(t, err, er.ErrEncryptionKeyMissing)

	_, err = NewSecretVault("too-short")
	assert.Error(t, err)

	_, err = NewSecretVault("base64:" + base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
