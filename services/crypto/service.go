package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/robinmail/dnsguard/interfaces"
	er "github.com/robinmail/dnsguard/internal/errors"
)

const (
	envelopeVersion = "v1"
	keyLength       = 32
	nonceLength     = 12
)

type vaultService struct {
	aead cipher.AEAD
}

// NewSecretVault builds a vault from the configured key material. The key is
// accepted as raw 32-byte text, a base64: prefixed value, 64 hex characters
// or bare base64, and normalized once here. Anything else is a configuration
// error the caller should treat as fatal.
func NewSecretVault(encryptionKey string) (interfaces.SecretVault, error) {
	keyBytes, err := normalizeKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize gcm")
	}

	return &vaultService{aead: aead}, nil
}

func normalizeKey(encryptionKey string) ([]byte, error) {
	if encryptionKey == "" {
		return nil, er.ErrEncryptionKeyMissing
	}

	if strings.HasPrefix(encryptionKey, "base64:") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encryptionKey, "base64:"))
		if err != nil {
			return nil, errors.Wrap(err, "invalid base64 encryption key")
		}
		return requireKeyLength(decoded)
	}

	if len(encryptionKey) == 64 {
		if decoded, err := hex.DecodeString(encryptionKey); err == nil {
			return requireKeyLength(decoded)
		}
	}

	if len(encryptionKey) == keyLength {
		return []byte(encryptionKey), nil
	}

	if decoded, err := base64.StdEncoding.DecodeString(encryptionKey); err == nil {
		return requireKeyLength(decoded)
	}

	return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keyLength, len(encryptionKey))
}

func requireKeyLength(key []byte) ([]byte, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keyLength, len(key))
	}
	return key, nil
}

func (s *vaultService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	sealed := s.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return fmt.Sprintf("%s.%s.%s",
		envelopeVersion,
		base64.RawURLEncoding.EncodeToString(nonce),
		base64.RawURLEncoding.EncodeToString(sealed),
	), nil
}

func (s *vaultService) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ".")
	if len(parts) != 3 || parts[0] != envelopeVersion {
		return "", er.ErrInvalidEnvelope
	}

	nonce, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(nonce) != nonceLength {
		return "", er.ErrInvalidEnvelope
	}

	sealed, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", er.ErrInvalidEnvelope
	}

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// tag mismatch, truncation or tampering all fail closed
		return "", er.ErrInvalidEnvelope
	}
	return string(plaintext), nil
}
