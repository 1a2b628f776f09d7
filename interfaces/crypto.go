package interfaces

// SecretVault encrypts and decrypts secrets stored at rest. Ciphertext is a
// versioned envelope string so the scheme can evolve without a migration.
type SecretVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}
