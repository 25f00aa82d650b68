package calbot

// Sealer protects credential material at rest. Seal uses the public
// recipient only; Open uses the identity file, which the daemon reads
// unattended on every sync. Setup performs one-time identity generation,
// called during `calbot secrets init`.
type Sealer interface {
	// Seal encrypts a small secret for storage.
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts a sealed secret.
	Open(ciphertext []byte) ([]byte, error)

	// Setup generates the identity if it does not exist yet.
	Setup() error

	// IsConfigured returns true if the identity file exists.
	IsConfigured() bool
}
