package backup

import "io"

// Encryptor encrypts file content before it leaves the machine. Encryption
// only needs the public key. Decryption needs the passphrase, which unlocks
// the private key into a DecryptionContext.
type Encryptor interface {
	// Setup generates the key pair once, protecting the private key with
	// passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock returns a DecryptionContext for the session, or an error if the
	// passphrase is wrong.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether the key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the duration
// of a restore. The key is never written to disk.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
