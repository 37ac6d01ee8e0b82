// Package vault encrypts signing keys at rest with a key derived from the
// user's PIN. It performs no I/O.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

const (
	// Iterations of PBKDF2-HMAC-SHA256.
	Iterations = 600_000
	SaltSize   = 16
	KeySize    = 32
	NonceSize  = 12
)

var (
	// ErrAuthentication is returned for every decryption failure. Callers
	// cannot tell a wrong passphrase from a corrupted blob.
	ErrAuthentication = types.NewError(types.ErrCredential, "vault.Decrypt", errors.New("authentication failed"))

	ErrEmptyPassphrase = errors.New("vault: passphrase must not be empty")
)

// Vault holds the KDF cost. The zero value is ready to use.
type Vault struct {
	iterations int
}

// New returns a vault with the given iteration count; values below 1 use
// Iterations.
func New(iterations int) *Vault {
	return &Vault{iterations: iterations}
}

func (v *Vault) iter() int {
	if v == nil || v.iterations < 1 {
		return Iterations
	}
	return v.iterations
}

// Encrypt seals rawKey under passphrase. The returned ciphertext is
// nonce||sealed||tag and the salt is fresh for every call.
func (v *Vault) Encrypt(rawKey []byte, passphrase string) (ciphertext, salt []byte, err error) {
	if passphrase == "" {
		return nil, nil, ErrEmptyPassphrase
	}
	if len(rawKey) == 0 {
		return nil, nil, errors.New("vault: key must not be empty")
	}

	salt = make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, fmt.Errorf("vault: generating salt: %w", err)
	}

	gcm, err := v.aead(passphrase, salt)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("vault: generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, rawKey, nil), salt, nil
}

// Decrypt opens a blob produced by Encrypt. Any failure yields ErrAuthentication.
func (v *Vault) Decrypt(ciphertext, salt []byte, passphrase string) ([]byte, error) {
	if passphrase == "" || len(salt) != SaltSize || len(ciphertext) < NonceSize+16 {
		return nil, ErrAuthentication
	}

	gcm, err := v.aead(passphrase, salt)
	if err != nil {
		return nil, ErrAuthentication
	}

	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}

func (v *Vault) aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, v.iter(), KeySize, sha256.New)
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: creating GCM: %w", err)
	}
	return gcm, nil
}

// wipe zeroes b in place.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
