// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrKeyMismatch возникает, когда публичная половина ключа не выводится из секретной.
var ErrKeyMismatch = errors.New("private key does not match its public key")

// Wallet представляет кошелёк Solana.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet создаёт кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return FromBytes(privateKeyBytes)
}

// FromBytes создаёт кошелёк из 64 байт ключа (seed || public key).
// Срез копируется.
func FromBytes(raw []byte) (*Wallet, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, ErrKeyMismatch
	}

	privateKey := make(solana.PrivateKey, len(raw))
	copy(privateKey, raw)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// Generate создаёт новый случайный кошелёк.
func Generate() (*Wallet, error) {
	privateKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// SignTransaction подписывает транзакцию с помощью приватного ключа кошелька.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// Bytes возвращает копию сырого ключа.
func (w *Wallet) Bytes() []byte {
	out := make([]byte, len(w.PrivateKey))
	copy(out, w.PrivateKey)
	return out
}

// Matches проверяет, что кошелёк соответствует сохранённому адресу.
func (w *Wallet) Matches(publicKey string) bool {
	return w.PublicKey.String() == publicKey
}

// Wipe обнуляет приватный ключ.
func (w *Wallet) Wipe() {
	for i := range w.PrivateKey {
		w.PrivateKey[i] = 0
	}
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
