// internal/storage/models/wallet.go
package models

import "time"

// Wallet хранит зашифрованный ключ пользователя. Одна запись на пользователя,
// импорт заменяет ее целиком.
type Wallet struct {
	UserID              int64
	PublicKey           string
	EncryptedPrivateKey []byte
	Salt                []byte
	CreatedAt           time.Time
}
