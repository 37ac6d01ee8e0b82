// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// ErrNotFound возвращается для отсутствующих записей. Не является ошибкой хранилища.
var ErrNotFound = errors.New("record not found")

// WalletStore хранит зашифрованные ключи пользователей.
type WalletStore interface {
	// SaveWallet заменяет запись пользователя целиком.
	SaveWallet(ctx context.Context, w *models.Wallet) error
	GetWallet(ctx context.Context, userID int64) (*models.Wallet, error)
}

// PositionStore хранит позиции и переходы их статусов.
type PositionStore interface {
	CreatePosition(ctx context.Context, p *models.Position) (int64, error)
	GetPosition(ctx context.Context, id int64) (*models.Position, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	ListClosingPositions(ctx context.Context) ([]models.Position, error)
	ListPositions(ctx context.Context, userID int64) ([]models.Position, error)

	// BeginClose атомарно переводит OPEN -> CLOSING. false означает, что
	// позиция уже продается или закрыта.
	BeginClose(ctx context.Context, id int64) (bool, error)
	// ReleaseClose возвращает CLOSING -> OPEN после неудачной продажи.
	ReleaseClose(ctx context.Context, id int64) error
	// ClosePosition идемпотентна: закрытая позиция остается без изменений.
	ClosePosition(ctx context.Context, id int64, details models.CloseDetails) error
}

// SettingsStore хранит пользовательские настройки риска.
type SettingsStore interface {
	// GetRiskSettings создает настройки по умолчанию при первом чтении.
	GetRiskSettings(ctx context.Context, userID int64) (models.RiskSettings, error)
	SaveRiskSettings(ctx context.Context, s models.RiskSettings) error
}

// Storage определяет интерфейс для работы с хранилищем
type Storage interface {
	WalletStore
	PositionStore
	SettingsStore

	Ping(ctx context.Context) error
	Close() error
}

// Wrap помечает сбой драйвера как ошибку хранилища.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return types.NewError(types.ErrPersistence, op, err)
}
