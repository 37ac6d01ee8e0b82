// internal/bot/errors.go
package bot

import (
	"errors"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

var (
	// ErrNoWallet - у пользователя нет сохраненного кошелька
	ErrNoWallet = types.NewError(types.ErrCredential, "custody", errors.New("no wallet stored for user"))
	// ErrWalletLocked - ключ не разблокирован в текущей сессии
	ErrWalletLocked = types.NewError(types.ErrCredential, "custody", errors.New("wallet is locked"))
	// ErrAlreadyClosing - позиция уже продается или закрыта
	ErrAlreadyClosing = errors.New("position is already closing or closed")
	// ErrSimulationMode - позицию из сети нельзя продать, пока включена симуляция
	ErrSimulationMode = errors.New("on-chain position cannot be closed while simulation mode is on")
)
