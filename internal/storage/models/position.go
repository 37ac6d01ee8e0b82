// internal/storage/models/position.go
package models

import (
	"fmt"
	"time"
)

type PositionStatus string

const (
	StatusOpen    PositionStatus = "OPEN"
	StatusClosing PositionStatus = "CLOSING"
	StatusClosed  PositionStatus = "CLOSED"
)

func (s PositionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosing, StatusClosed:
		return true
	}
	return false
}

// Position is a record of an acquired asset held for a user.
type Position struct {
	ID           int64
	UserID       int64
	AssetAddress string
	// InvestedAmount is in lamports of the settlement asset.
	InvestedAmount uint64
	// EntryPrice is USD per whole token.
	EntryPrice float64
	// AssetAmount is in token base units.
	AssetAmount uint64
	// AmountEstimated is set when AssetAmount came from the quote rather than
	// from the settled transaction.
	AmountEstimated bool
	Simulated       bool
	Status          PositionStatus
	OpenSignature   string
	CloseSignature  string
	ExitPrice       float64
	OpenedAt        time.Time
	ClosedAt        *time.Time
}

// Validate проверяет поля новой позиции перед записью.
func (p *Position) Validate() error {
	switch {
	case p.UserID == 0:
		return fmt.Errorf("position: user_id is required")
	case p.AssetAddress == "":
		return fmt.Errorf("position: asset_address is required")
	case p.EntryPrice <= 0:
		return fmt.Errorf("position: entry_price must be positive, got %v", p.EntryPrice)
	case p.AssetAmount == 0:
		return fmt.Errorf("position: asset_amount must be positive")
	}
	return nil
}

// CloseDetails описывает результат продажи при закрытии позиции.
type CloseDetails struct {
	Signature string
	ExitPrice float64
	ClosedAt  time.Time
}
