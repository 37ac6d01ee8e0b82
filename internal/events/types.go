// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Position lifecycle
	PositionOpened EventType = "position.opened"
	PositionClosed EventType = "position.closed"

	// Risk events
	TriggerFired               EventType = "risk.trigger_fired"
	SellFailed                 EventType = "risk.sell_failed"
	ManualInterventionRequired EventType = "risk.manual_intervention"
)

// Причины ручного вмешательства
const (
	ReasonWalletLocked     = "wallet locked"
	ReasonAutoSellDisabled = "auto-sell disabled"
	ReasonStuckClosing     = "close left in progress"
	ReasonSimulationOn     = "on-chain position while simulation mode is on"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// UserEvent адресован владельцу позиции.
type UserEvent interface {
	Event
	User() int64
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase заполняет BaseEvent текущим временем.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// PositionRef identifies the position an event belongs to.
type PositionRef struct {
	PositionID int64
	UserID     int64
	AssetMint  string
}

func (r PositionRef) User() int64 { return r.UserID }

// PositionOpenedEvent is emitted after a buy is recorded.
type PositionOpenedEvent struct {
	BaseEvent
	PositionRef
	InvestedLamports uint64
	AssetAmount      uint64
	AmountEstimated  bool
	EntryPrice       float64
	Signature        string
	Simulated        bool
}

// TriggerFiredEvent is emitted when a position crosses a take-profit or stop-loss threshold.
type TriggerFiredEvent struct {
	BaseEvent
	PositionRef
	Trigger      string
	PnLPercent   float64
	EntryPrice   float64
	CurrentPrice float64
	AutoSell     bool
}

// PositionClosedEvent is emitted when a sell completes and the position is CLOSED.
type PositionClosedEvent struct {
	BaseEvent
	PositionRef
	Reason     string // trigger name or "manual"
	PnLPercent float64
	ExitPrice  float64
	Signature  string
	Simulated  bool
}

// SellFailedEvent is emitted when a triggered sell did not go through.
// The position is back to OPEN and is retried on the next cycle.
type SellFailedEvent struct {
	BaseEvent
	PositionRef
	Trigger string
	Err     error
}

// ManualInterventionEvent asks the owner to act on a position themselves.
type ManualInterventionEvent struct {
	BaseEvent
	PositionRef
	Trigger    string
	PnLPercent float64
	Reason     string
}
