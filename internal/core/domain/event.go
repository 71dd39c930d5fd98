package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventKind names an observable exchange transition.
type EventKind string

const (
	EventExchangeCreated EventKind = "exchange.created"
	EventRegistered      EventKind = "exchange.registered"
	EventRevealed        EventKind = "exchange.revealed"
	EventGiftSubmitted   EventKind = "exchange.gift_submitted"
	EventClaiming        EventKind = "exchange.claiming"
	EventClaimed         EventKind = "exchange.claimed"
)

// ExchangeEvent is a persisted record of a state change.
type ExchangeEvent struct {
	ID         uuid.UUID         `json:"id"`
	ExchangeID int64             `json:"exchange_id"`
	Kind       EventKind         `json:"kind"`
	Actor      common.Address    `json:"actor"`
	Amount     int64             `json:"amount,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewEvent builds an event record with a fresh id.
func NewEvent(exchangeID int64, kind EventKind, actor common.Address, amount int64, now time.Time) *ExchangeEvent {
	return &ExchangeEvent{
		ID:         uuid.New(),
		ExchangeID: exchangeID,
		Kind:       kind,
		Actor:      actor,
		Amount:     amount,
		Attributes: map[string]string{},
		CreatedAt:  now,
	}
}

// With sets an attribute and returns the event for chaining.
func (e *ExchangeEvent) With(key, value string) *ExchangeEvent {
	e.Attributes[key] = value
	return e
}
