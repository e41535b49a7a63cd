package domain

import "time"

// EventType classifies engine events published on the signal bus.
type EventType string

const (
	EventDeposit       EventType = "deposit"
	EventMarketCreated EventType = "market_created"
	EventBetPlaced     EventType = "bet_placed"
	EventMarketClosed  EventType = "market_closed"
)

// Event is the external-facing notification emitted after an operation
// commits. It carries only public data and opaque handles; confidential
// magnitudes never appear here.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	PredictionID uint64    `json:"prediction_id,omitempty"`
	Account      string    `json:"account,omitempty"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
