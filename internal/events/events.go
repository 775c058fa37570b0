package events

import "context"

// Streams
const (
	StreamEscrow = "events:escrow"
	StreamTrade  = "events:trade"
)

// Event types
const (
	EventEscrowStatusChanged = "escrow_status_changed"
	EventTradeStatusChanged  = "trade_status_changed"
	EventPaymentConfirmed    = "payment_confirmed"
	EventEscrowExpired       = "escrow_expired"
	EventDisputeOpened       = "dispute_opened"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher discards events; used in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
