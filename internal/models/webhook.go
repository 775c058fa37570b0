package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the append-only log entry of a raw inbound payment
// notification. A row is written before any validation so forged and
// malformed requests stay visible for audit.
type WebhookEvent struct {
	ID              uuid.UUID  `json:"id"`
	Provider        string     `json:"provider"`
	RawPayload      []byte     `json:"raw_payload"`
	SignatureHeader *string    `json:"signature_header,omitempty"`
	SignatureValid  bool       `json:"signature_valid"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	TradeID         *uuid.UUID `json:"trade_id,omitempty"`
	ManualReview    bool       `json:"manual_review"`
	ReviewReason    *string    `json:"review_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
