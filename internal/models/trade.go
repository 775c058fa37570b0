package models

import (
	"time"

	"github.com/google/uuid"
)

// Trade statuses
const (
	TradeStatusPending          = "pending"
	TradeStatusPaymentSent      = "payment_sent"
	TradeStatusPaymentConfirmed = "payment_confirmed"
	TradeStatusCompleted        = "completed"
	TradeStatusCancelled        = "cancelled"
	TradeStatusDisputed         = "disputed"
)

// Trade roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Role-gated trade transitions: status -> role -> allowed targets.
// A (status, role, target) triple absent from this table is rejected,
// never coerced.
var TradeRoleTransitions = map[string]map[string][]string{
	TradeStatusPending: {
		RoleBuyer:  {TradeStatusPaymentSent, TradeStatusCancelled},
		RoleSeller: {TradeStatusCancelled},
	},
	TradeStatusPaymentSent: {
		RoleBuyer:  {TradeStatusDisputed},
		RoleSeller: {TradeStatusPaymentConfirmed, TradeStatusDisputed, TradeStatusCancelled},
	},
	TradeStatusPaymentConfirmed: {
		RoleBuyer:  {TradeStatusDisputed},
		RoleSeller: {TradeStatusCompleted, TradeStatusDisputed},
	},
}

// CanTransitionTrade reports whether role may move a trade from one
// status to another.
func CanTransitionTrade(from, role, to string) bool {
	byRole, ok := TradeRoleTransitions[from]
	if !ok {
		return false
	}
	for _, s := range byRole[role] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalTradeStatus(status string) bool {
	return status == TradeStatusCompleted || status == TradeStatusCancelled
}

// TradeStatusTimestampColumn maps a status to the column stamped when the
// trade enters it.
var TradeStatusTimestampColumn = map[string]string{
	TradeStatusPaymentSent:      "payment_sent_at",
	TradeStatusPaymentConfirmed: "payment_confirmed_at",
	TradeStatusCompleted:        "completed_at",
	TradeStatusCancelled:        "cancelled_at",
	TradeStatusDisputed:         "disputed_at",
}

type Trade struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method"`
	// ExternalReference is the secondary key PIX webhooks may carry
	// instead of the trade ID.
	ExternalReference *string `json:"external_reference,omitempty"`
	EndToEndID        *string `json:"end_to_end_id,omitempty"`
	DisputeReason     *string `json:"dispute_reason,omitempty"`

	PaymentDeadline    time.Duration `json:"payment_deadline"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	PaymentSentAt      *time.Time    `json:"payment_sent_at,omitempty"`
	PaymentConfirmedAt *time.Time    `json:"payment_confirmed_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	DisputedAt         *time.Time    `json:"disputed_at,omitempty"`
}

// RoleOf resolves userID to buyer or seller on the trade; empty string
// when the user is not a participant.
func (t *Trade) RoleOf(userID uuid.UUID) string {
	switch userID {
	case t.BuyerID:
		return RoleBuyer
	case t.SellerID:
		return RoleSeller
	}
	return ""
}
