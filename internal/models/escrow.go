package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escrow statuses
const (
	EscrowStatusPending          = "pending"
	EscrowStatusFunded           = "funded"
	EscrowStatusPaymentPending   = "payment_pending"
	EscrowStatusPaymentConfirmed = "payment_confirmed"
	EscrowStatusCompleted        = "completed"
	EscrowStatusDisputed         = "disputed"
	EscrowStatusCancelled        = "cancelled"
)

// Valid escrow transitions: from -> []to. Terminal statuses map to an
// empty set; disputed is a side branch that arbitration resolves into
// completed or cancelled.
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusPending:          {EscrowStatusFunded, EscrowStatusDisputed, EscrowStatusCancelled},
	EscrowStatusFunded:           {EscrowStatusPaymentPending, EscrowStatusPaymentConfirmed, EscrowStatusDisputed, EscrowStatusCancelled},
	EscrowStatusPaymentPending:   {EscrowStatusPaymentConfirmed, EscrowStatusDisputed, EscrowStatusCancelled},
	EscrowStatusPaymentConfirmed: {EscrowStatusCompleted, EscrowStatusDisputed},
	EscrowStatusDisputed:         {EscrowStatusCompleted, EscrowStatusCancelled},
	EscrowStatusCompleted:        {},
	EscrowStatusCancelled:        {},
}

func IsValidEscrowTransition(from, to string) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalEscrowStatus reports whether no further transition may ever
// leave the status.
func IsTerminalEscrowStatus(status string) bool {
	return status == EscrowStatusCompleted || status == EscrowStatusCancelled
}

// ExpirableEscrowStatuses are the statuses the expiration sweeper may
// force-cancel.
var ExpirableEscrowStatuses = []string{
	EscrowStatusPending,
	EscrowStatusFunded,
	EscrowStatusPaymentPending,
}

type Escrow struct {
	ID             uuid.UUID       `json:"id"`
	TradeID        uuid.UUID       `json:"trade_id"`
	SellerID       uuid.UUID       `json:"seller_id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	CryptoAmount   decimal.Decimal `json:"crypto_amount"`
	CryptoCurrency string          `json:"crypto_currency"`
	FiatAmount     decimal.Decimal `json:"fiat_amount"`
	FiatCurrency   string          `json:"fiat_currency"`
	Status         string          `json:"status"`
	CustodyAddress *string         `json:"custody_address,omitempty"`
	DisputeReason  *string         `json:"dispute_reason,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	FundedAt           *time.Time `json:"funded_at,omitempty"`
	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at,omitempty"`
	ReleasedAt         *time.Time `json:"released_at,omitempty"`
	DisputedAt         *time.Time `json:"disputed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ExpiresAt          time.Time  `json:"expires_at"`
}

// IsParticipant reports whether userID is the buyer or seller of the escrow.
func (e *Escrow) IsParticipant(userID uuid.UUID) bool {
	return userID == e.BuyerID || userID == e.SellerID
}

// Counterparty returns the other participant.
func (e *Escrow) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == e.BuyerID {
		return e.SellerID
	}
	return e.BuyerID
}
