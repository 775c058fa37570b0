package models

import (
	"testing"

	"github.com/google/uuid"
)

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func TestCanTransitionTrade(t *testing.T) {
	tests := []struct {
		from     string
		role     string
		to       string
		expected bool
	}{
		// Buyer path
		{TradeStatusPending, RoleBuyer, TradeStatusPaymentSent, true},
		{TradeStatusPending, RoleBuyer, TradeStatusCancelled, true},
		{TradeStatusPaymentSent, RoleBuyer, TradeStatusDisputed, true},
		{TradeStatusPaymentConfirmed, RoleBuyer, TradeStatusDisputed, true},

		// Seller path
		{TradeStatusPending, RoleSeller, TradeStatusCancelled, true},
		{TradeStatusPaymentSent, RoleSeller, TradeStatusPaymentConfirmed, true},
		{TradeStatusPaymentSent, RoleSeller, TradeStatusCancelled, true},
		{TradeStatusPaymentSent, RoleSeller, TradeStatusDisputed, true},
		{TradeStatusPaymentConfirmed, RoleSeller, TradeStatusCompleted, true},
		{TradeStatusPaymentConfirmed, RoleSeller, TradeStatusDisputed, true},

		// Role gates
		{TradeStatusPending, RoleSeller, TradeStatusPaymentSent, false},
		{TradeStatusPaymentSent, RoleBuyer, TradeStatusPaymentConfirmed, false},
		{TradeStatusPaymentSent, RoleBuyer, TradeStatusCancelled, false},
		{TradeStatusPaymentConfirmed, RoleBuyer, TradeStatusCompleted, false},
		{TradeStatusPaymentConfirmed, RoleSeller, TradeStatusCancelled, false},

		// Terminal and unknown
		{TradeStatusCompleted, RoleSeller, TradeStatusDisputed, false},
		{TradeStatusCancelled, RoleBuyer, TradeStatusPending, false},
		{TradeStatusDisputed, RoleBuyer, TradeStatusCompleted, false},
		{TradeStatusPending, "arbiter", TradeStatusCancelled, false},
		{"nonexistent", RoleBuyer, TradeStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"/"+tt.role+"->"+tt.to, func(t *testing.T) {
			result := CanTransitionTrade(tt.from, tt.role, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransitionTrade(%q, %q, %q) = %v, want %v", tt.from, tt.role, tt.to, result, tt.expected)
			}
		})
	}
}

func TestRoleOf(t *testing.T) {
	trade := Trade{
		BuyerID:  mustUUID("11111111-1111-1111-1111-111111111111"),
		SellerID: mustUUID("22222222-2222-2222-2222-222222222222"),
	}

	if got := trade.RoleOf(trade.BuyerID); got != RoleBuyer {
		t.Errorf("RoleOf(buyer) = %q, want %q", got, RoleBuyer)
	}
	if got := trade.RoleOf(trade.SellerID); got != RoleSeller {
		t.Errorf("RoleOf(seller) = %q, want %q", got, RoleSeller)
	}
	if got := trade.RoleOf(mustUUID("33333333-3333-3333-3333-333333333333")); got != "" {
		t.Errorf("RoleOf(outsider) = %q, want empty", got)
	}
}

func TestStatusTimestampColumnsCoverNonPendingStatuses(t *testing.T) {
	for _, status := range []string{
		TradeStatusPaymentSent, TradeStatusPaymentConfirmed,
		TradeStatusCompleted, TradeStatusCancelled, TradeStatusDisputed,
	} {
		if _, ok := TradeStatusTimestampColumn[status]; !ok {
			t.Errorf("status %q missing from TradeStatusTimestampColumn", status)
		}
	}
}
