package models

import "testing"

func TestIsValidEscrowTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{EscrowStatusPending, EscrowStatusFunded, true},
		{EscrowStatusFunded, EscrowStatusPaymentPending, true},
		{EscrowStatusFunded, EscrowStatusPaymentConfirmed, true},
		{EscrowStatusPaymentPending, EscrowStatusPaymentConfirmed, true},
		{EscrowStatusPaymentConfirmed, EscrowStatusCompleted, true},

		// Dispute branch
		{EscrowStatusPending, EscrowStatusDisputed, true},
		{EscrowStatusFunded, EscrowStatusDisputed, true},
		{EscrowStatusPaymentPending, EscrowStatusDisputed, true},
		{EscrowStatusPaymentConfirmed, EscrowStatusDisputed, true},
		{EscrowStatusDisputed, EscrowStatusCompleted, true},
		{EscrowStatusDisputed, EscrowStatusCancelled, true},

		// Cancellation
		{EscrowStatusPending, EscrowStatusCancelled, true},
		{EscrowStatusFunded, EscrowStatusCancelled, true},
		{EscrowStatusPaymentPending, EscrowStatusCancelled, true},

		// Invalid
		{EscrowStatusPending, EscrowStatusPaymentConfirmed, false},
		{EscrowStatusPending, EscrowStatusCompleted, false},
		{EscrowStatusPaymentConfirmed, EscrowStatusCancelled, false},
		{EscrowStatusCompleted, EscrowStatusDisputed, false},
		{EscrowStatusCompleted, EscrowStatusCancelled, false},
		{EscrowStatusCancelled, EscrowStatusFunded, false},
		{EscrowStatusFunded, EscrowStatusCompleted, false},
		{"nonexistent", EscrowStatusFunded, false},
		{EscrowStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidEscrowTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidEscrowTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestTerminalEscrowStatusesHaveNoTransitions(t *testing.T) {
	for _, status := range []string{EscrowStatusCompleted, EscrowStatusCancelled} {
		if !IsTerminalEscrowStatus(status) {
			t.Errorf("expected %q to be terminal", status)
		}
		if transitions := ValidEscrowTransitions[status]; len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestExpirableStatusesExcludeConfirmedAndTerminal(t *testing.T) {
	expirable := map[string]bool{}
	for _, s := range ExpirableEscrowStatuses {
		expirable[s] = true
	}

	for _, s := range []string{EscrowStatusPaymentConfirmed, EscrowStatusDisputed, EscrowStatusCompleted, EscrowStatusCancelled} {
		if expirable[s] {
			t.Errorf("status %q must not be sweepable", s)
		}
	}
	for _, s := range []string{EscrowStatusPending, EscrowStatusFunded, EscrowStatusPaymentPending} {
		if !expirable[s] {
			t.Errorf("status %q should be sweepable", s)
		}
	}
}

func TestEscrowParticipants(t *testing.T) {
	e := Escrow{}
	e.BuyerID = mustUUID("11111111-1111-1111-1111-111111111111")
	e.SellerID = mustUUID("22222222-2222-2222-2222-222222222222")
	outsider := mustUUID("33333333-3333-3333-3333-333333333333")

	if !e.IsParticipant(e.BuyerID) || !e.IsParticipant(e.SellerID) {
		t.Error("buyer and seller must be participants")
	}
	if e.IsParticipant(outsider) {
		t.Error("outsider must not be a participant")
	}
	if e.Counterparty(e.BuyerID) != e.SellerID {
		t.Error("buyer's counterparty must be the seller")
	}
	if e.Counterparty(e.SellerID) != e.BuyerID {
		t.Error("seller's counterparty must be the buyer")
	}
}
