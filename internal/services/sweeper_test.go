package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pixtrade/backend/internal/events"
	"github.com/pixtrade/backend/internal/models"
	"github.com/pixtrade/backend/internal/notify"
)

type sweepFixture struct {
	sweeper  *Sweeper
	escrows  *memEscrowStore
	trades   *memTradeStore
	audit    *memAuditStore
	notifier *recordingNotifier
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		escrows:  newMemEscrowStore(),
		trades:   newMemTradeStore(),
		audit:    &memAuditStore{},
		notifier: &recordingNotifier{},
	}
	f.sweeper = NewSweeper(f.escrows, f.trades, f.audit, f.notifier, events.NopPublisher{}, zap.NewNop())
	return f
}

func (f *sweepFixture) seedEscrow(t *testing.T, status string, expiresAt time.Time) *models.Escrow {
	t.Helper()
	trade := &models.Trade{
		OrderID:  uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.TradeStatusPending,
	}
	if err := f.trades.Create(context.Background(), trade); err != nil {
		t.Fatal(err)
	}

	escrow := &models.Escrow{
		TradeID:      trade.ID,
		BuyerID:      trade.BuyerID,
		SellerID:     trade.SellerID,
		CryptoAmount: decimal.RequireFromString("0.005"),
		FiatAmount:   decimal.RequireFromString("150.50"),
		Status:       models.EscrowStatusPending,
		ExpiresAt:    expiresAt,
	}
	if err := f.escrows.Create(context.Background(), escrow); err != nil {
		t.Fatal(err)
	}

	// Fix the target status directly; the fixture is seeding state, not
	// exercising transitions.
	f.escrows.mu.Lock()
	f.escrows.escrows[escrow.ID].Status = status
	f.escrows.mu.Unlock()
	escrow.Status = status
	return escrow
}

func TestSweepCancelsOnlyEligibleExpired(t *testing.T) {
	f := newSweepFixture(t)
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	expiredPending := f.seedEscrow(t, models.EscrowStatusPending, past)
	expiredFunded := f.seedEscrow(t, models.EscrowStatusFunded, past)
	expiredPaymentPending := f.seedEscrow(t, models.EscrowStatusPaymentPending, past)
	expiredConfirmed := f.seedEscrow(t, models.EscrowStatusPaymentConfirmed, past)
	expiredDisputed := f.seedEscrow(t, models.EscrowStatusDisputed, past)
	liveFunded := f.seedEscrow(t, models.EscrowStatusFunded, future)

	n, err := f.sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("swept %d escrows, want 3", n)
	}

	tests := []struct {
		name   string
		escrow *models.Escrow
		want   string
	}{
		{"expired pending", expiredPending, models.EscrowStatusCancelled},
		{"expired funded", expiredFunded, models.EscrowStatusCancelled},
		{"expired payment_pending", expiredPaymentPending, models.EscrowStatusCancelled},
		{"confirmed is never swept", expiredConfirmed, models.EscrowStatusPaymentConfirmed},
		{"disputed is never swept", expiredDisputed, models.EscrowStatusDisputed},
		{"unexpired stays", liveFunded, models.EscrowStatusFunded},
	}
	for _, tt := range tests {
		e, err := f.escrows.GetByID(context.Background(), tt.escrow.ID)
		if err != nil {
			t.Fatal(err)
		}
		if e.Status != tt.want {
			t.Errorf("%s: status = %q, want %q", tt.name, e.Status, tt.want)
		}
	}
}

func TestSweepMirrorsTradeAndNotifies(t *testing.T) {
	f := newSweepFixture(t)
	escrow := f.seedEscrow(t, models.EscrowStatusFunded, time.Now().Add(-time.Minute))

	if _, err := f.sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	trade, err := f.trades.GetByID(context.Background(), escrow.TradeID)
	if err != nil {
		t.Fatal(err)
	}
	if trade.Status != models.TradeStatusCancelled {
		t.Errorf("trade status = %q, want cancelled", trade.Status)
	}

	if !f.audit.hasAction("escrow_expired") {
		t.Error("expiry must be audited")
	}
	if !f.audit.hasAction("custody_returned") {
		t.Error("funded expiry must record the custody return")
	}
	if !f.notifier.sentTo(escrow.BuyerID, notify.EventTradeExpired) || !f.notifier.sentTo(escrow.SellerID, notify.EventTradeExpired) {
		t.Error("both parties must be notified of expiry")
	}
}

func TestSweepPendingEscrowSkipsCustodyReturn(t *testing.T) {
	f := newSweepFixture(t)
	f.seedEscrow(t, models.EscrowStatusPending, time.Now().Add(-time.Minute))

	if _, err := f.sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.audit.hasAction("custody_returned") {
		t.Error("nothing to return on a never-funded escrow")
	}
}

func TestSweepToleratesConcurrentTransitions(t *testing.T) {
	f := newSweepFixture(t)
	escrow := f.seedEscrow(t, models.EscrowStatusFunded, time.Now().Add(-time.Minute))

	// Another actor settles the escrow between listing and cancelling.
	f.escrows.mu.Lock()
	f.escrows.escrows[escrow.ID].Status = models.EscrowStatusCompleted
	f.escrows.mu.Unlock()

	n, err := f.sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("swept %d, want 0 when the race was lost", n)
	}

	e, _ := f.escrows.GetByID(context.Background(), escrow.ID)
	if e.Status != models.EscrowStatusCompleted {
		t.Errorf("status = %q, completed escrow must stay completed", e.Status)
	}
}

func TestSweepRepeatRunsAreIdempotent(t *testing.T) {
	f := newSweepFixture(t)
	f.seedEscrow(t, models.EscrowStatusFunded, time.Now().Add(-time.Minute))

	n1, err := f.sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	n2, err := f.sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n1 != 1 || n2 != 0 {
		t.Errorf("sweep counts = %d then %d, want 1 then 0", n1, n2)
	}
}
