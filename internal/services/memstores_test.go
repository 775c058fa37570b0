package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/models"
)

// In-memory stores with the same compare-and-swap contract the pgx
// repositories give: a conditional update that matches nothing returns
// a conflict instead of writing.

type memEscrowStore struct {
	mu      sync.Mutex
	escrows map[uuid.UUID]*models.Escrow
}

func newMemEscrowStore() *memEscrowStore {
	return &memEscrowStore{escrows: make(map[uuid.UUID]*models.Escrow)}
}

func (s *memEscrowStore) Create(_ context.Context, e *models.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	copied := *e
	s.escrows[e.ID] = &copied
	return nil
}

func (s *memEscrowStore) GetByID(_ context.Context, id uuid.UUID) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[id]
	if !ok {
		return nil, apperr.NotFound("escrow not found")
	}
	snapshot := *e
	return &snapshot, nil
}

func (s *memEscrowStore) GetByTradeID(_ context.Context, tradeID uuid.UUID) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.escrows {
		if e.TradeID == tradeID {
			snapshot := *e
			return &snapshot, nil
		}
	}
	return nil, apperr.NotFound("escrow not found")
}

func (s *memEscrowStore) MarkFunded(_ context.Context, id uuid.UUID, custodyAddress string) error {
	return s.cas(id, []string{models.EscrowStatusPending}, models.EscrowStatusFunded, func(e *models.Escrow) {
		e.CustodyAddress = &custodyAddress
		now := time.Now()
		e.FundedAt = &now
	})
}

func (s *memEscrowStore) MarkPaymentPending(_ context.Context, id uuid.UUID) error {
	return s.cas(id, []string{models.EscrowStatusFunded}, models.EscrowStatusPaymentPending, nil)
}

func (s *memEscrowStore) MarkPaymentConfirmed(_ context.Context, id uuid.UUID) error {
	return s.cas(id, []string{models.EscrowStatusFunded, models.EscrowStatusPaymentPending},
		models.EscrowStatusPaymentConfirmed, func(e *models.Escrow) {
			now := time.Now()
			e.PaymentConfirmedAt = &now
		})
}

func (s *memEscrowStore) Release(_ context.Context, id, tradeID uuid.UUID, _ map[string]any) error {
	return s.cas(id, []string{models.EscrowStatusPaymentConfirmed}, models.EscrowStatusCompleted, func(e *models.Escrow) {
		now := time.Now()
		e.ReleasedAt = &now
	})
}

func (s *memEscrowStore) MarkDisputed(_ context.Context, id uuid.UUID, reason string) error {
	return s.cas(id, []string{
		models.EscrowStatusPending, models.EscrowStatusFunded,
		models.EscrowStatusPaymentPending, models.EscrowStatusPaymentConfirmed,
	}, models.EscrowStatusDisputed, func(e *models.Escrow) {
		e.DisputeReason = &reason
		now := time.Now()
		e.DisputedAt = &now
	})
}

func (s *memEscrowStore) MarkCancelled(_ context.Context, id uuid.UUID) error {
	return s.cas(id, []string{models.EscrowStatusPending, models.EscrowStatusFunded},
		models.EscrowStatusCancelled, func(e *models.Escrow) {
			now := time.Now()
			e.CancelledAt = &now
		})
}

func (s *memEscrowStore) SweepCancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[id]
	if !ok {
		return apperr.Conflict("escrow gone")
	}
	eligible := false
	for _, st := range models.ExpirableEscrowStatuses {
		if e.Status == st {
			eligible = true
		}
	}
	if !eligible || e.ExpiresAt.After(time.Now()) {
		return apperr.Conflict("escrow not sweepable")
	}
	e.Status = models.EscrowStatusCancelled
	now := time.Now()
	e.CancelledAt = &now
	return nil
}

func (s *memEscrowStore) ResolveDispute(_ context.Context, id uuid.UUID, outcome string) error {
	return s.cas(id, []string{models.EscrowStatusDisputed}, outcome, nil)
}

func (s *memEscrowStore) ListExpired(_ context.Context, limit int) ([]models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Escrow
	now := time.Now()
	for _, e := range s.escrows {
		if len(out) >= limit {
			break
		}
		for _, st := range models.ExpirableEscrowStatuses {
			if e.Status == st && e.ExpiresAt.Before(now) {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func (s *memEscrowStore) cas(id uuid.UUID, allowed []string, to string, mutate func(*models.Escrow)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[id]
	if !ok {
		return apperr.Conflict("escrow gone")
	}
	matched := false
	for _, st := range allowed {
		if e.Status == st {
			matched = true
		}
	}
	if !matched {
		return apperr.Conflict("escrow is %s, cannot move to %s", e.Status, to)
	}
	e.Status = to
	if mutate != nil {
		mutate(e)
	}
	return nil
}

type memTradeStore struct {
	mu     sync.Mutex
	trades map[uuid.UUID]*models.Trade
	orders map[uuid.UUID]string
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{
		trades: make(map[uuid.UUID]*models.Trade),
		orders: make(map[uuid.UUID]string),
	}
}

func (s *memTradeStore) Create(_ context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	copied := *t
	s.trades[t.ID] = &copied
	return nil
}

func (s *memTradeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, apperr.NotFound("trade not found")
	}
	snapshot := *t
	return &snapshot, nil
}

func (s *memTradeStore) GetByReference(ctx context.Context, ref string) (*models.Trade, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if t, err := s.GetByID(ctx, id); err == nil {
			return t, nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.ExternalReference != nil && *t.ExternalReference == ref {
			snapshot := *t
			return &snapshot, nil
		}
	}
	return nil, apperr.NoMatch("no trade matches reference %s", ref)
}

func (s *memTradeStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to string, disputeReason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok || t.Status != from {
		return apperr.Conflict("trade already transitioned")
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	if disputeReason != nil {
		t.DisputeReason = disputeReason
	}
	return nil
}

func (s *memTradeStore) MirrorCancelled(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return apperr.NotFound("trade not found")
	}
	if !models.IsTerminalTradeStatus(t.Status) {
		t.Status = models.TradeStatusCancelled
		now := time.Now()
		t.CancelledAt = &now
	}
	return nil
}

func (s *memTradeStore) SetEndToEndID(_ context.Context, id uuid.UUID, endToEndID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return apperr.NotFound("trade not found")
	}
	if t.EndToEndID == nil {
		t.EndToEndID = &endToEndID
	}
	return nil
}

func (s *memTradeStore) MarkOrderCompleted(_ context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID] = "completed"
	return nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *memAuditStore) Log(_ context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.CreatedAt = time.Now()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memAuditStore) GetByEntity(_ context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLog
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memAuditStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

func (s *memAuditStore) hasAction(action string) bool {
	for _, a := range s.actions() {
		if a == action {
			return true
		}
	}
	return false
}

type notification struct {
	UserID uuid.UUID
	Event  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID, _ uuid.UUID, eventType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Event: eventType})
}

func (n *recordingNotifier) sentTo(userID uuid.UUID, event string) bool {
	return n.countTo(userID, event) > 0
}

func (n *recordingNotifier) countTo(userID uuid.UUID, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.UserID == userID && s.Event == event {
			count++
		}
	}
	return count
}
