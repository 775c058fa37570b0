package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/events"
	"github.com/pixtrade/backend/internal/models"
	"github.com/pixtrade/backend/internal/money"
	"github.com/pixtrade/backend/internal/notify"
	"go.uber.org/zap"
)

// DefaultExpiration is applied when a trade is opened without an explicit
// payment window.
const DefaultExpiration = 30 * time.Minute

// Payment confirmation sources, recorded in audit metadata. Webhook
// confirmation and manual seller confirmation drive the identical
// transition; only the audit trail tells them apart.
const (
	ConfirmSourceSeller  = "seller"
	ConfirmSourceWebhook = "provider_webhook"
)

// EscrowService owns the escrow lifecycle: every status change goes
// through a conditional store update and writes one audit entry before
// returning.
type EscrowService struct {
	escrows           EscrowStore
	trades            TradeStore
	audit             AuditStore
	notifier          notify.Notifier
	publisher         events.Publisher
	defaultExpiration time.Duration
	log               *zap.Logger
}

func NewEscrowService(
	escrows EscrowStore,
	trades TradeStore,
	audit AuditStore,
	notifier notify.Notifier,
	publisher events.Publisher,
	defaultExpiration time.Duration,
	log *zap.Logger,
) *EscrowService {
	if defaultExpiration <= 0 {
		defaultExpiration = DefaultExpiration
	}
	return &EscrowService{
		escrows:           escrows,
		trades:            trades,
		audit:             audit,
		notifier:          notifier,
		publisher:         publisher,
		defaultExpiration: defaultExpiration,
		log:               log,
	}
}

// silenced returns a view of the service with user notifications muted.
// The trade coordinator sends its own single counterparty notice per
// action and must not double up with the ledger's.
func (s *EscrowService) silenced() *EscrowService {
	muted := *s
	muted.notifier = notify.Nop{}
	return &muted
}

type CreateEscrowInput struct {
	TradeID    uuid.UUID
	SellerID   uuid.UUID
	BuyerID    uuid.UUID
	Crypto     money.Amount
	Fiat       money.Amount
	Expiration time.Duration
}

func (s *EscrowService) CreateEscrow(ctx context.Context, in CreateEscrowInput) (*models.Escrow, error) {
	if err := in.Crypto.Validate(); err != nil {
		return nil, err
	}
	if err := in.Fiat.Validate(); err != nil {
		return nil, err
	}

	expiration := in.Expiration
	if expiration <= 0 {
		expiration = s.defaultExpiration
	}

	escrow := &models.Escrow{
		TradeID:        in.TradeID,
		SellerID:       in.SellerID,
		BuyerID:        in.BuyerID,
		CryptoAmount:   in.Crypto.Value,
		CryptoCurrency: in.Crypto.Currency,
		FiatAmount:     in.Fiat.Value,
		FiatCurrency:   in.Fiat.Currency,
		Status:         models.EscrowStatusPending,
		ExpiresAt:      time.Now().Add(expiration),
	}
	if err := s.escrows.Create(ctx, escrow); err != nil {
		return nil, err
	}

	s.logTransition(ctx, escrow.ID, nil, models.ActorTypeSystem, "escrow_created", map[string]any{
		"trade_id":        escrow.TradeID.String(),
		"crypto_amount":   in.Crypto.String(),
		"fiat_amount":     in.Fiat.String(),
		"expires_at":      escrow.ExpiresAt,
	})
	return escrow, nil
}

// MarkFunded moves pending -> funded and fixes the custody address.
// Retried client calls with the same address are a no-op success.
func (s *EscrowService) MarkFunded(ctx context.Context, escrowID uuid.UUID, custodyAddress string) error {
	if custodyAddress == "" {
		return apperr.New(apperr.KindInvalidTransition, "custody address is required to fund")
	}

	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}

	if escrow.Status == models.EscrowStatusFunded &&
		escrow.CustodyAddress != nil && *escrow.CustodyAddress == custodyAddress {
		return nil
	}
	if !models.IsValidEscrowTransition(escrow.Status, models.EscrowStatusFunded) {
		return apperr.InvalidTransition(escrow.Status, models.EscrowStatusFunded)
	}

	if err := s.escrows.MarkFunded(ctx, escrowID, custodyAddress); err != nil {
		return err
	}

	s.logTransition(ctx, escrowID, &escrow.SellerID, models.ActorTypeUser, "escrow_funded", map[string]any{
		"custody_address": custodyAddress,
	})
	s.publishStatus(ctx, escrow, models.EscrowStatusFunded)
	return nil
}

// MarkPaymentPending is the buyer's optional explicit "I have paid" step.
func (s *EscrowService) MarkPaymentPending(ctx context.Context, escrowID, actingBuyerID uuid.UUID) error {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if actingBuyerID != escrow.BuyerID {
		return apperr.Unauthorized("only the buyer may report payment")
	}
	if !models.IsValidEscrowTransition(escrow.Status, models.EscrowStatusPaymentPending) {
		return apperr.InvalidTransition(escrow.Status, models.EscrowStatusPaymentPending)
	}

	if err := s.escrows.MarkPaymentPending(ctx, escrowID); err != nil {
		return err
	}

	s.logTransition(ctx, escrowID, &actingBuyerID, models.ActorTypeUser, "buyer_payment_reported", nil)
	s.publishStatus(ctx, escrow, models.EscrowStatusPaymentPending)
	s.notifier.NotifyUser(ctx, escrow.SellerID, escrow.TradeID, notify.EventPaymentSent)
	return nil
}

// ConfirmPayment is the seller's manual fiat-payment confirmation. On
// success the escrow moves to payment_confirmed and the crypto is
// released immediately.
func (s *EscrowService) ConfirmPayment(ctx context.Context, escrowID, actingSellerID uuid.UUID) error {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if actingSellerID != escrow.SellerID {
		return apperr.Unauthorized("only the seller may confirm payment")
	}
	return s.confirmAndRelease(ctx, escrow, &actingSellerID, models.ActorTypeUser, map[string]any{
		"confirmed_by": ConfirmSourceSeller,
	})
}

// ConfirmPaymentFromWebhook is the provider-signal path: it stands in for
// seller confirmation and drives the identical transition, but the audit
// metadata records the provider source and end-to-end payment ID.
func (s *EscrowService) ConfirmPaymentFromWebhook(ctx context.Context, escrowID uuid.UUID, provider, endToEndID string) error {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if endToEndID != "" {
		if err := s.trades.SetEndToEndID(ctx, escrow.TradeID, endToEndID); err != nil {
			return err
		}
	}
	return s.confirmAndRelease(ctx, escrow, nil, models.ActorTypeProvider, map[string]any{
		"confirmed_by":  ConfirmSourceWebhook,
		"provider":      provider,
		"end_to_end_id": endToEndID,
	})
}

func (s *EscrowService) confirmAndRelease(ctx context.Context, escrow *models.Escrow, actorID *uuid.UUID, actorType string, meta map[string]any) error {
	if !models.IsValidEscrowTransition(escrow.Status, models.EscrowStatusPaymentConfirmed) {
		return apperr.InvalidTransition(escrow.Status, models.EscrowStatusPaymentConfirmed)
	}

	if err := s.escrows.MarkPaymentConfirmed(ctx, escrow.ID); err != nil {
		return err
	}

	s.logTransition(ctx, escrow.ID, actorID, actorType, "payment_confirmed", meta)
	s.publishStatus(ctx, escrow, models.EscrowStatusPaymentConfirmed)
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventPaymentConfirmed,
		Payload: map[string]any{
			"escrow_id": escrow.ID.String(),
			"trade_id":  escrow.TradeID.String(),
		},
	})
	s.notifier.NotifyUser(ctx, escrow.BuyerID, escrow.TradeID, notify.EventPaymentConfirmed)

	return s.ReleaseCrypto(ctx, escrow.ID)
}

// ReleaseCrypto completes a payment_confirmed escrow. The escrow
// completion, trade mirror, order completion, and audit row are one
// transaction in the store; side effects run only when that transaction
// actually won the conditional update.
func (s *EscrowService) ReleaseCrypto(ctx context.Context, escrowID uuid.UUID) error {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	// Disputed escrows settle through ResolveDispute, never a direct
	// release.
	if escrow.Status == models.EscrowStatusDisputed ||
		!models.IsValidEscrowTransition(escrow.Status, models.EscrowStatusCompleted) {
		return apperr.InvalidTransition(escrow.Status, models.EscrowStatusCompleted)
	}

	err = s.escrows.Release(ctx, escrow.ID, escrow.TradeID, map[string]any{
		"crypto_amount":   escrow.CryptoAmount.String(),
		"crypto_currency": escrow.CryptoCurrency,
		"custody_address": escrow.CustodyAddress,
	})
	if err != nil {
		return err
	}

	s.publishStatus(ctx, escrow, models.EscrowStatusCompleted)
	s.notifier.NotifyUser(ctx, escrow.BuyerID, escrow.TradeID, notify.EventTradeCompleted)
	s.notifier.NotifyUser(ctx, escrow.SellerID, escrow.TradeID, notify.EventTradeCompleted)
	return nil
}

// OpenDispute branches a non-terminal escrow into arbitration.
func (s *EscrowService) OpenDispute(ctx context.Context, escrowID, actingUserID uuid.UUID, reason string) error {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if !escrow.IsParticipant(actingUserID) {
		return apperr.Unauthorized("only a trade participant may open a dispute")
	}
	if !models.IsValidEscrowTransition(escrow.Status, models.EscrowStatusDisputed) {
		return apperr.InvalidTransition(escrow.Status, models.EscrowStatusDisputed)
	}

	if err := s.escrows.MarkDisputed(ctx, escrowID, reason); err != nil {
		return err
	}

	s.logTransition(ctx, escrowID, &actingUserID, models.ActorTypeUser, "dispute_opened", map[string]any{
		"reason": reason,
	})
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventDisputeOpened,
		Payload: map[string]any{
			"escrow_id": escrow.ID.String(),
			"trade_id":  escrow.TradeID.String(),
			"opened_by": actingUserID.String(),
			"reason":    reason,
		},
	})
	s.notifier.NotifyUser(ctx, escrow.Counterparty(actingUserID), escrow.TradeID, notify.EventDisputeOpened)
	return nil
}

// ResolveDispute applies the out-of-band arbitration decision.
func (s *EscrowService) ResolveDispute(ctx context.Context, escrowID uuid.UUID, outcome string) error {
	if !models.IsValidEscrowTransition(models.EscrowStatusDisputed, outcome) {
		return apperr.New(apperr.KindInvalidTransition, "dispute outcome must be completed or cancelled, got %s", outcome)
	}
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if escrow.Status != models.EscrowStatusDisputed {
		return apperr.InvalidTransition(escrow.Status, outcome)
	}

	if err := s.escrows.ResolveDispute(ctx, escrowID, outcome); err != nil {
		return err
	}
	if outcome == models.EscrowStatusCancelled {
		if err := s.trades.MirrorCancelled(ctx, escrow.TradeID); err != nil {
			s.log.Error("failed to mirror dispute cancellation", zap.String("trade_id", escrow.TradeID.String()), zap.Error(err))
		}
	}

	s.logTransition(ctx, escrowID, nil, models.ActorTypeSystem, "dispute_resolved", map[string]any{
		"outcome": outcome,
	})
	s.publishStatus(ctx, escrow, outcome)
	s.notifier.NotifyUser(ctx, escrow.BuyerID, escrow.TradeID, notify.EventTradeCompleted)
	s.notifier.NotifyUser(ctx, escrow.SellerID, escrow.TradeID, notify.EventTradeCompleted)
	return nil
}

// Actor identifies who requested a cancellation.
type Actor struct {
	UserID *uuid.UUID
	Type   string // user/system
}

var SystemActor = Actor{Type: models.ActorTypeSystem}

// Cancel aborts a pending or funded escrow. A funded escrow triggers a
// compensating release of custody back to the seller before the
// cancellation is considered complete.
func (s *EscrowService) Cancel(ctx context.Context, escrowID uuid.UUID, actor Actor) error {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	// The transition table also lets payment_pending and disputed reach
	// cancelled, but those edges belong to the sweeper and to
	// ResolveDispute. On-request cancellation stops at funded.
	if escrow.Status != models.EscrowStatusPending && escrow.Status != models.EscrowStatusFunded {
		return apperr.InvalidTransition(escrow.Status, models.EscrowStatusCancelled)
	}

	wasFunded := escrow.Status == models.EscrowStatusFunded

	if err := s.escrows.MarkCancelled(ctx, escrowID); err != nil {
		return err
	}

	if wasFunded {
		// Custody return runs only in the branch that won the
		// conditional update, so it happens at most once.
		s.returnCustody(ctx, escrow)
	}

	if err := s.trades.MirrorCancelled(ctx, escrow.TradeID); err != nil {
		s.log.Error("failed to mirror trade cancellation", zap.String("trade_id", escrow.TradeID.String()), zap.Error(err))
	}

	s.logTransition(ctx, escrowID, actor.UserID, actor.Type, "escrow_cancelled", map[string]any{
		"was_funded": wasFunded,
	})
	s.publishStatus(ctx, escrow, models.EscrowStatusCancelled)
	s.notifier.NotifyUser(ctx, escrow.BuyerID, escrow.TradeID, notify.EventTradeCancelled)
	s.notifier.NotifyUser(ctx, escrow.SellerID, escrow.TradeID, notify.EventTradeCancelled)
	return nil
}

// returnCustody hands the held crypto back to the seller. The on-chain
// transfer itself is executed by the external settlement service; here it
// is recorded and announced.
func (s *EscrowService) returnCustody(ctx context.Context, escrow *models.Escrow) {
	s.logTransition(ctx, escrow.ID, nil, models.ActorTypeSystem, "custody_returned", map[string]any{
		"seller_id":       escrow.SellerID.String(),
		"crypto_amount":   escrow.CryptoAmount.String(),
		"crypto_currency": escrow.CryptoCurrency,
		"custody_address": escrow.CustodyAddress,
	})
}

func (s *EscrowService) GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return s.escrows.GetByID(ctx, id)
}

func (s *EscrowService) GetEscrowByTrade(ctx context.Context, tradeID uuid.UUID) (*models.Escrow, error) {
	return s.escrows.GetByTradeID(ctx, tradeID)
}

func (s *EscrowService) GetEscrowLog(ctx context.Context, id uuid.UUID) ([]models.AuditLog, error) {
	return s.audit.GetByEntity(ctx, "escrow", id, 100, 0)
}

// logTransition writes the audit entry for a transition. A failed audit
// write is loud in the logs but does not undo the transition: the
// conditional update already committed.
func (s *EscrowService) logTransition(ctx context.Context, escrowID uuid.UUID, actorID *uuid.UUID, actorType, action string, meta map[string]any) {
	err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      action,
		EntityType:  "escrow",
		EntityID:    &escrowID,
		Meta:        meta,
	})
	if err != nil {
		s.log.Error("audit write failed",
			zap.String("escrow_id", escrowID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *EscrowService) publishStatus(ctx context.Context, escrow *models.Escrow, newStatus string) {
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventEscrowStatusChanged,
		Payload: map[string]any{
			"escrow_id":  escrow.ID.String(),
			"trade_id":   escrow.TradeID.String(),
			"old_status": escrow.Status,
			"new_status": newStatus,
		},
	})
}
