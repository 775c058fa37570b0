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

// TradeService coordinates the role-gated trade status machine and keeps
// it synchronized with the escrow ledger.
type TradeService struct {
	trades    TradeStore
	escrow    *EscrowService
	audit     AuditStore
	notifier  notify.Notifier
	publisher events.Publisher
	log       *zap.Logger
}

func NewTradeService(
	trades TradeStore,
	escrow *EscrowService,
	audit AuditStore,
	notifier notify.Notifier,
	publisher events.Publisher,
	log *zap.Logger,
) *TradeService {
	return &TradeService{
		trades:    trades,
		escrow:    escrow,
		audit:     audit,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
	}
}

type CreateTradeInput struct {
	OrderID           uuid.UUID
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	PaymentMethod     string
	ExternalReference *string
	Crypto            money.Amount
	Fiat              money.Amount
	PaymentDeadline   time.Duration
}

// CreateTrade opens the trade record and its escrow in one flow. The
// escrow holds the real invariants; the trade is the human-facing mirror.
func (s *TradeService) CreateTrade(ctx context.Context, in CreateTradeInput) (*models.Trade, error) {
	if err := in.Crypto.Validate(); err != nil {
		return nil, err
	}
	if err := in.Fiat.Validate(); err != nil {
		return nil, err
	}
	if in.PaymentDeadline <= 0 {
		in.PaymentDeadline = s.escrow.defaultExpiration
	}

	trade := &models.Trade{
		OrderID:           in.OrderID,
		BuyerID:           in.BuyerID,
		SellerID:          in.SellerID,
		Status:            models.TradeStatusPending,
		PaymentMethod:     in.PaymentMethod,
		ExternalReference: in.ExternalReference,
		PaymentDeadline:   in.PaymentDeadline,
	}
	if err := s.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	_, err := s.escrow.CreateEscrow(ctx, CreateEscrowInput{
		TradeID:    trade.ID,
		SellerID:   in.SellerID,
		BuyerID:    in.BuyerID,
		Crypto:     in.Crypto,
		Fiat:       in.Fiat,
		Expiration: in.PaymentDeadline,
	})
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &in.BuyerID,
		ActorType:   models.ActorTypeUser,
		Action:      "trade_created",
		EntityType:  "trade",
		EntityID:    &trade.ID,
		Meta: map[string]any{
			"order_id":       in.OrderID.String(),
			"payment_method": in.PaymentMethod,
		},
	})
	return trade, nil
}

type UpdateStatusInput struct {
	NewStatus     string
	DisputeReason *string
}

// UpdateStatus applies a buyer/seller action to the trade. The
// (currentStatus, role, newStatus) triple must appear in the role-gated
// table; anything else is rejected, never coerced.
func (s *TradeService) UpdateStatus(ctx context.Context, tradeID, actingUserID uuid.UUID, in UpdateStatusInput) error {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return err
	}

	role := trade.RoleOf(actingUserID)
	if role == "" {
		return apperr.Unauthorized("user is not a participant of this trade")
	}

	if !models.CanTransitionTrade(trade.Status, role, in.NewStatus) {
		return apperr.New(apperr.KindInvalidTransition,
			"%s may not move trade from %s to %s", role, trade.Status, in.NewStatus)
	}

	if err := s.trades.UpdateStatus(ctx, tradeID, trade.Status, in.NewStatus, in.DisputeReason); err != nil {
		return err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &actingUserID,
		ActorType:   models.ActorTypeUser,
		Action:      "trade_status_" + trade.Status + "_to_" + in.NewStatus,
		EntityType:  "trade",
		EntityID:    &tradeID,
		Meta: map[string]any{
			"role":       role,
			"old_status": trade.Status,
			"new_status": in.NewStatus,
		},
	})
	_ = s.publisher.Publish(ctx, events.StreamTrade, events.Event{
		Type: events.EventTradeStatusChanged,
		Payload: map[string]any{
			"trade_id":   tradeID.String(),
			"old_status": trade.Status,
			"new_status": in.NewStatus,
			"role":       role,
		},
	})

	s.applySideEffects(ctx, trade, actingUserID, in)

	// Exactly one notification, to the counterparty.
	s.notifier.NotifyUser(ctx, s.counterparty(trade, actingUserID), tradeID, notifyEventFor(in.NewStatus))
	return nil
}

// applySideEffects synchronizes the escrow ledger with trade actions that
// imply custody changes. The ledger runs muted here: UpdateStatus already
// sent the one counterparty notice for the action.
func (s *TradeService) applySideEffects(ctx context.Context, trade *models.Trade, actingUserID uuid.UUID, in UpdateStatusInput) {
	ledger := s.escrow.silenced()
	escrow, err := ledger.GetEscrowByTrade(ctx, trade.ID)
	if err != nil {
		s.log.Error("trade has no escrow", zap.String("trade_id", trade.ID.String()), zap.Error(err))
		return
	}

	switch in.NewStatus {
	case models.TradeStatusPaymentSent:
		if err := ledger.MarkPaymentPending(ctx, escrow.ID, actingUserID); err != nil && !apperr.Is(err, apperr.KindConflict) {
			s.log.Warn("escrow payment_pending sync skipped",
				zap.String("escrow_id", escrow.ID.String()), zap.Error(err))
		}
	case models.TradeStatusPaymentConfirmed:
		if err := ledger.ConfirmPayment(ctx, escrow.ID, actingUserID); err != nil && !apperr.Is(err, apperr.KindConflict) {
			s.log.Warn("escrow confirm sync skipped",
				zap.String("escrow_id", escrow.ID.String()), zap.Error(err))
		}
	case models.TradeStatusCompleted:
		if err := s.trades.MarkOrderCompleted(ctx, trade.OrderID); err != nil {
			s.log.Error("failed to mark order completed",
				zap.String("order_id", trade.OrderID.String()), zap.Error(err))
		}
	case models.TradeStatusCancelled:
		actor := Actor{UserID: &actingUserID, Type: models.ActorTypeUser}
		if err := ledger.Cancel(ctx, escrow.ID, actor); err != nil && !apperr.Is(err, apperr.KindConflict) {
			s.log.Warn("escrow cancel sync skipped",
				zap.String("escrow_id", escrow.ID.String()), zap.Error(err))
		}
	case models.TradeStatusDisputed:
		reason := ""
		if in.DisputeReason != nil {
			reason = *in.DisputeReason
		}
		if err := ledger.OpenDispute(ctx, escrow.ID, actingUserID, reason); err != nil && !apperr.Is(err, apperr.KindConflict) {
			s.log.Warn("escrow dispute sync skipped",
				zap.String("escrow_id", escrow.ID.String()), zap.Error(err))
		}
	}
}

func (s *TradeService) GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	return s.trades.GetByID(ctx, id)
}

func (s *TradeService) GetTradeEvents(ctx context.Context, tradeID uuid.UUID) ([]models.AuditLog, error) {
	return s.audit.GetByEntity(ctx, "trade", tradeID, 100, 0)
}

func (s *TradeService) counterparty(trade *models.Trade, userID uuid.UUID) uuid.UUID {
	if userID == trade.BuyerID {
		return trade.SellerID
	}
	return trade.BuyerID
}

func notifyEventFor(status string) string {
	switch status {
	case models.TradeStatusPaymentSent:
		return notify.EventPaymentSent
	case models.TradeStatusPaymentConfirmed:
		return notify.EventPaymentConfirmed
	case models.TradeStatusCompleted:
		return notify.EventTradeCompleted
	case models.TradeStatusCancelled:
		return notify.EventTradeCancelled
	case models.TradeStatusDisputed:
		return notify.EventDisputeOpened
	}
	return status
}
