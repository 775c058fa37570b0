package services

import (
	"context"
	"time"

	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/events"
	"github.com/pixtrade/backend/internal/models"
	"github.com/pixtrade/backend/internal/notify"
	"go.uber.org/zap"
)

// Sweeper force-cancels escrows past their deadline. Each cancellation
// re-checks status and deadline inside the conditional update, so
// multiple sweeper instances and live user actions never double-cancel.
type Sweeper struct {
	escrows   EscrowStore
	trades    TradeStore
	audit     AuditStore
	notifier  notify.Notifier
	publisher events.Publisher
	batchSize int
	log       *zap.Logger
}

func NewSweeper(
	escrows EscrowStore,
	trades TradeStore,
	audit AuditStore,
	notifier notify.Notifier,
	publisher events.Publisher,
	log *zap.Logger,
) *Sweeper {
	return &Sweeper{
		escrows:   escrows,
		trades:    trades,
		audit:     audit,
		notifier:  notifier,
		publisher: publisher,
		batchSize: 100,
		log:       log,
	}
}

// Run polls on the given interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("sweep cycle failed", zap.Error(err))
			} else if n > 0 {
				s.log.Info("swept expired escrows", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce cancels every eligible expired escrow and returns how many it
// actually transitioned.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.escrows.ListExpired(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, escrow := range expired {
		if err := s.cancelExpired(ctx, escrow); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				// Lost the race to a concurrent transition; benign.
				continue
			}
			s.log.Error("failed to cancel expired escrow",
				zap.String("escrow_id", escrow.ID.String()),
				zap.Error(err),
			)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *Sweeper) cancelExpired(ctx context.Context, escrow models.Escrow) error {
	wasFunded := escrow.Status == models.EscrowStatusFunded || escrow.Status == models.EscrowStatusPaymentPending

	if err := s.escrows.SweepCancel(ctx, escrow.ID); err != nil {
		return err
	}

	if err := s.trades.MirrorCancelled(ctx, escrow.TradeID); err != nil {
		s.log.Error("failed to mirror expired-trade cancellation",
			zap.String("trade_id", escrow.TradeID.String()), zap.Error(err))
	}

	escrowID := escrow.ID
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  models.ActorTypeSystem,
		Action:     "escrow_expired",
		EntityType: "escrow",
		EntityID:   &escrowID,
		Meta: map[string]any{
			"expired_at": escrow.ExpiresAt,
			"was_funded": wasFunded,
		},
	})
	if wasFunded {
		// Same compensating contract as a user-initiated cancel.
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorType:  models.ActorTypeSystem,
			Action:     "custody_returned",
			EntityType: "escrow",
			EntityID:   &escrowID,
			Meta: map[string]any{
				"seller_id":       escrow.SellerID.String(),
				"crypto_amount":   escrow.CryptoAmount.String(),
				"crypto_currency": escrow.CryptoCurrency,
			},
		})
	}

	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventEscrowExpired,
		Payload: map[string]any{
			"escrow_id": escrow.ID.String(),
			"trade_id":  escrow.TradeID.String(),
		},
	})
	s.notifier.NotifyUser(ctx, escrow.BuyerID, escrow.TradeID, notify.EventTradeExpired)
	s.notifier.NotifyUser(ctx, escrow.SellerID, escrow.TradeID, notify.EventTradeExpired)
	return nil
}
