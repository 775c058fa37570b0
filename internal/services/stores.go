package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pixtrade/backend/internal/models"
)

// Store interfaces implemented by the pgx repositories. Services depend
// on these so the state-machine logic is testable without a database.

type EscrowStore interface {
	Create(ctx context.Context, e *models.Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetByTradeID(ctx context.Context, tradeID uuid.UUID) (*models.Escrow, error)
	MarkFunded(ctx context.Context, id uuid.UUID, custodyAddress string) error
	MarkPaymentPending(ctx context.Context, id uuid.UUID) error
	MarkPaymentConfirmed(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id, tradeID uuid.UUID, meta map[string]any) error
	MarkDisputed(ctx context.Context, id uuid.UUID, reason string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	SweepCancel(ctx context.Context, id uuid.UUID) error
	ResolveDispute(ctx context.Context, id uuid.UUID, outcome string) error
	ListExpired(ctx context.Context, limit int) ([]models.Escrow, error)
}

type TradeStore interface {
	Create(ctx context.Context, t *models.Trade) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error)
	GetByReference(ctx context.Context, ref string) (*models.Trade, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, disputeReason *string) error
	MirrorCancelled(ctx context.Context, id uuid.UUID) error
	SetEndToEndID(ctx context.Context, id uuid.UUID, endToEndID string) error
	MarkOrderCompleted(ctx context.Context, orderID uuid.UUID) error
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}
