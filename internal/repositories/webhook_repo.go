package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/models"
)

type WebhookRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookRepo(pool *pgxpool.Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// Insert logs the raw inbound notification. Called before any validation.
func (r *WebhookRepo) Insert(ctx context.Context, w *models.WebhookEvent) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (provider, raw_payload, signature_header)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, w.Provider, w.RawPayload, w.SignatureHeader).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return apperr.Persistence(err, "log webhook event")
	}
	return nil
}

func (r *WebhookRepo) SetSignatureValid(ctx context.Context, id uuid.UUID, valid bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events SET signature_valid = $1 WHERE id = $2
	`, valid, id)
	if err != nil {
		return apperr.Persistence(err, "set webhook signature result")
	}
	return nil
}

func (r *WebhookRepo) MarkProcessed(ctx context.Context, id, tradeID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events SET processed = true, processed_at = now(), trade_id = $1
		WHERE id = $2
	`, tradeID, id)
	if err != nil {
		return apperr.Persistence(err, "mark webhook processed")
	}
	return nil
}

// FlagManualReview marks an acknowledged-but-unresolved webhook for a
// human reconciliation pass.
func (r *WebhookRepo) FlagManualReview(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events SET manual_review = true, review_reason = $1 WHERE id = $2
	`, reason, id)
	if err != nil {
		return apperr.Persistence(err, "flag webhook for review")
	}
	return nil
}

func (r *WebhookRepo) ListManualReview(ctx context.Context, limit, offset int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider, raw_payload, signature_header, signature_valid,
		       processed, processed_at, trade_id, manual_review, review_reason, created_at
		FROM webhook_events
		WHERE manual_review = true AND processed = false
		ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apperr.Persistence(err, "list webhooks for review")
	}
	defer rows.Close()

	var events []models.WebhookEvent
	for rows.Next() {
		var w models.WebhookEvent
		if err := rows.Scan(&w.ID, &w.Provider, &w.RawPayload, &w.SignatureHeader, &w.SignatureValid,
			&w.Processed, &w.ProcessedAt, &w.TradeID, &w.ManualReview, &w.ReviewReason, &w.CreatedAt); err != nil {
			return nil, apperr.Persistence(err, "scan webhook event")
		}
		events = append(events, w)
	}
	return events, nil
}
