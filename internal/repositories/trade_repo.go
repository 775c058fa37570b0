package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/models"
)

const tradeColumns = `
	id, order_id, buyer_id, seller_id, status, payment_method,
	external_reference, end_to_end_id, dispute_reason,
	payment_deadline_seconds, created_at, updated_at,
	payment_sent_at, payment_confirmed_at, completed_at, cancelled_at, disputed_at`

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

func (r *TradeRepo) Create(ctx context.Context, t *models.Trade) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO trades (order_id, buyer_id, seller_id, status, payment_method,
		                    external_reference, payment_deadline_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, t.OrderID, t.BuyerID, t.SellerID, t.Status, t.PaymentMethod,
		t.ExternalReference, int(t.PaymentDeadline.Seconds()),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return apperr.Persistence(err, "create trade")
	}
	return nil
}

func (r *TradeRepo) scanOne(row pgx.Row) (*models.Trade, error) {
	var t models.Trade
	var deadlineSeconds int
	err := row.Scan(&t.ID, &t.OrderID, &t.BuyerID, &t.SellerID, &t.Status, &t.PaymentMethod,
		&t.ExternalReference, &t.EndToEndID, &t.DisputeReason,
		&deadlineSeconds, &t.CreatedAt, &t.UpdatedAt,
		&t.PaymentSentAt, &t.PaymentConfirmedAt, &t.CompletedAt, &t.CancelledAt, &t.DisputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("trade not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err, "scan trade")
	}
	t.PaymentDeadline = time.Duration(deadlineSeconds) * time.Second
	return &t, nil
}

func (r *TradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
}

// GetByReference resolves a webhook's external trade reference: the
// primary trade ID when the reference parses as a UUID, otherwise the
// secondary external_reference column.
func (r *TradeRepo) GetByReference(ctx context.Context, ref string) (*models.Trade, error) {
	if id, err := uuid.Parse(ref); err == nil {
		t, err := r.GetByID(ctx, id)
		if err == nil {
			return t, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
	}
	t, err := r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE external_reference = $1`, ref))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NoMatch("no trade matches reference %s", ref)
	}
	return t, err
}

// UpdateStatus performs the conditional role-gated status write, stamping
// the status timestamp column and persisting the dispute reason in the
// same statement.
func (r *TradeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, disputeReason *string) error {
	query := `UPDATE trades SET status = $1, updated_at = now()`
	args := []any{to}
	argIdx := 2

	if col, ok := models.TradeStatusTimestampColumn[to]; ok {
		query += `, ` + col + ` = now()`
	}
	if disputeReason != nil {
		query += `, dispute_reason = $2`
		args = append(args, *disputeReason)
		argIdx++
	}
	query += fmt.Sprintf(` WHERE id = $%d AND status = $%d`, argIdx, argIdx+1)
	args = append(args, id, from)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Persistence(err, "update trade status")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("trade %s no longer in status %s", id, from)
	}
	return nil
}

// MirrorCancelled cancels the trade when its escrow was cancelled,
// skipping trades that already reached a terminal status.
func (r *TradeRepo) MirrorCancelled(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE trades SET status = $1, cancelled_at = now(), updated_at = now()
		WHERE id = $2 AND status NOT IN ($1, $3)
	`, models.TradeStatusCancelled, id, models.TradeStatusCompleted)
	if err != nil {
		return apperr.Persistence(err, "mirror trade cancellation")
	}
	return nil
}

// SetEndToEndID records the PIX network payment identifier on the trade.
func (r *TradeRepo) SetEndToEndID(ctx context.Context, id uuid.UUID, endToEndID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE trades SET end_to_end_id = $1, updated_at = now()
		WHERE id = $2 AND end_to_end_id IS NULL
	`, endToEndID, id)
	if err != nil {
		return apperr.Persistence(err, "set trade end-to-end id")
	}
	return nil
}

func (r *TradeRepo) MarkOrderCompleted(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = 'completed', updated_at = now() WHERE id = $1
	`, orderID)
	if err != nil {
		return apperr.Persistence(err, "mark order completed")
	}
	return nil
}
