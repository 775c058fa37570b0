package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/models"
)

const escrowColumns = `
	id, trade_id, seller_id, buyer_id,
	crypto_amount, crypto_currency, fiat_amount, fiat_currency,
	status, custody_address, dispute_reason,
	created_at, funded_at, payment_confirmed_at, released_at,
	disputed_at, cancelled_at, expires_at`

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func (r *EscrowRepo) Create(ctx context.Context, e *models.Escrow) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO escrows (trade_id, seller_id, buyer_id,
		                     crypto_amount, crypto_currency, fiat_amount, fiat_currency,
		                     status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, e.TradeID, e.SellerID, e.BuyerID,
		e.CryptoAmount, e.CryptoCurrency, e.FiatAmount, e.FiatCurrency,
		e.Status, e.ExpiresAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return apperr.Persistence(err, "create escrow")
	}
	return nil
}

func (r *EscrowRepo) scanOne(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.TradeID, &e.SellerID, &e.BuyerID,
		&e.CryptoAmount, &e.CryptoCurrency, &e.FiatAmount, &e.FiatCurrency,
		&e.Status, &e.CustodyAddress, &e.DisputeReason,
		&e.CreatedAt, &e.FundedAt, &e.PaymentConfirmedAt, &e.ReleasedAt,
		&e.DisputedAt, &e.CancelledAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("escrow not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err, "scan escrow")
	}
	return &e, nil
}

func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

func (r *EscrowRepo) GetByTradeID(ctx context.Context, tradeID uuid.UUID) (*models.Escrow, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE trade_id = $1`, tradeID))
}

// MarkFunded sets the custody address and moves pending -> funded. The
// WHERE clause is the concurrency guard: zero affected rows means a
// concurrent transition won.
func (r *EscrowRepo) MarkFunded(ctx context.Context, id uuid.UUID, custodyAddress string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, custody_address = $2, funded_at = now()
		WHERE id = $3 AND status = $4
	`, models.EscrowStatusFunded, custodyAddress, id, models.EscrowStatusPending)
	if err != nil {
		return apperr.Persistence(err, "mark escrow funded")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s no longer pending", id)
	}
	return nil
}

func (r *EscrowRepo) MarkPaymentPending(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1
		WHERE id = $2 AND status = $3
	`, models.EscrowStatusPaymentPending, id, models.EscrowStatusFunded)
	if err != nil {
		return apperr.Persistence(err, "mark escrow payment_pending")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s no longer funded", id)
	}
	return nil
}

func (r *EscrowRepo) MarkPaymentConfirmed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, payment_confirmed_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, models.EscrowStatusPaymentConfirmed, id,
		[]string{models.EscrowStatusFunded, models.EscrowStatusPaymentPending})
	if err != nil {
		return apperr.Persistence(err, "mark escrow payment_confirmed")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s not awaiting payment confirmation", id)
	}
	return nil
}

// Release completes the escrow and mirrors completion onto the trade and
// its order in a single transaction, with the audit row. The escrow
// update is the guard: if it affects zero rows another caller already
// released and nothing else runs.
func (r *EscrowRepo) Release(ctx context.Context, id, tradeID uuid.UUID, meta map[string]any) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Persistence(err, "begin release tx")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE escrows SET status = $1, released_at = now()
		WHERE id = $2 AND status = $3
	`, models.EscrowStatusCompleted, id, models.EscrowStatusPaymentConfirmed)
	if err != nil {
		return apperr.Persistence(err, "release escrow")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s not payment_confirmed", id)
	}

	_, err = tx.Exec(ctx, `
		UPDATE trades SET status = $1, completed_at = now(), updated_at = now()
		WHERE id = $2 AND status NOT IN ($3, $4)
	`, models.TradeStatusCompleted, tradeID, models.TradeStatusCompleted, models.TradeStatusCancelled)
	if err != nil {
		return apperr.Persistence(err, "mirror trade completion")
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = 'completed', updated_at = now()
		WHERE id = (SELECT order_id FROM trades WHERE id = $1)
	`, tradeID)
	if err != nil {
		return apperr.Persistence(err, "mark order completed")
	}

	metaBytes, _ := json.Marshal(meta)
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_log (actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, 'escrow_released', 'escrow', $2, $3)
	`, models.ActorTypeSystem, id, metaBytes)
	if err != nil {
		return apperr.Persistence(err, "write release audit")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Persistence(err, "commit release tx")
	}
	return nil
}

func (r *EscrowRepo) MarkDisputed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, dispute_reason = $2, disputed_at = now()
		WHERE id = $3 AND status NOT IN ($4, $5, $1)
	`, models.EscrowStatusDisputed, reason, id,
		models.EscrowStatusCompleted, models.EscrowStatusCancelled)
	if err != nil {
		return apperr.Persistence(err, "mark escrow disputed")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s already terminal or disputed", id)
	}
	return nil
}

func (r *EscrowRepo) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, cancelled_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, models.EscrowStatusCancelled, id,
		[]string{models.EscrowStatusPending, models.EscrowStatusFunded})
	if err != nil {
		return apperr.Persistence(err, "mark escrow cancelled")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s not cancellable", id)
	}
	return nil
}

// SweepCancel is the sweeper's variant of MarkCancelled: it also accepts
// payment_pending and re-checks the deadline inside the statement so two
// sweepers racing a live user action stay safe.
func (r *EscrowRepo) SweepCancel(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, cancelled_at = now()
		WHERE id = $2 AND status = ANY($3) AND expires_at < now()
	`, models.EscrowStatusCancelled, id, models.ExpirableEscrowStatuses)
	if err != nil {
		return apperr.Persistence(err, "sweep cancel escrow")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s not expired or already transitioned", id)
	}
	return nil
}

// ResolveDispute moves a disputed escrow into its arbitration outcome.
func (r *EscrowRepo) ResolveDispute(ctx context.Context, id uuid.UUID, outcome string) error {
	col := "cancelled_at"
	if outcome == models.EscrowStatusCompleted {
		col = "released_at"
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, `+col+` = now()
		WHERE id = $2 AND status = $3
	`, outcome, id, models.EscrowStatusDisputed)
	if err != nil {
		return apperr.Persistence(err, "resolve escrow dispute")
	}
	if tag.RowsAffected() != 1 {
		return apperr.Conflict("escrow %s not disputed", id)
	}
	return nil
}

// ListExpired returns escrows the sweeper should cancel.
func (r *EscrowRepo) ListExpired(ctx context.Context, limit int) ([]models.Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE status = ANY($1) AND expires_at < now()
		ORDER BY expires_at ASC
		LIMIT $2
	`, models.ExpirableEscrowStatuses, limit)
	if err != nil {
		return nil, apperr.Persistence(err, "list expired escrows")
	}
	defer rows.Close()

	var escrows []models.Escrow
	for rows.Next() {
		var e models.Escrow
		if err := rows.Scan(&e.ID, &e.TradeID, &e.SellerID, &e.BuyerID,
			&e.CryptoAmount, &e.CryptoCurrency, &e.FiatAmount, &e.FiatCurrency,
			&e.Status, &e.CustodyAddress, &e.DisputeReason,
			&e.CreatedAt, &e.FundedAt, &e.PaymentConfirmedAt, &e.ReleasedAt,
			&e.DisputedAt, &e.CancelledAt, &e.ExpiresAt); err != nil {
			return nil, apperr.Persistence(err, "scan expired escrow")
		}
		escrows = append(escrows, e)
	}
	return escrows, nil
}
