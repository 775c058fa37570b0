package pix

import (
	"context"

	"github.com/google/uuid"
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/models"
	"go.uber.org/zap"
)

// Outcomes of a webhook run. Everything except a signature or
// persistence failure is acknowledged with the provider's success shape,
// because provider retries cannot fix non-transient conditions.
const (
	OutcomeApplied      = "applied"
	OutcomeDuplicate    = "duplicate"
	OutcomeIgnored      = "ignored"
	OutcomeNoMatch      = "no_matching_trade"
	OutcomeBadFormat    = "unknown_format"
	OutcomeManualReview = "manual_review"
)

type Result struct {
	Provider string
	Outcome  string
	TradeID  *uuid.UUID
}

type WebhookStore interface {
	Insert(ctx context.Context, w *models.WebhookEvent) error
	SetSignatureValid(ctx context.Context, id uuid.UUID, valid bool) error
	MarkProcessed(ctx context.Context, id, tradeID uuid.UUID) error
	FlagManualReview(ctx context.Context, id uuid.UUID, reason string) error
}

type TradeFinder interface {
	GetByReference(ctx context.Context, ref string) (*models.Trade, error)
}

// EscrowGateway is the slice of the escrow ledger the reconciler drives.
type EscrowGateway interface {
	GetEscrowByTrade(ctx context.Context, tradeID uuid.UUID) (*models.Escrow, error)
	ConfirmPaymentFromWebhook(ctx context.Context, escrowID uuid.UUID, provider, endToEndID string) error
}

// Reconciler ingests provider webhooks and matches them idempotently to
// pending escrows. Pipeline: log, verify, normalize, match, apply, mark
// processed. Re-delivery at any point re-enters safely.
type Reconciler struct {
	webhooks     WebhookStore
	trades       TradeFinder
	escrow       EscrowGateway
	dedupe       Deduper
	secrets      map[string]string
	verification bool
	log          *zap.Logger
}

func NewReconciler(
	webhooks WebhookStore,
	trades TradeFinder,
	escrow EscrowGateway,
	dedupe Deduper,
	secrets map[string]string,
	verification bool,
	log *zap.Logger,
) *Reconciler {
	return &Reconciler{
		webhooks:     webhooks,
		trades:       trades,
		escrow:       escrow,
		dedupe:       dedupe,
		secrets:      secrets,
		verification: verification,
		log:          log,
	}
}

// Process runs one inbound webhook through the pipeline. A returned
// error means the caller must not acknowledge: signature failures map to
// 401, persistence failures to 5xx so the provider re-delivers.
func (r *Reconciler) Process(ctx context.Context, providerName string, body []byte, signature string) (*Result, error) {
	provider := Lookup(providerName)
	res := &Result{Provider: provider.Name()}

	// Log first, before any validation.
	var sigHeader *string
	if signature != "" {
		sigHeader = &signature
	}
	event := &models.WebhookEvent{
		Provider:        provider.Name(),
		RawPayload:      body,
		SignatureHeader: sigHeader,
	}
	if err := r.webhooks.Insert(ctx, event); err != nil {
		return nil, err
	}

	// Verify. Skipped outside production; the log entry is already
	// written either way.
	if r.verification {
		if err := provider.Verify(r.secrets[provider.Name()], body, signature); err != nil {
			r.log.Warn("webhook signature rejected",
				zap.String("provider", provider.Name()),
				zap.String("webhook_id", event.ID.String()),
			)
			return nil, err
		}
		if err := r.webhooks.SetSignatureValid(ctx, event.ID, true); err != nil {
			return nil, err
		}
	}

	// Normalize.
	notice, err := provider.Normalize(body)
	if err != nil {
		r.log.Warn("unparseable webhook payload",
			zap.String("provider", provider.Name()),
			zap.String("webhook_id", event.ID.String()),
		)
		r.flagReview(ctx, event.ID, OutcomeBadFormat)
		res.Outcome = OutcomeBadFormat
		return res, nil
	}

	// Fast duplicate suppression by end-to-end ID.
	dedupeKey := provider.Name() + ":" + notice.EndToEndID
	if notice.EndToEndID != "" && r.dedupe.Seen(ctx, dedupeKey) {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	// Match.
	trade, err := r.trades.GetByReference(ctx, notice.ExternalTradeReference)
	if err != nil {
		if apperr.Is(err, apperr.KindNoMatch) {
			r.log.Warn("webhook references unknown trade",
				zap.String("provider", provider.Name()),
				zap.String("reference", notice.ExternalTradeReference),
			)
			r.flagReview(ctx, event.ID, OutcomeNoMatch)
			res.Outcome = OutcomeNoMatch
			return res, nil
		}
		return nil, err
	}
	res.TradeID = &trade.ID

	// Apply.
	outcome, err := r.apply(ctx, event.ID, trade, provider.Name(), notice)
	if err != nil {
		return nil, err
	}
	res.Outcome = outcome

	if outcome == OutcomeApplied || outcome == OutcomeDuplicate || outcome == OutcomeIgnored {
		if err := r.webhooks.MarkProcessed(ctx, event.ID, trade.ID); err != nil {
			return nil, err
		}
		if notice.EndToEndID != "" {
			r.dedupe.Mark(ctx, dedupeKey)
		}
	}
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, eventID uuid.UUID, trade *models.Trade, providerName string, notice *Notice) (string, error) {
	if notice.PaymentStatus != PaymentCompleted {
		// Pending/failed notices are recorded but change no state.
		return OutcomeIgnored, nil
	}

	// Idempotency: re-delivery against an already-settled trade is a
	// harmless duplicate.
	if models.IsTerminalTradeStatus(trade.Status) {
		return OutcomeDuplicate, nil
	}

	escrow, err := r.escrow.GetEscrowByTrade(ctx, trade.ID)
	if err != nil {
		return "", err
	}
	switch escrow.Status {
	case models.EscrowStatusPaymentConfirmed, models.EscrowStatusCompleted:
		return OutcomeDuplicate, nil
	case models.EscrowStatusFunded, models.EscrowStatusPaymentPending:
		// proceed
	default:
		// Paid before funding, or escrow already cancelled/disputed:
		// a human has to look at this one.
		r.log.Warn("payment arrived for escrow not awaiting payment",
			zap.String("escrow_id", escrow.ID.String()),
			zap.String("status", escrow.Status),
		)
		r.flagReview(ctx, eventID, "escrow_"+escrow.Status)
		return OutcomeManualReview, nil
	}

	if notice.Amount.IsPositive() && !notice.Amount.Equal(escrow.FiatAmount) {
		r.log.Warn("webhook amount does not match escrow",
			zap.String("escrow_id", escrow.ID.String()),
			zap.String("received", notice.Amount.String()),
			zap.String("expected", escrow.FiatAmount.String()),
		)
		r.flagReview(ctx, eventID, "amount_mismatch")
		return OutcomeManualReview, nil
	}

	err = r.escrow.ConfirmPaymentFromWebhook(ctx, escrow.ID, providerName, notice.EndToEndID)
	if err != nil {
		// A racing confirmation (manual seller click or a concurrent
		// delivery) winning first is the intended ordering guarantee.
		if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindInvalidTransition) {
			return OutcomeDuplicate, nil
		}
		return "", err
	}

	r.log.Info("payment reconciled",
		zap.String("trade_id", trade.ID.String()),
		zap.String("escrow_id", escrow.ID.String()),
		zap.String("provider", providerName),
		zap.String("end_to_end_id", notice.EndToEndID),
	)
	return OutcomeApplied, nil
}

func (r *Reconciler) flagReview(ctx context.Context, eventID uuid.UUID, reason string) {
	if err := r.webhooks.FlagManualReview(ctx, eventID, reason); err != nil {
		r.log.Error("failed to flag webhook for review",
			zap.String("webhook_id", eventID.String()),
			zap.Error(err),
		)
	}
}
