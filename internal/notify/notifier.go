package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification event types shown to users.
const (
	EventPaymentSent      = "payment_sent"
	EventPaymentConfirmed = "payment_confirmed"
	EventTradeCompleted   = "trade_completed"
	EventTradeCancelled   = "trade_cancelled"
	EventTradeExpired     = "trade_expired"
	EventDisputeOpened    = "dispute_opened"
)

// Notifier is the fire-and-forget side channel for user alerts. Failures
// must never roll back the state transition that triggered them.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, tradeID uuid.UUID, eventType string)
}

// Nop discards notifications; used in tests.
type Nop struct{}

func (Nop) NotifyUser(context.Context, uuid.UUID, uuid.UUID, string) {}

// HTTPNotifier posts alerts to the internal notification bridge.
type HTTPNotifier struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPNotifier(baseURL string, log *zap.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

type notifyRequest struct {
	UserID    string `json:"user_id"`
	TradeID   string `json:"trade_id"`
	EventType string `json:"event_type"`
}

func (n *HTTPNotifier) NotifyUser(ctx context.Context, userID, tradeID uuid.UUID, eventType string) {
	if n.baseURL == "" {
		return
	}

	body, _ := json.Marshal(notifyRequest{
		UserID:    userID.String(),
		TradeID:   tradeID.String(),
		EventType: eventType,
	})

	url := fmt.Sprintf("%s/internal/notify", n.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("notify request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Warn("notification service unavailable",
			zap.String("user_id", userID.String()),
			zap.String("event", eventType),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn("notification rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("event", eventType),
		)
	}
}
