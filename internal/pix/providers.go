package pix

import (
	"encoding/json"
	"strings"

	"github.com/pixtrade/backend/internal/apperr"
	"github.com/shopspring/decimal"
)

// Provider names accepted on the webhook endpoint.
const (
	ProviderMercadoPago = "mercadopago"
	ProviderPagSeguro   = "pagseguro"
	ProviderGerencianet = "gerencianet"
	ProviderGeneric     = "generic"
)

// --- mercadopago ---

type mercadoPago struct{}

func (mercadoPago) Name() string            { return ProviderMercadoPago }
func (mercadoPago) SignatureHeader() string { return HeaderSignature }

func (mercadoPago) Verify(secret string, body []byte, signature string) error {
	return verifyHMAC(secret, body, signature)
}

type mercadoPagoPayload struct {
	Action string `json:"action"`
	Data   struct {
		ID                string          `json:"id"`
		Status            string          `json:"status"`
		ExternalReference string          `json:"external_reference"`
		TransactionAmount decimal.Decimal `json:"transaction_amount"`
		EndToEndID        string          `json:"end_to_end_id"`
	} `json:"data"`
}

func (mercadoPago) Normalize(body []byte) (*Notice, error) {
	var p mercadoPagoPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Data.ExternalReference == "" {
		return nil, apperr.New(apperr.KindUnknownFormat, "unrecognized mercadopago payload")
	}

	status := PaymentPending
	switch p.Data.Status {
	case "approved", "accredited":
		status = PaymentCompleted
	case "rejected", "cancelled", "refunded":
		status = PaymentFailed
	}

	return &Notice{
		ExternalTradeReference: p.Data.ExternalReference,
		PaymentStatus:          status,
		EndToEndID:             p.Data.EndToEndID,
		Amount:                 p.Data.TransactionAmount,
	}, nil
}

func (mercadoPago) Ack() (string, string) {
	return "application/json", `{"status":"ok"}`
}

// --- pagseguro ---

type pagSeguro struct{}

func (pagSeguro) Name() string            { return ProviderPagSeguro }
func (pagSeguro) SignatureHeader() string { return HeaderSignature }

func (pagSeguro) Verify(secret string, body []byte, signature string) error {
	return verifyHMAC(secret, body, signature)
}

type pagSeguroPayload struct {
	ReferenceID string `json:"reference_id"`
	Charges     []struct {
		Status string `json:"status"`
		Amount struct {
			// Amounts arrive in cents.
			Value int64 `json:"value"`
		} `json:"amount"`
		PaymentResponse struct {
			Reference string `json:"reference"`
		} `json:"payment_response"`
	} `json:"charges"`
}

func (pagSeguro) Normalize(body []byte) (*Notice, error) {
	var p pagSeguroPayload
	if err := json.Unmarshal(body, &p); err != nil || p.ReferenceID == "" || len(p.Charges) == 0 {
		return nil, apperr.New(apperr.KindUnknownFormat, "unrecognized pagseguro payload")
	}

	charge := p.Charges[0]
	status := PaymentPending
	switch charge.Status {
	case "PAID":
		status = PaymentCompleted
	case "DECLINED", "CANCELED":
		status = PaymentFailed
	}

	return &Notice{
		ExternalTradeReference: p.ReferenceID,
		PaymentStatus:          status,
		EndToEndID:             charge.PaymentResponse.Reference,
		Amount:                 decimal.New(charge.Amount.Value, -2),
	}, nil
}

func (pagSeguro) Ack() (string, string) {
	return "text/plain", "OK"
}

// --- gerencianet ---

type gerencianet struct{}

func (gerencianet) Name() string            { return ProviderGerencianet }
func (gerencianet) SignatureHeader() string { return HeaderHubSignature }

// Gerencianet prefixes the hex digest with the scheme name.
func (gerencianet) Verify(secret string, body []byte, signature string) error {
	return verifyHMAC(secret, body, strings.TrimPrefix(signature, "sha256="))
}

type gerencianetPayload struct {
	Pix []struct {
		TxID       string          `json:"txid"`
		EndToEndID string          `json:"endToEndId"`
		Valor      decimal.Decimal `json:"valor"`
	} `json:"pix"`
}

// A pix entry in a gerencianet notification means the payment settled.
func (gerencianet) Normalize(body []byte) (*Notice, error) {
	var p gerencianetPayload
	if err := json.Unmarshal(body, &p); err != nil || len(p.Pix) == 0 || p.Pix[0].TxID == "" {
		return nil, apperr.New(apperr.KindUnknownFormat, "unrecognized gerencianet payload")
	}

	entry := p.Pix[0]
	return &Notice{
		ExternalTradeReference: entry.TxID,
		PaymentStatus:          PaymentCompleted,
		EndToEndID:             entry.EndToEndID,
		Amount:                 entry.Valor,
	}, nil
}

func (gerencianet) Ack() (string, string) {
	return "application/json", `{"status":"RECEIVED"}`
}

// --- generic/manual ---

type generic struct{}

func (generic) Name() string            { return ProviderGeneric }
func (generic) SignatureHeader() string { return HeaderHubSignature }

func (generic) Verify(secret string, body []byte, signature string) error {
	return verifyHMAC(secret, body, strings.TrimPrefix(signature, "sha256="))
}

type genericPayload struct {
	TradeReference string          `json:"trade_reference"`
	Status         string          `json:"status"`
	EndToEndID     string          `json:"end_to_end_id"`
	Amount         decimal.Decimal `json:"amount"`
}

func (generic) Normalize(body []byte) (*Notice, error) {
	var p genericPayload
	if err := json.Unmarshal(body, &p); err != nil || p.TradeReference == "" || p.Status == "" {
		return nil, apperr.New(apperr.KindUnknownFormat, "unrecognized payload")
	}

	status := p.Status
	switch status {
	case PaymentCompleted, PaymentPending, PaymentFailed:
	default:
		return nil, apperr.New(apperr.KindUnknownFormat, "unknown payment status %q", p.Status)
	}

	return &Notice{
		ExternalTradeReference: p.TradeReference,
		PaymentStatus:          status,
		EndToEndID:             p.EndToEndID,
		Amount:                 p.Amount,
	}, nil
}

func (generic) Ack() (string, string) {
	return "application/json", `{"received":true}`
}
