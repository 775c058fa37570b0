package pix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/pixtrade/backend/internal/apperr"
	"github.com/shopspring/decimal"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestLookupFallsBackToGeneric(t *testing.T) {
	if Lookup("mercadopago").Name() != ProviderMercadoPago {
		t.Error("expected mercadopago provider")
	}
	if Lookup("some-unknown-psp").Name() != ProviderGeneric {
		t.Error("unknown provider name must resolve to generic")
	}
}

func TestVerifyHMAC(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"data":{"status":"approved"}}`)

	tests := []struct {
		name      string
		signature string
		wantErr   bool
	}{
		{"valid", sign(secret, body), false},
		{"missing", "", true},
		{"wrong secret", sign("other-secret", body), true},
		{"tampered body", sign(secret, []byte(`{"data":{"status":"rejected"}}`)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mercadoPago{}.Verify(secret, body, tt.signature)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindSignatureInvalid) {
					t.Errorf("expected signature_invalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGerencianetVerifyStripsSchemePrefix(t *testing.T) {
	secret := "s3cret"
	body := []byte(`{"pix":[{"txid":"abc"}]}`)

	if err := (gerencianet{}).Verify(secret, body, "sha256="+sign(secret, body)); err != nil {
		t.Errorf("prefixed signature must verify: %v", err)
	}
	if err := (gerencianet{}).Verify(secret, body, sign(secret, body)); err != nil {
		t.Errorf("bare signature must verify: %v", err)
	}
}

func TestMercadoPagoNormalize(t *testing.T) {
	body := []byte(`{
		"action": "payment.updated",
		"data": {
			"id": "12345",
			"status": "approved",
			"external_reference": "trade-ref-1",
			"transaction_amount": 150.50,
			"end_to_end_id": "E12345678202601011200abcdef"
		}
	}`)

	n, err := mercadoPago{}.Normalize(body)
	if err != nil {
		t.Fatal(err)
	}
	if n.ExternalTradeReference != "trade-ref-1" {
		t.Errorf("reference = %q", n.ExternalTradeReference)
	}
	if n.PaymentStatus != PaymentCompleted {
		t.Errorf("status = %q, want completed", n.PaymentStatus)
	}
	if !n.Amount.Equal(decimal.RequireFromString("150.50")) {
		t.Errorf("amount = %s", n.Amount)
	}
	if n.EndToEndID != "E12345678202601011200abcdef" {
		t.Errorf("end-to-end id = %q", n.EndToEndID)
	}
}

func TestMercadoPagoNormalizeStatuses(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"approved", PaymentCompleted},
		{"accredited", PaymentCompleted},
		{"pending", PaymentPending},
		{"in_process", PaymentPending},
		{"rejected", PaymentFailed},
		{"refunded", PaymentFailed},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			body := []byte(`{"data":{"status":"` + tt.provider + `","external_reference":"r1","transaction_amount":10}}`)
			n, err := mercadoPago{}.Normalize(body)
			if err != nil {
				t.Fatal(err)
			}
			if n.PaymentStatus != tt.want {
				t.Errorf("status %q normalized to %q, want %q", tt.provider, n.PaymentStatus, tt.want)
			}
		})
	}
}

func TestPagSeguroNormalizeConvertsCents(t *testing.T) {
	body := []byte(`{
		"reference_id": "trade-ref-2",
		"charges": [{
			"status": "PAID",
			"amount": {"value": 15050},
			"payment_response": {"reference": "E99999999202601011200aaaa"}
		}]
	}`)

	n, err := pagSeguro{}.Normalize(body)
	if err != nil {
		t.Fatal(err)
	}
	if n.PaymentStatus != PaymentCompleted {
		t.Errorf("status = %q", n.PaymentStatus)
	}
	if !n.Amount.Equal(decimal.RequireFromString("150.50")) {
		t.Errorf("amount = %s, want 150.50", n.Amount)
	}
	if n.EndToEndID != "E99999999202601011200aaaa" {
		t.Errorf("end-to-end id = %q", n.EndToEndID)
	}
}

func TestGerencianetNormalize(t *testing.T) {
	body := []byte(`{
		"pix": [{
			"txid": "trade-ref-3",
			"endToEndId": "E88888888202601011200bbbb",
			"valor": "75.00"
		}]
	}`)

	n, err := gerencianet{}.Normalize(body)
	if err != nil {
		t.Fatal(err)
	}
	if n.PaymentStatus != PaymentCompleted {
		t.Errorf("pix entry must mean settled, got %q", n.PaymentStatus)
	}
	if n.ExternalTradeReference != "trade-ref-3" {
		t.Errorf("reference = %q", n.ExternalTradeReference)
	}
}

func TestNormalizeRejectsUnknownFormats(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		body     string
	}{
		{"mercadopago not json", mercadoPago{}, `not json at all`},
		{"mercadopago missing reference", mercadoPago{}, `{"data":{"status":"approved"}}`},
		{"pagseguro no charges", pagSeguro{}, `{"reference_id":"x","charges":[]}`},
		{"gerencianet empty pix", gerencianet{}, `{"pix":[]}`},
		{"generic missing status", generic{}, `{"trade_reference":"x"}`},
		{"generic bad status", generic{}, `{"trade_reference":"x","status":"maybe"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.provider.Normalize([]byte(tt.body))
			if !apperr.Is(err, apperr.KindUnknownFormat) {
				t.Errorf("expected unknown_webhook_format, got %v", err)
			}
		})
	}
}
