package pix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pixtrade/backend/internal/apperr"
	"github.com/shopspring/decimal"
)

// Normalized payment statuses.
const (
	PaymentCompleted = "completed"
	PaymentPending   = "pending"
	PaymentFailed    = "failed"
)

// Notice is the provider-agnostic confirmation extracted from a webhook
// payload.
type Notice struct {
	ExternalTradeReference string
	PaymentStatus          string
	EndToEndID             string
	Amount                 decimal.Decimal
}

// Provider is one supported PIX payment provider: a closed set of
// variants each carrying its own verification scheme, payload shape, and
// acknowledgement format, selected through the registry below.
type Provider interface {
	Name() string
	// SignatureHeader names the HTTP header the provider signs with.
	SignatureHeader() string
	// Verify checks the signature over the raw body.
	Verify(secret string, body []byte, signature string) error
	// Normalize parses the provider payload into a Notice.
	Normalize(body []byte) (*Notice, error)
	// Ack returns the success response the provider expects; returning
	// anything else causes unbounded provider retries.
	Ack() (contentType, body string)
}

const (
	HeaderSignature    = "x-signature"
	HeaderHubSignature = "x-hub-signature-256"
)

var registry = map[string]Provider{
	ProviderMercadoPago: mercadoPago{},
	ProviderPagSeguro:   pagSeguro{},
	ProviderGerencianet: gerencianet{},
	ProviderGeneric:     generic{},
}

// Lookup resolves a provider name; unrecognized names fall back to the
// generic variant so the payload still gets logged and acknowledged.
func Lookup(name string) Provider {
	if p, ok := registry[name]; ok {
		return p
	}
	return generic{}
}

// verifyHMAC checks a hex-encoded HMAC-SHA256 of the raw body in
// constant time.
func verifyHMAC(secret string, body []byte, signature string) error {
	if signature == "" {
		return apperr.New(apperr.KindSignatureInvalid, "missing signature header")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperr.New(apperr.KindSignatureInvalid, "signature mismatch")
	}
	return nil
}
