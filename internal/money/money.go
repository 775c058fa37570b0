package money

import (
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/shopspring/decimal"
)

// Amount is a fixed-precision monetary value with its currency code.
// Comparisons go through decimal arithmetic, never floats.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

func New(value decimal.Decimal, currency string) Amount {
	return Amount{Value: value, Currency: currency}
}

// Parse builds an Amount from a decimal string, rejecting malformed or
// non-positive values.
func Parse(value, currency string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, apperr.InvalidAmount("malformed amount %q", value)
	}
	a := Amount{Value: d, Currency: currency}
	if err := a.Validate(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

func (a Amount) Validate() error {
	if a.Currency == "" {
		return apperr.InvalidAmount("missing currency code")
	}
	if !a.Value.IsPositive() {
		return apperr.InvalidAmount("amount must be positive, got %s %s", a.Value, a.Currency)
	}
	return nil
}

func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

func (a Amount) String() string {
	return a.Value.String() + " " + a.Currency
}
