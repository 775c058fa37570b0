package dto

type CreateTradeRequest struct {
	OrderID           string  `json:"order_id"`
	SellerID          string  `json:"seller_id"`
	PaymentMethod     string  `json:"payment_method"` // pix
	ExternalReference *string `json:"external_reference,omitempty"`
	CryptoAmount      string  `json:"crypto_amount"`
	CryptoCurrency    string  `json:"crypto_currency"`
	FiatAmount        string  `json:"fiat_amount"`
	FiatCurrency      string  `json:"fiat_currency"`
	DeadlineMinutes   int     `json:"deadline_minutes,omitempty"`
}

type UpdateTradeStatusRequest struct {
	Status        string  `json:"status"`
	DisputeReason *string `json:"dispute_reason,omitempty"`
}

type MarkFundedRequest struct {
	CustodyAddress string `json:"custody_address"`
}

type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Outcome string `json:"outcome"` // completed / cancelled
}
