package models

// Payment status values as reported by the checkout provider.
const (
	PaymentStatusSucceeded = "succeeded"
)

// PriceRef is the minimal shape of a provider price object.
type PriceRef struct {
	ID string `json:"id"`
}

// LineItem is one purchased item inside a payment.
type LineItem struct {
	Price *PriceRef `json:"price,omitempty"`
}

// PaymentEvent is a payment-completion record written by the checkout
// provider. Any of Items, Price, Prices or Amount may be missing; the
// reconciler probes them in order.
type PaymentEvent struct {
	ID       string     `json:"id,omitempty"`
	Status   string     `json:"status"`
	Amount   int64      `json:"amount,omitempty"`
	Currency string     `json:"currency,omitempty"`
	Items    []LineItem `json:"items,omitempty"`
	Price    *PriceRef  `json:"price,omitempty"`
	Prices   []PriceRef `json:"prices,omitempty"`
	Created  int64      `json:"created,omitempty"`
}
