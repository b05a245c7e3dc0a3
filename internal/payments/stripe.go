package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aipainter/backend/internal/models"
)

var (
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	ErrInvalidPayload   = errors.New("payments: invalid webhook payload")
	ErrEventIgnored     = errors.New("payments: event type ignored")
)

// DefaultSignatureTolerance bounds how old a signed timestamp may be.
const DefaultSignatureTolerance = 5 * time.Minute

// SignatureVerifier checks the Stripe-Signature header of a webhook delivery.
type SignatureVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &SignatureVerifier{secret: strings.TrimSpace(secret), tolerance: tolerance, now: time.Now}
}

// Verify checks header ("t=<unix>,v1=<hex>[,v1=...]") against payload.
func (v *SignatureVerifier) Verify(payload []byte, header string) error {
	if v == nil || v.secret == "" {
		return ErrInvalidSignature
	}
	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if age := v.now().Sub(time.Unix(unix, 0)); age > v.tolerance || age < -v.tolerance {
		return ErrInvalidSignature
	}

	expected := Sign(v.secret, ts, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns the hex v1 signature for payload at timestamp ts.
func Sign(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (string, []string, error) {
	var ts string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "t":
			ts = strings.TrimSpace(kv[1])
		case "v1":
			signatures = append(signatures, strings.TrimSpace(kv[1]))
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("malformed signature header")
	}
	return ts, signatures, nil
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     json.RawMessage   `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Created           int64             `json:"created"`
	Metadata          map[string]string `json:"metadata"`
	LineItems         *struct {
		Data []models.LineItem `json:"data"`
	} `json:"line_items"`
}

type stripePaymentIntent struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Created        int64             `json:"created"`
	Metadata       map[string]string `json:"metadata"`
}

// ParseStripeEvent maps a verified webhook body to a Delivery. Event types
// other than checkout.session.completed and payment_intent.succeeded return
// ErrEventIgnored.
func ParseStripeEvent(payload []byte) (Delivery, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" || len(event.Data.Object) == 0 {
		return Delivery{}, ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return parseCheckoutSession(event)
	case "payment_intent.succeeded":
		return parsePaymentIntent(event)
	default:
		return Delivery{}, ErrEventIgnored
	}
}

func parseCheckoutSession(event stripeEvent) (Delivery, error) {
	var s stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &s); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	status := s.PaymentStatus
	if status == "paid" || status == "no_payment_required" {
		status = models.PaymentStatusSucceeded
	}
	ev := models.PaymentEvent{
		ID:       event.ID,
		Status:   status,
		Amount:   s.AmountTotal,
		Currency: strings.ToLower(s.Currency),
		Created:  firstNonZero(s.Created, event.Created),
	}
	if s.LineItems != nil {
		ev.Items = s.LineItems.Data
	}
	if id := s.Metadata["price_id"]; id != "" {
		ev.Price = &models.PriceRef{ID: id}
	}

	paymentID := paymentIntentID(s.PaymentIntent)
	if paymentID == "" {
		paymentID = s.ID
	}
	return Delivery{
		UserID:    firstNonEmpty(s.ClientReferenceID, s.Metadata["user_id"]),
		PaymentID: paymentID,
		Event:     ev,
	}, nil
}

func parsePaymentIntent(event stripeEvent) (Delivery, error) {
	var pi stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	amount := pi.AmountReceived
	if amount <= 0 {
		amount = pi.Amount
	}
	ev := models.PaymentEvent{
		ID:       event.ID,
		Status:   pi.Status,
		Amount:   amount,
		Currency: strings.ToLower(pi.Currency),
		Created:  firstNonZero(pi.Created, event.Created),
	}
	if id := pi.Metadata["price_id"]; id != "" {
		ev.Price = &models.PriceRef{ID: id}
	}
	return Delivery{
		UserID:    pi.Metadata["user_id"],
		PaymentID: pi.ID,
		Event:     ev,
	}, nil
}

// paymentIntentID accepts both the collapsed ("pi_...") and expanded forms.
func paymentIntentID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}
