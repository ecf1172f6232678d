// Package payment is the boundary to the card processor: authorizations are
// created and resized through Provider, and signed webhooks come back as Events.
package payment

import (
	"context"
	"encoding/json"
)

const ProviderStripe = "stripe"

// Webhook event types the reconciler acts on. Anything else is acknowledged.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// Authorization statuses after which the amount can no longer change.
const (
	StatusSucceeded = "succeeded"
	StatusCanceled  = "canceled"
)

type AuthorizationRequest struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type Authorization struct {
	Id           string          `json:"id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Status       string          `json:"status"`
	AmountCents  int64           `json:"amount"`
	Currency     string          `json:"currency"`
	Raw          json.RawMessage `json:"-"`
}

// IsFinal reports whether the processor has settled or voided the authorization.
func (a Authorization) IsFinal() bool {
	return a.Status == StatusSucceeded || a.Status == StatusCanceled
}

// Event is a verified webhook delivery.
type Event struct {
	Id        string
	Type      string
	Provider  string
	Reference string
	Status    string
	Metadata  map[string]string
	// Raw is the event's data object, stored on the payment row.
	Raw json.RawMessage
}

type Provider interface {
	Name() string
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error)
	ModifyAuthorization(ctx context.Context, id string, amountCents int64) (Authorization, error)
	RetrieveAuthorization(ctx context.Context, id string) (Authorization, error)
	VerifyAndParse(rawBody []byte, signatureHeader string, secret string) (Event, error)
}
