package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

func (p *StripeProvider) Name() string { return ProviderStripe }

func (p *StripeProvider) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return Authorization{}, wrapStripeErr(ctx, "create authorization", err)
	}
	return fromIntent(pi), nil
}

func (p *StripeProvider) ModifyAuthorization(ctx context.Context, id string, amountCents int64) (Authorization, error) {
	params := &stripe.PaymentIntentParams{Amount: stripe.Int64(amountCents)}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Update(id, params)
	if err != nil {
		return Authorization{}, wrapStripeErr(ctx, "modify authorization", err)
	}
	return fromIntent(pi), nil
}

func (p *StripeProvider) RetrieveAuthorization(ctx context.Context, id string) (Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return Authorization{}, wrapStripeErr(ctx, "retrieve authorization", err)
	}
	return fromIntent(pi), nil
}

// VerifyAndParse checks the Stripe-Signature header and decodes payment intent events.
func (p *StripeProvider) VerifyAndParse(rawBody []byte, signatureHeader string, secret string) (Event, error) {
	if secret == "" {
		return Event{}, errors.New("webhook secret not configured")
	}
	evt, err := webhook.ConstructEventWithOptions(rawBody, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, apperr.NewValidation("signature", "invalid webhook signature: %v", err)
	}
	out := Event{
		Id:       evt.ID,
		Type:     string(evt.Type),
		Provider: ProviderStripe,
	}
	if evt.Data == nil {
		return out, nil
	}
	out.Raw = evt.Data.Raw
	if strings.HasPrefix(out.Type, "payment_intent.") {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return Event{}, apperr.NewValidation("data.object", "malformed payment intent: %v", err)
		}
		out.Reference = pi.ID
		out.Status = string(pi.Status)
		out.Metadata = pi.Metadata
	}
	return out, nil
}

func fromIntent(pi *stripe.PaymentIntent) Authorization {
	raw, _ := json.Marshal(pi)
	return Authorization{
		Id:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Raw:          raw,
	}
}

// wrapStripeErr classifies failures: timeouts, rate limits and 5xx can be retried.
func wrapStripeErr(ctx context.Context, op string, err error) error {
	retryable := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500 || se.Type == stripe.ErrorTypeAPI {
			retryable = true
		}
		if se.Msg != "" {
			err = fmt.Errorf("%s: %w", se.Msg, err)
		}
	}
	return &apperr.ExternalServiceError{Op: op, Retryable: retryable, Err: err}
}
