package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mmdatafocus/pos_backend/apperr"
)

// FakeProvider is an in-memory Provider for local runs and tests. Setting
// one of the Fail fields makes the matching call return it.
type FakeProvider struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*Authorization
	byKey   map[string]string

	FailCreate   error
	FailModify   error
	FailRetrieve error

	CreateCalls int
	ModifyCalls int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		intents: make(map[string]*Authorization),
		byKey:   make(map[string]string),
	}
}

func (f *FakeProvider) Name() string { return ProviderStripe }

func (f *FakeProvider) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if err := ctx.Err(); err != nil {
		return Authorization{}, &apperr.ExternalServiceError{Op: "create authorization", Retryable: true, Err: err}
	}
	if f.FailCreate != nil {
		return Authorization{}, f.FailCreate
	}
	if id, ok := f.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return *f.intents[id], nil
	}
	f.seq++
	id := fmt.Sprintf("pi_fake_%d", f.seq)
	a := &Authorization{
		Id:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	}
	a.Raw, _ = json.Marshal(a)
	f.intents[id] = a
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = id
	}
	return *a, nil
}

func (f *FakeProvider) ModifyAuthorization(ctx context.Context, id string, amountCents int64) (Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ModifyCalls++
	if f.FailModify != nil {
		return Authorization{}, f.FailModify
	}
	a, ok := f.intents[id]
	if !ok {
		return Authorization{}, &apperr.ExternalServiceError{Op: "modify authorization", Err: fmt.Errorf("no such payment intent: %s", id)}
	}
	a.AmountCents = amountCents
	a.Raw, _ = json.Marshal(a)
	return *a, nil
}

func (f *FakeProvider) RetrieveAuthorization(ctx context.Context, id string) (Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRetrieve != nil {
		return Authorization{}, f.FailRetrieve
	}
	a, ok := f.intents[id]
	if !ok {
		return Authorization{}, &apperr.ExternalServiceError{Op: "retrieve authorization", Err: fmt.Errorf("no such payment intent: %s", id)}
	}
	return *a, nil
}

// SetStatus moves an authorization to status, e.g. "succeeded".
func (f *FakeProvider) SetStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.intents[id]; ok {
		a.Status = status
	}
}

// Amount returns the current amount of id, or -1 when unknown.
func (f *FakeProvider) Amount(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.intents[id]; ok {
		return a.AmountCents
	}
	return -1
}

// VerifyAndParse accepts a JSON Event body when signatureHeader equals secret.
func (f *FakeProvider) VerifyAndParse(rawBody []byte, signatureHeader string, secret string) (Event, error) {
	if signatureHeader != secret {
		return Event{}, apperr.NewValidation("signature", "invalid webhook signature")
	}
	var evt Event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return Event{}, apperr.NewValidation("body", "malformed event: %v", err)
	}
	evt.Provider = ProviderStripe
	return evt, nil
}
