package workflow

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/payment"
)

func paymentEvent(id, typ, reference string) payment.Event {
	return payment.Event{
		Id:        id,
		Type:      typ,
		Provider:  payment.ProviderStripe,
		Reference: reference,
		Raw:       json.RawMessage(`{"id":"` + reference + `"}`),
	}
}

func TestProcessPaymentEvent_SucceededIsAppliedOnce(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	cart, res := checkedOut(t, db, provider)

	outcome, err := ProcessPaymentEvent(ctxBg, db, testLogger(), paymentEvent("evt_1", payment.EventPaymentSucceeded, res.PaymentIntentId))
	if err != nil {
		t.Fatalf("ProcessPaymentEvent: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	order, err := models.GetOrder(db, res.OrderId)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Status != models.OrderStatusPaid || order.PlacedAt == nil {
		t.Fatalf("expected paid order with placed_at, got %s %v", order.Status, order.PlacedAt)
	}
	pay, err := models.FindOrderPayment(db, order.ID, payment.ProviderStripe, res.PaymentIntentId)
	if err != nil {
		t.Fatalf("FindOrderPayment: %v", err)
	}
	if pay.Status != models.PaymentStatusCaptured || pay.RawResponse == "" {
		t.Fatalf("expected captured payment with raw response, got %+v", pay)
	}
	closed, err := models.GetCart(db, cart.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if !closed.IsClosed() {
		t.Fatalf("expected cart closed")
	}
	closedAt := *closed.ClosedAt

	// redelivery of the same event, then a different event for the same payment
	for _, evt := range []payment.Event{
		paymentEvent("evt_1", payment.EventPaymentSucceeded, res.PaymentIntentId),
		paymentEvent("evt_2", payment.EventPaymentSucceeded, res.PaymentIntentId),
	} {
		outcome, err := ProcessPaymentEvent(ctxBg, db, testLogger(), evt)
		if err != nil {
			t.Fatalf("ProcessPaymentEvent %s: %v", evt.Id, err)
		}
		if outcome != OutcomeDuplicate {
			t.Fatalf("%s: expected duplicate, got %s", evt.Id, outcome)
		}
	}

	again, err := models.GetCart(db, cart.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if !again.ClosedAt.Equal(closedAt) {
		t.Fatalf("cart closed twice: %v then %v", closedAt, *again.ClosedAt)
	}
	if n := countRows(t, db, &models.OutboxEvent{}, "event_type = ?", models.EventOrderPaid); n != 1 {
		t.Fatalf("expected one order.paid event, got %d", n)
	}
	if n := countRows(t, db, &models.IdempotencyKey{}, "status = ?", models.IdempotencyStatusSucceeded); n != 2 {
		t.Fatalf("expected two recorded deliveries, got %d", n)
	}
}

func TestProcessPaymentEvent_FailureAfterPaymentKeepsOrderPaid(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	_, res := checkedOut(t, db, provider)

	if _, err := ProcessPaymentEvent(ctxBg, db, testLogger(), paymentEvent("evt_ok", payment.EventPaymentSucceeded, res.PaymentIntentId)); err != nil {
		t.Fatalf("succeeded: %v", err)
	}
	if _, err := ProcessPaymentEvent(ctxBg, db, testLogger(), paymentEvent("evt_late", payment.EventPaymentFailed, res.PaymentIntentId)); err != nil {
		t.Fatalf("failed: %v", err)
	}

	order, err := models.GetOrder(db, res.OrderId)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Status != models.OrderStatusPaid {
		t.Fatalf("expected order to stay paid, got %s", order.Status)
	}
	pay, err := models.FindOrderPayment(db, order.ID, payment.ProviderStripe, res.PaymentIntentId)
	if err != nil {
		t.Fatalf("FindOrderPayment: %v", err)
	}
	if pay.Status != models.PaymentStatusCaptured {
		t.Fatalf("expected payment to stay captured, got %s", pay.Status)
	}
	if n := countRows(t, db, &models.OutboxEvent{}, "event_type = ?", models.EventOrderFailed); n != 0 {
		t.Fatalf("expected no order.failed events, got %d", n)
	}
}

func TestProcessPaymentEvent_FailedMarksPendingOrderFailed(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	cart, res := checkedOut(t, db, provider)

	outcome, err := ProcessPaymentEvent(ctxBg, db, testLogger(), paymentEvent("evt_fail", payment.EventPaymentFailed, res.PaymentIntentId))
	if err != nil {
		t.Fatalf("ProcessPaymentEvent: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}
	order, err := models.GetOrder(db, res.OrderId)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Status != models.OrderStatusFailed {
		t.Fatalf("expected failed order, got %s", order.Status)
	}
	reloaded, err := models.GetCart(db, cart.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if reloaded.IsClosed() {
		t.Fatalf("a failed payment must not close the cart")
	}
	if n := countRows(t, db, &models.OutboxEvent{}, "event_type = ? AND reference_id = ?", models.EventOrderFailed, order.ID); n != 1 {
		t.Fatalf("expected one order.failed event, got %d", n)
	}
}

func TestProcessPaymentEvent_AcknowledgedNoOps(t *testing.T) {
	db := openTestDB(t)

	outcome, err := ProcessPaymentEvent(ctxBg, db, testLogger(), paymentEvent("evt_x", "charge.refunded", "pi_1"))
	if err != nil || outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %s %v", outcome, err)
	}
	if n := countRows(t, db, &models.IdempotencyKey{}, ""); n != 0 {
		t.Fatalf("ignored events must not be recorded, got %d keys", n)
	}

	outcome, err = ProcessPaymentEvent(ctxBg, db, testLogger(), paymentEvent("evt_y", payment.EventPaymentSucceeded, "pi_missing"))
	if err != nil || outcome != OutcomeUnknownReference {
		t.Fatalf("expected unknown_reference, got %s %v", outcome, err)
	}
}

func TestHandleWebhook_VerifiesThenApplies(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	_, res := checkedOut(t, db, provider)
	body := []byte(`{"id":"evt_hook","type":"payment_intent.succeeded","reference":"` + res.PaymentIntentId + `","metadata":{"order_id":"` + strconv.Itoa(res.OrderId) + `"}}`)

	if _, err := HandleWebhook(ctxBg, db, provider, testLogger(), body, "whsec_test", ""); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error without secret, got %v", err)
	}
	if _, err := HandleWebhook(ctxBg, db, provider, testLogger(), body, "forged", "whsec_test"); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for bad signature, got %v", err)
	}
	outcome, err := HandleWebhook(ctxBg, db, provider, testLogger(), body, "whsec_test", "whsec_test")
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}
}

func TestCartForOrder(t *testing.T) {
	cartId := 7
	tests := []struct {
		name   string
		order  models.Order
		meta   map[string]string
		wantId int
		wantOk bool
	}{
		{"order link", models.Order{CartId: &cartId}, map[string]string{"cart_id": "9"}, 7, true},
		{"metadata fallback", models.Order{}, map[string]string{"cart_id": "9"}, 9, true},
		{"none", models.Order{}, map[string]string{"cart_id": "abc"}, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := cartForOrder(&tc.order, payment.Event{Metadata: tc.meta})
			if id != tc.wantId || ok != tc.wantOk {
				t.Fatalf("got (%d, %v), want (%d, %v)", id, ok, tc.wantId, tc.wantOk)
			}
		})
	}
}
