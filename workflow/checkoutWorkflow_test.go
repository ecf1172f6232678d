package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/payment"
	"github.com/mmdatafocus/pos_backend/utils"
	"gorm.io/gorm"
)

func TestPrepareCheckout_StagesPendingOrderAndAuthorization(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	cart, res := checkedOut(t, db, provider)

	if res.AmountCents != 1658 {
		t.Fatalf("expected 1658 cents, got %d", res.AmountCents)
	}
	if got := res.Totals.GrandTotal.StringFixed(2); got != "16.58" {
		t.Fatalf("expected grand total 16.58, got %s", got)
	}
	if got := provider.Amount(res.PaymentIntentId); got != 1658 {
		t.Fatalf("expected authorization of 1658, got %d", got)
	}
	if res.ClientSecret == "" {
		t.Fatalf("expected client secret")
	}

	order, err := models.GetOrder(db, res.OrderId)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Status != models.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", order.Status)
	}
	if order.PaymentReference == nil || *order.PaymentReference != res.PaymentIntentId {
		t.Fatalf("expected payment reference %s, got %v", res.PaymentIntentId, order.PaymentReference)
	}
	if order.CartId == nil || *order.CartId != cart.ID {
		t.Fatalf("expected order linked to cart %d", cart.ID)
	}
	if len(order.Items) != 1 || order.Items[0].Qty != 3 || order.Items[0].LineTotal.StringFixed(2) != "13.50" {
		t.Fatalf("unexpected order items: %+v", order.Items)
	}
	if len(order.Items[0].Modifiers) != 1 || order.Items[0].Modifiers[0].Name != "Bacon" {
		t.Fatalf("expected bacon modifier, got %+v", order.Items[0].Modifiers)
	}

	pay, err := models.FindOrderPayment(db, order.ID, payment.ProviderStripe, res.PaymentIntentId)
	if err != nil {
		t.Fatalf("FindOrderPayment: %v", err)
	}
	if pay.Status != models.PaymentStatusPending || pay.Amount.StringFixed(2) != "16.58" {
		t.Fatalf("unexpected payment: %+v", pay)
	}

	// the cart stays open until the payment succeeds
	reloaded, err := models.GetCart(db, cart.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if reloaded.IsClosed() {
		t.Fatalf("cart must stay open at checkout")
	}
}

func TestPrepareCheckout_ProviderFailureLeavesNothing(t *testing.T) {
	db := openTestDB(t)
	t.Setenv("TAX_RATE", "0.08")
	cart := burgerCart(t, db)
	provider := payment.NewFakeProvider()
	provider.FailCreate = errors.New("processor unavailable")

	_, err := PrepareCheckout(ctxBg, db, provider, testLogger(), CheckoutInput{
		CartId: cart.ID, TipCents: 200, SessionToken: guestToken,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected retryable external error, got %v", err)
	}
	if n := countRows(t, db, &models.Order{}, ""); n != 0 {
		t.Fatalf("expected no orders, got %d", n)
	}
	if n := countRows(t, db, &models.OrderItem{}, ""); n != 0 {
		t.Fatalf("expected no order items, got %d", n)
	}
	if n := countRows(t, db, &models.Payment{}, ""); n != 0 {
		t.Fatalf("expected no payments, got %d", n)
	}
}

func TestPrepareCheckout_Rejections(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	cart := burgerCart(t, db)

	empty, err := models.CreateCart(db, &models.NewCart{SessionToken: "empty-session"})
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	closed, err := models.CreateCart(db, &models.NewCart{SessionToken: "closed-session"})
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if _, err := models.CloseCart(db, closed.ID, time.Now().UTC()); err != nil {
		t.Fatalf("CloseCart: %v", err)
	}

	tests := []struct {
		name  string
		input CheckoutInput
		check func(error) bool
	}{
		{"wrong session", CheckoutInput{CartId: cart.ID, SessionToken: "someone-else"}, func(err error) bool { return errors.Is(err, utils.ErrorRecordNotFound) }},
		{"missing cart", CheckoutInput{CartId: 9999, SessionToken: guestToken}, func(err error) bool { return errors.Is(err, utils.ErrorRecordNotFound) }},
		{"empty cart", CheckoutInput{CartId: empty.ID, SessionToken: "empty-session"}, apperr.IsValidation},
		{"closed cart", CheckoutInput{CartId: closed.ID, SessionToken: "closed-session"}, apperr.IsInvalidState},
		{"negative tip", CheckoutInput{CartId: cart.ID, TipCents: -1, SessionToken: guestToken}, apperr.IsValidation},
		{"bad fulfillment", CheckoutInput{CartId: cart.ID, Fulfillment: "drone", SessionToken: guestToken}, apperr.IsValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PrepareCheckout(ctxBg, db, provider, testLogger(), tc.input)
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
	if provider.CreateCalls != 0 {
		t.Fatalf("provider must not be called for rejected checkouts, got %d calls", provider.CreateCalls)
	}
}

func TestUpdateTip_ResizesAuthorizationThenTotals(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	_, res := checkedOut(t, db, provider)

	totals, err := UpdateTip(ctxBg, db, provider, testLogger(), TipUpdateInput{
		OrderId: res.OrderId, TipCents: 500, SessionToken: guestToken,
	})
	if err != nil {
		t.Fatalf("UpdateTip: %v", err)
	}
	if got := totals.GrandTotal.StringFixed(2); got != "19.58" {
		t.Fatalf("expected 19.58, got %s", got)
	}
	if totals.GrandTotalCents() != 1958 {
		t.Fatalf("expected 1958 cents, got %d", totals.GrandTotalCents())
	}
	if got := provider.Amount(res.PaymentIntentId); got != 1958 {
		t.Fatalf("expected authorization resized to 1958, got %d", got)
	}

	order, err := models.GetOrder(db, res.OrderId)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Tip.StringFixed(2) != "5.00" || order.GrandTotal.StringFixed(2) != "19.58" {
		t.Fatalf("unexpected stored totals tip=%s grand=%s", order.Tip, order.GrandTotal)
	}
	pay, err := models.FindOrderPayment(db, order.ID, payment.ProviderStripe, res.PaymentIntentId)
	if err != nil {
		t.Fatalf("FindOrderPayment: %v", err)
	}
	if pay.Amount.StringFixed(2) != "19.58" {
		t.Fatalf("expected payment amount 19.58, got %s", pay.Amount)
	}
}

func TestUpdateTip_LeavesTotalsUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		arrange func(t *testing.T, db *gorm.DB, provider *payment.FakeProvider, res *CheckoutResult) TipUpdateInput
		check   func(error) bool
	}{
		{
			name: "paid order",
			arrange: func(t *testing.T, db *gorm.DB, provider *payment.FakeProvider, res *CheckoutResult) TipUpdateInput {
				if err := db.Model(&models.Order{}).Where("id = ?", res.OrderId).Update("status", models.OrderStatusPaid).Error; err != nil {
					t.Fatalf("mark paid: %v", err)
				}
				return TipUpdateInput{OrderId: res.OrderId, TipCents: 500, SessionToken: guestToken}
			},
			check: apperr.IsInvalidState,
		},
		{
			name: "authorization already captured",
			arrange: func(t *testing.T, db *gorm.DB, provider *payment.FakeProvider, res *CheckoutResult) TipUpdateInput {
				provider.SetStatus(res.PaymentIntentId, payment.StatusSucceeded)
				return TipUpdateInput{OrderId: res.OrderId, TipCents: 500, SessionToken: guestToken}
			},
			check: apperr.IsInvalidState,
		},
		{
			name: "provider rejects the change",
			arrange: func(t *testing.T, db *gorm.DB, provider *payment.FakeProvider, res *CheckoutResult) TipUpdateInput {
				provider.FailModify = errors.New("card declined resize")
				return TipUpdateInput{OrderId: res.OrderId, TipCents: 500, SessionToken: guestToken}
			},
			check: apperr.IsRetryable,
		},
		{
			name: "tip over the maximum",
			arrange: func(t *testing.T, db *gorm.DB, provider *payment.FakeProvider, res *CheckoutResult) TipUpdateInput {
				t.Setenv("MAX_TIP_CENTS", "1000")
				return TipUpdateInput{OrderId: res.OrderId, TipCents: 1001, SessionToken: guestToken}
			},
			check: apperr.IsValidation,
		},
		{
			name: "stranger",
			arrange: func(t *testing.T, db *gorm.DB, provider *payment.FakeProvider, res *CheckoutResult) TipUpdateInput {
				return TipUpdateInput{OrderId: res.OrderId, TipCents: 500, SessionToken: "not-mine"}
			},
			check: func(err error) bool { return errors.Is(err, utils.ErrorRecordNotFound) },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := openTestDB(t)
			provider := payment.NewFakeProvider()
			_, res := checkedOut(t, db, provider)

			input := tc.arrange(t, db, provider, res)
			_, err := UpdateTip(ctxBg, db, provider, testLogger(), input)
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}

			order, err := models.GetOrder(db, res.OrderId)
			if err != nil {
				t.Fatalf("GetOrder: %v", err)
			}
			if order.Tip.StringFixed(2) != "2.00" || order.GrandTotal.StringFixed(2) != "16.58" {
				t.Fatalf("totals changed: tip=%s grand=%s", order.Tip, order.GrandTotal)
			}
			if got := provider.Amount(res.PaymentIntentId); got != 1658 {
				t.Fatalf("authorization changed to %d", got)
			}
		})
	}
}

func TestPrepareCheckout_SessionTokenFromContext(t *testing.T) {
	db := openTestDB(t)
	provider := payment.NewFakeProvider()
	cart := burgerCart(t, db)

	ctx := utils.SetSessionTokenInContext(ctxBg, "someone-else")
	if _, err := PrepareCheckout(ctx, db, provider, testLogger(), CheckoutInput{CartId: cart.ID}); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not found for a foreign session, got %v", err)
	}

	ctx = utils.SetSessionTokenInContext(ctxBg, guestToken)
	res, err := PrepareCheckout(ctx, db, provider, testLogger(), CheckoutInput{CartId: cart.ID})
	if err != nil {
		t.Fatalf("PrepareCheckout: %v", err)
	}
	if res.OrderId == 0 || res.AmountCents == 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}
