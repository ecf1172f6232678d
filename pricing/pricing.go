// Package pricing computes authoritative order totals. Everything here is pure.
package pricing

import (
	"fmt"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/money"
	"github.com/shopspring/decimal"
)

// LineItem is a cart line as captured at add time. UnitPrice already includes
// modifier deltas, so modifiers are not summed again here.
type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Qty       int
}

type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	Tip           decimal.Decimal `json:"tip"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// GrandTotalCents is the amount sent to the payment provider.
func (t Totals) GrandTotalCents() int64 {
	return money.ToMinorUnits(t.GrandTotal)
}

func Subtotal(items []LineItem) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for i, it := range items {
		if it.Qty < 0 {
			return decimal.Zero, apperr.NewValidation(fmt.Sprintf("items[%d].qty", i), "must be zero or greater")
		}
		if it.UnitPrice.IsNegative() {
			return decimal.Zero, apperr.NewValidation(fmt.Sprintf("items[%d].unit_price", i), "must be zero or greater")
		}
		subtotal = subtotal.Add(money.MulQty(it.UnitPrice, it.Qty))
	}
	return money.Round2(subtotal), nil
}

// ComputeTotals prices a cart snapshot. A grand total below zero is rejected.
func ComputeTotals(items []LineItem, tipCents int64, taxRate decimal.Decimal, deliveryFeeCents, discountCents int64) (Totals, error) {
	if tipCents < 0 {
		return Totals{}, apperr.NewValidation("tip_cents", "must be zero or greater")
	}
	if deliveryFeeCents < 0 {
		return Totals{}, apperr.NewValidation("delivery_fee_cents", "must be zero or greater")
	}
	if discountCents < 0 {
		return Totals{}, apperr.NewValidation("discount_cents", "must be zero or greater")
	}
	if taxRate.IsNegative() {
		return Totals{}, apperr.NewValidation("tax_rate", "must be zero or greater")
	}
	subtotal, err := Subtotal(items)
	if err != nil {
		return Totals{}, err
	}

	t := Totals{
		Subtotal:      subtotal,
		TaxTotal:      money.Round2(subtotal.Mul(taxRate)),
		DeliveryFee:   money.FromMinorUnits(deliveryFeeCents),
		DiscountTotal: money.FromMinorUnits(discountCents),
		Tip:           money.FromMinorUnits(tipCents),
	}
	if err := t.regrand(); err != nil {
		return Totals{}, err
	}
	return t, nil
}

func (t *Totals) regrand() error {
	grand := money.Round2(t.Subtotal.Add(t.TaxTotal).Add(t.DeliveryFee).Add(t.Tip).Sub(t.DiscountTotal))
	if grand.IsNegative() {
		return apperr.NewValidation("grand_total", "must not be negative (discount exceeds order value)")
	}
	t.GrandTotal = grand
	return nil
}

// OrderStatus mirrors the stored order status values.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// RetotalForTipChange swaps the tip and recomputes the grand total, holding the
// other components fixed. Only pending orders can be retotaled.
func RetotalForTipChange(current Totals, status OrderStatus, newTipCents int64) (Totals, error) {
	if status != OrderStatusPending {
		return Totals{}, &apperr.InvalidStateError{Entity: "order", State: string(status), Op: "change tip on"}
	}
	if newTipCents < 0 {
		return Totals{}, apperr.NewValidation("tip_cents", "must be zero or greater")
	}
	next := current
	next.Tip = money.FromMinorUnits(newTipCents)
	if err := next.regrand(); err != nil {
		return Totals{}, err
	}
	return next, nil
}

// IdempotencyKeyForOrder is the key used when creating the order's payment
// authorization, so retried checkouts reuse the same upstream object.
func IdempotencyKeyForOrder(orderId int) string {
	return fmt.Sprintf("order-%d-v1", orderId)
}
