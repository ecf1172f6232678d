package models

import (
	"errors"
	"strings"
)

type MovementReason string

const (
	MovementReasonPurchase        MovementReason = "purchase"
	MovementReasonRecipe          MovementReason = "recipe"
	MovementReasonWaste           MovementReason = "waste"
	MovementReasonAdjust          MovementReason = "adjust"
	MovementReasonAuditAdjustment MovementReason = "audit_adjustment"
)

func (r MovementReason) IsValid() bool {
	switch r {
	case MovementReasonPurchase, MovementReasonRecipe, MovementReasonWaste, MovementReasonAdjust, MovementReasonAuditAdjustment:
		return true
	}
	return false
}

// reference types written on stock movements
const (
	ReferenceTypeAuditSession   = "inventory_audit_session"
	ReferenceTypeBaseUnitChange = "base_unit_change"
	ReferenceTypeOrder          = "order"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusCaptured PaymentStatus = "captured"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// payment statuses counted as revenue in food cost reporting
var RevenuePaymentStatuses = []string{"captured", "paid", "authorized", "completed"}

type Fulfillment string

const (
	FulfillmentPickup   Fulfillment = "pickup"
	FulfillmentDelivery Fulfillment = "delivery"
)

func ParseFulfillment(s string) (Fulfillment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pickup":
		return FulfillmentPickup, nil
	case "delivery":
		return FulfillmentDelivery, nil
	default:
		return "", errors.New("invalid fulfillment")
	}
}

// DepletionPolicy orders batches when stock is reduced.
type DepletionPolicy string

const (
	// most recently received first
	DepletionLIFO DepletionPolicy = "LIFO"
	// earliest expiration first, undated batches last
	DepletionFEFO DepletionPolicy = "FEFO"
)

func ParseDepletionPolicy(s string) DepletionPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(DepletionFEFO)) {
		return DepletionFEFO
	}
	return DepletionLIFO
}
