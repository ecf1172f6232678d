package models

import (
	"time"

	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Payment tracks one provider authorization for an order.
// Unique constraint: (provider, reference).
type Payment struct {
	ID          int             `gorm:"primary_key" json:"id"`
	OrderId     int             `gorm:"not null;index" json:"order_id"`
	Provider    string          `gorm:"size:30;not null;uniqueIndex:uniq_payment_ref,priority:1" json:"provider"`
	Reference   string          `gorm:"size:255;not null;uniqueIndex:uniq_payment_ref,priority:2" json:"reference"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null" json:"currency"`
	Status      PaymentStatus   `gorm:"size:20;not null;index" json:"status"`
	RawResponse string          `gorm:"type:text" json:"raw_response"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LockPaymentByReference returns the payment for (provider, reference) with a
// row lock (may return ErrorRecordNotFound).
func LockPaymentByReference(tx *gorm.DB, provider, reference string) (*Payment, error) {
	var p Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND reference = ?", provider, reference).
		First(&p).Error
	if err != nil {
		return nil, utils.NotFoundOr(err)
	}
	return &p, nil
}

// FindOrderPayment is the payment the order's checkout created
// (may return ErrorRecordNotFound).
func FindOrderPayment(tx *gorm.DB, orderId int, provider, reference string) (*Payment, error) {
	var p Payment
	err := tx.Where("order_id = ? AND provider = ? AND reference = ?", orderId, provider, reference).First(&p).Error
	if err != nil {
		return nil, utils.NotFoundOr(err)
	}
	return &p, nil
}
