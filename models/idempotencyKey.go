package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey records processed webhook deliveries.
// Unique constraint: (scope, handler_name, message_id). Scope is the payment provider.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	Scope       string            `gorm:"size:64;not null;uniqueIndex:uniq_idem,priority:1" json:"scope"`
	HandlerName string            `gorm:"size:100;not null;uniqueIndex:uniq_idem,priority:2" json:"handler_name"`
	MessageId   string            `gorm:"size:255;not null;uniqueIndex:uniq_idem,priority:3" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
