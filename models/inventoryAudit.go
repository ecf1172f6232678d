package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryAuditSession is open while CompletedAt is nil.
type InventoryAuditSession struct {
	ID          int                  `gorm:"primary_key" json:"id"`
	UserId      int                  `gorm:"not null;index" json:"user_id"`
	Note        string               `gorm:"type:text" json:"note"`
	StartedAt   time.Time            `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at"`
	Items       []InventoryAuditItem `gorm:"foreignKey:SessionId" json:"items,omitempty"`
}

func (s *InventoryAuditSession) IsCompleted() bool {
	return s.CompletedAt != nil
}

// InventoryAuditItem is one recount. Written once, never updated.
type InventoryAuditItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	SessionId       int             `gorm:"not null;index" json:"session_id"`
	InventoryItemId int             `gorm:"not null;index" json:"inventory_item_id"`
	InventoryItem   *InventoryItem  `gorm:"foreignKey:InventoryItemId" json:"inventory_item,omitempty"`
	PreviousQty     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"previous_qty"`
	NewQty          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"new_qty"`
	CountUnitCode   string          `gorm:"size:10" json:"count_unit_code"`
	ExpirationDate  *time.Time      `gorm:"type:date" json:"expiration_date"`
	Note            string          `gorm:"type:text" json:"note"`
	RecordedAt      time.Time       `gorm:"not null;index" json:"recorded_at"`
}
