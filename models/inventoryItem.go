package models

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/unitconv"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryAlertDisplay caps each alert list.
const InventoryAlertDisplay = 5

type InventoryItem struct {
	ID         int              `gorm:"primary_key" json:"id"`
	Name       string           `gorm:"size:120;not null;uniqueIndex" json:"name"`
	Sku        *string          `gorm:"size:64;uniqueIndex" json:"sku"`
	BaseUnitId int              `gorm:"not null;index" json:"base_unit_id"`
	BaseUnit   Unit             `gorm:"foreignKey:BaseUnitId" json:"base_unit"`
	ParLevel   decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"par_level"`
	IsActive   *bool            `gorm:"not null;default:true" json:"is_active"`
	Batches    []InventoryBatch `gorm:"foreignKey:InventoryItemId;constraint:OnDelete:CASCADE" json:"batches,omitempty"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryBatch quantities and costs are in the item's base unit.
// A batch depleted to zero is kept as a cost reference.
type InventoryBatch struct {
	ID              int             `gorm:"primary_key" json:"id"`
	InventoryItemId int             `gorm:"not null;index:idx_batch_item_received,priority:1" json:"inventory_item_id"`
	SupplierId      *int            `gorm:"index" json:"supplier_id"`
	Supplier        *Supplier       `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_cost"`
	ExpirationDate  *time.Time      `gorm:"type:date" json:"expiration_date"`
	ReceivedAt      time.Time       `gorm:"not null;index:idx_batch_item_received,priority:2" json:"received_at"`
}

type NewInventoryItem struct {
	Name         string          `json:"name" validate:"required,max=120"`
	Sku          string          `json:"sku" validate:"max=64"`
	BaseUnitCode string          `json:"base_unit" validate:"required"`
	ParLevel     decimal.Decimal `json:"par_level"`
}

func CreateInventoryItem(tx *gorm.DB, input *NewInventoryItem) (*InventoryItem, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Sku = strings.TrimSpace(input.Sku)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.ParLevel.IsNegative() {
		return nil, apperr.NewValidation("par_level", "must be zero or greater")
	}
	unit, err := GetUnitByCode(tx, input.BaseUnitCode)
	if err != nil {
		return nil, err
	}

	item := InventoryItem{
		Name:       input.Name,
		BaseUnitId: unit.ID,
		ParLevel:   input.ParLevel.Round(4),
		IsActive:   utils.NewTrue(),
	}
	if input.Sku != "" {
		sku := input.Sku
		item.Sku = &sku
	}
	if err := tx.Omit(clause.Associations).Create(&item).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, apperr.NewValidation("name", "inventory item %q or its sku already exists", input.Name)
		}
		return nil, err
	}
	item.BaseUnit = *unit
	return &item, nil
}

func GetInventoryItem(tx *gorm.DB, id int) (*InventoryItem, error) {
	return utils.FetchModel[InventoryItem](tx, id, "BaseUnit")
}

// ChangeBaseUnit moves an item to a new base unit, rescaling every batch and
// the par level. The net quantity change is journaled so batch totals keep
// matching the movement history.
func ChangeBaseUnit(ctx context.Context, tx *gorm.DB, graph *unitconv.Graph, itemId int, unitCode string) (*InventoryItem, error) {
	tx = tx.WithContext(ctx)
	item, err := LockInventoryItem(tx, itemId)
	if err != nil {
		return nil, err
	}
	newUnit, err := GetUnitByCode(tx, unitCode)
	if err != nil {
		return nil, err
	}
	if newUnit.ID == item.BaseUnitId {
		return item, nil
	}
	factor, err := graph.ResolveFactor(item.BaseUnit.Code, newUnit.Code)
	if err != nil {
		return nil, err
	}

	batches, err := loadBatches(tx, item.ID)
	if err != nil {
		return nil, err
	}
	before, after := decimal.Zero, decimal.Zero
	for _, b := range batches {
		qty := b.Qty.Mul(factor).Round(unitconv.QuantityPlaces)
		cost := b.UnitCost.DivRound(factor, 4)
		before = before.Add(b.Qty)
		after = after.Add(qty)
		if err := tx.Model(&InventoryBatch{}).Where("id = ?", b.ID).
			Updates(map[string]interface{}{"qty": qty, "unit_cost": cost}).Error; err != nil {
			return nil, err
		}
	}
	par := item.ParLevel.Mul(factor).Round(unitconv.QuantityPlaces)
	if err := tx.Model(&InventoryItem{}).Where("id = ?", item.ID).
		Updates(map[string]interface{}{"base_unit_id": newUnit.ID, "par_level": par}).Error; err != nil {
		return nil, err
	}
	if delta := after.Sub(before); !delta.IsZero() {
		if _, err := recordMovement(tx, item.ID, delta, MovementReasonAdjust, ReferenceTypeBaseUnitChange, &newUnit.ID); err != nil {
			return nil, err
		}
	}

	item.BaseUnitId = newUnit.ID
	item.BaseUnit = *newUnit
	item.ParLevel = par
	return item, nil
}

type SupplierInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type InventorySnapshot struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Sku            *string         `json:"sku"`
	BaseUnit       string          `json:"base_unit"`
	ParLevel       decimal.Decimal `json:"par_level"`
	Quantity       decimal.Decimal `json:"quantity"`
	LowStock       bool            `json:"low_stock"`
	ExpiringSoon   bool            `json:"expiring_soon"`
	ExpirationDate *time.Time      `json:"expiration_date"`
	// days until ExpirationDate, never below zero
	DaysToExpiration int           `json:"days_to_expiration"`
	Supplier         *SupplierInfo `json:"supplier"`
	DateAdded        *time.Time    `json:"date_added"`
	IsActive         bool          `json:"is_active"`
	BatchCount       int           `json:"batch_count"`
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildInventorySnapshot summarises item. Batches (with Supplier) must be loaded.
func BuildInventorySnapshot(item *InventoryItem, today time.Time, alertDays int) InventorySnapshot {
	s := InventorySnapshot{
		ID:         item.ID,
		Name:       item.Name,
		Sku:        item.Sku,
		BaseUnit:   item.BaseUnit.Code,
		ParLevel:   item.ParLevel,
		Quantity:   decimal.Zero,
		IsActive:   item.IsActive == nil || *item.IsActive,
		BatchCount: len(item.Batches),
	}
	var latest *InventoryBatch
	for i := range item.Batches {
		b := &item.Batches[i]
		s.Quantity = s.Quantity.Add(b.Qty)
		if b.ExpirationDate != nil && (s.ExpirationDate == nil || b.ExpirationDate.Before(*s.ExpirationDate)) {
			exp := *b.ExpirationDate
			s.ExpirationDate = &exp
		}
		if s.DateAdded == nil || b.ReceivedAt.Before(*s.DateAdded) {
			received := b.ReceivedAt
			s.DateAdded = &received
		}
		if b.Supplier != nil && (latest == nil || b.ReceivedAt.After(latest.ReceivedAt)) {
			latest = b
		}
	}
	s.LowStock = item.ParLevel.IsPositive() && s.Quantity.LessThanOrEqual(item.ParLevel)
	if s.ExpirationDate != nil {
		days := int(dateOnly(*s.ExpirationDate).Sub(dateOnly(today)).Hours() / 24)
		s.ExpiringSoon = days >= 0 && days <= alertDays
		s.DaysToExpiration = max(days, 0)
	}
	if latest != nil {
		s.Supplier = &SupplierInfo{ID: latest.Supplier.ID, Name: latest.Supplier.Name, Phone: latest.Supplier.Phone, Email: latest.Supplier.Email}
	}
	return s
}

func ListInventorySnapshots(tx *gorm.DB, today time.Time, alertDays int) ([]InventorySnapshot, error) {
	var items []InventoryItem
	if err := tx.Preload("BaseUnit").Preload("Batches.Supplier").Order("name").Find(&items).Error; err != nil {
		return nil, err
	}
	out := make([]InventorySnapshot, 0, len(items))
	for i := range items {
		out = append(out, BuildInventorySnapshot(&items[i], today, alertDays))
	}
	return out, nil
}

type InventoryAlerts struct {
	LowStock []InventorySnapshot `json:"low_stock"`
	Expiring []InventorySnapshot `json:"expiring"`
}

// BuildInventoryAlerts picks the first few low-stock and expiring items,
// expiring ones soonest first.
func BuildInventoryAlerts(snapshots []InventorySnapshot) InventoryAlerts {
	alerts := InventoryAlerts{LowStock: []InventorySnapshot{}, Expiring: []InventorySnapshot{}}
	var expiring []InventorySnapshot
	for _, s := range snapshots {
		if s.LowStock && len(alerts.LowStock) < InventoryAlertDisplay {
			alerts.LowStock = append(alerts.LowStock, s)
		}
		if s.ExpiringSoon {
			expiring = append(expiring, s)
		}
	}
	sort.SliceStable(expiring, func(i, j int) bool {
		return expiring[i].DaysToExpiration < expiring[j].DaysToExpiration
	})
	if len(expiring) > InventoryAlertDisplay {
		expiring = expiring[:InventoryAlertDisplay]
	}
	alerts.Expiring = append(alerts.Expiring, expiring...)
	return alerts
}
