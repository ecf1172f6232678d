package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/unitconv"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockMovement is the append-only journal of every batch quantity change.
type StockMovement struct {
	ID              string          `gorm:"size:36;primary_key" json:"id"` // uuid
	InventoryItemId int             `gorm:"not null;index:idx_move_item_date,priority:1" json:"inventory_item_id"`
	QtyChange       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_change"`
	Reason          MovementReason  `gorm:"size:30;not null;index" json:"reason"`
	ReferenceType   string          `gorm:"size:40" json:"reference_type"`
	ReferenceId     *int            `gorm:"index" json:"reference_id"`
	CorrelationId   string          `gorm:"size:64;index" json:"correlation_id"`
	OccurredAt      time.Time       `gorm:"not null;index:idx_move_item_date,priority:2" json:"occurred_at"`
}

// LockInventoryItem loads the item with its base unit and holds a row lock
// for the rest of the transaction. Every quantity change goes through here.
func LockInventoryItem(tx *gorm.DB, id int) (*InventoryItem, error) {
	var item InventoryItem
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, id).Error; err != nil {
		return nil, utils.NotFoundOr(err)
	}
	if err := tx.First(&item.BaseUnit, item.BaseUnitId).Error; err != nil {
		return nil, utils.NotFoundOr(err)
	}
	return &item, nil
}

func loadBatches(tx *gorm.DB, itemId int) ([]InventoryBatch, error) {
	var batches []InventoryBatch
	err := tx.Where("inventory_item_id = ?", itemId).Order("received_at, id").Find(&batches).Error
	return batches, err
}

func sumBatches(batches []InventoryBatch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.Qty)
	}
	return total
}

// CurrentQuantity is the sum of all batch quantities, in the base unit.
func CurrentQuantity(tx *gorm.DB, itemId int) (decimal.Decimal, error) {
	batches, err := loadBatches(tx, itemId)
	if err != nil {
		return decimal.Zero, err
	}
	return sumBatches(batches), nil
}

// MovementTotal sums the journal for an item.
func MovementTotal(tx *gorm.DB, itemId int) (decimal.Decimal, error) {
	var moves []StockMovement
	if err := tx.Select("qty_change").Where("inventory_item_id = ?", itemId).Find(&moves).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, m := range moves {
		total = total.Add(m.QtyChange)
	}
	return total, nil
}

func recordMovement(tx *gorm.DB, itemId int, delta decimal.Decimal, reason MovementReason, refType string, refId *int) (*StockMovement, error) {
	m := StockMovement{
		ID:              uuid.NewString(),
		InventoryItemId: itemId,
		QtyChange:       delta,
		Reason:          reason,
		ReferenceType:   refType,
		ReferenceId:     refId,
		OccurredAt:      time.Now().UTC(),
	}
	if ctx := tx.Statement.Context; ctx != nil {
		if id, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			m.CorrelationId = id
		}
	}
	if err := tx.Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

type ReceiveBatchInput struct {
	Qty            decimal.Decimal
	UnitCost       decimal.Decimal
	ExpirationDate *time.Time
	SupplierId     *int
	// zero means now
	ReceivedAt    time.Time
	ReferenceType string
	ReferenceId   *int
}

// ReceiveBatch adds a purchased batch (quantity already in the base unit) and
// journals it as a purchase. Existing batches are untouched.
func ReceiveBatch(tx *gorm.DB, item *InventoryItem, input ReceiveBatchInput) (*InventoryBatch, error) {
	if !input.Qty.IsPositive() {
		return nil, apperr.NewValidation("qty", "must be greater than zero")
	}
	if input.UnitCost.IsNegative() {
		return nil, apperr.NewValidation("unit_cost", "must be zero or greater")
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	batch := InventoryBatch{
		InventoryItemId: item.ID,
		SupplierId:      input.SupplierId,
		Qty:             input.Qty.Round(unitconv.QuantityPlaces),
		UnitCost:        input.UnitCost.Round(4),
		ExpirationDate:  input.ExpirationDate,
		ReceivedAt:      receivedAt,
	}
	if err := tx.Omit(clause.Associations).Create(&batch).Error; err != nil {
		return nil, err
	}
	if _, err := recordMovement(tx, item.ID, batch.Qty, MovementReasonPurchase, input.ReferenceType, input.ReferenceId); err != nil {
		return nil, err
	}
	return &batch, nil
}

// CurrentDepletionPolicy reads INVENTORY_DEPLETION_POLICY.
func CurrentDepletionPolicy() DepletionPolicy {
	return ParseDepletionPolicy(config.LoadSettings().DepletionPolicy)
}

// orderForDepletion sorts batches in the order they should be drawn down.
func orderForDepletion(batches []InventoryBatch, policy DepletionPolicy) {
	switch policy {
	case DepletionFEFO:
		sort.SliceStable(batches, func(i, j int) bool {
			a, b := batches[i].ExpirationDate, batches[j].ExpirationDate
			switch {
			case a != nil && b != nil && !a.Equal(*b):
				return a.Before(*b)
			case a != nil && b == nil:
				return true
			case a == nil && b != nil:
				return false
			}
			if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
				return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
			}
			return batches[i].ID < batches[j].ID
		})
	default:
		sort.SliceStable(batches, func(i, j int) bool {
			if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
				return batches[i].ReceivedAt.After(batches[j].ReceivedAt)
			}
			return batches[i].ID > batches[j].ID
		})
	}
}

// deplete removes qty from batches in policy order. Nothing is written unless
// the batches cover the whole amount.
func deplete(tx *gorm.DB, item *InventoryItem, batches []InventoryBatch, qty decimal.Decimal, policy DepletionPolicy) error {
	available := sumBatches(batches)
	if available.LessThan(qty) {
		return &apperr.InsufficientInventoryError{ItemId: item.ID, Requested: qty.String(), Available: available.String()}
	}

	orderForDepletion(batches, policy)
	type take struct {
		id  int
		qty decimal.Decimal
	}
	var plan []take
	remaining := qty
	for _, b := range batches {
		if !remaining.IsPositive() {
			break
		}
		if !b.Qty.IsPositive() {
			continue
		}
		taken := decimal.Min(b.Qty, remaining)
		plan = append(plan, take{id: b.ID, qty: b.Qty.Sub(taken).Round(unitconv.QuantityPlaces)})
		remaining = remaining.Sub(taken)
	}
	for _, p := range plan {
		if err := tx.Model(&InventoryBatch{}).Where("id = ?", p.id).Update("qty", p.qty).Error; err != nil {
			return err
		}
	}
	return nil
}

// SetAbsoluteQuantity moves the item's on-hand quantity to target (base unit)
// and journals the difference as an audit adjustment. It returns the new
// quantity. A shortfall rejects the whole change.
func SetAbsoluteQuantity(tx *gorm.DB, item *InventoryItem, target decimal.Decimal, expirationDate *time.Time, sessionId *int) (decimal.Decimal, error) {
	return SetAbsoluteQuantityWithPolicy(tx, item, target, expirationDate, sessionId, CurrentDepletionPolicy())
}

func SetAbsoluteQuantityWithPolicy(tx *gorm.DB, item *InventoryItem, target decimal.Decimal, expirationDate *time.Time, sessionId *int, policy DepletionPolicy) (decimal.Decimal, error) {
	if target.IsNegative() {
		return decimal.Zero, apperr.NewValidation("new_qty", "must be zero or greater")
	}
	target = target.Round(unitconv.QuantityPlaces)

	batches, err := loadBatches(tx, item.ID)
	if err != nil {
		return decimal.Zero, err
	}
	current := sumBatches(batches)
	delta := target.Sub(current)
	if delta.IsZero() {
		return current, nil
	}

	if delta.IsPositive() {
		// found stock carries no cost basis
		batch := InventoryBatch{
			InventoryItemId: item.ID,
			Qty:             delta,
			UnitCost:        decimal.Zero,
			ExpirationDate:  expirationDate,
			ReceivedAt:      time.Now().UTC(),
		}
		if err := tx.Omit(clause.Associations).Create(&batch).Error; err != nil {
			return decimal.Zero, err
		}
	} else if err := deplete(tx, item, batches, delta.Neg(), policy); err != nil {
		return decimal.Zero, err
	}

	var refType string
	if sessionId != nil {
		refType = ReferenceTypeAuditSession
	}
	if _, err := recordMovement(tx, item.ID, delta, MovementReasonAuditAdjustment, refType, sessionId); err != nil {
		return decimal.Zero, err
	}
	return target, nil
}

// DepleteForReason consumes qty (base unit) for waste or recipe usage with
// the same all-or-nothing rule as audits.
func DepleteForReason(tx *gorm.DB, item *InventoryItem, qty decimal.Decimal, reason MovementReason, refType string, refId *int) error {
	if reason != MovementReasonWaste && reason != MovementReasonRecipe && reason != MovementReasonAdjust {
		return apperr.NewValidation("reason", "%q cannot consume stock", reason)
	}
	qty = qty.Round(unitconv.QuantityPlaces)
	if !qty.IsPositive() {
		return apperr.NewValidation("qty", "must be greater than zero")
	}
	batches, err := loadBatches(tx, item.ID)
	if err != nil {
		return err
	}
	if err := deplete(tx, item, batches, qty, CurrentDepletionPolicy()); err != nil {
		return err
	}
	_, err = recordMovement(tx, item.ID, qty.Neg(), reason, refType, refId)
	return err
}

// LedgerDrift is an item whose batch total disagrees with its journal.
type LedgerDrift struct {
	InventoryItemId int             `json:"inventory_item_id"`
	Name            string          `json:"name"`
	BatchTotal      decimal.Decimal `json:"batch_total"`
	MovementTotal   decimal.Decimal `json:"movement_total"`
}

// FindLedgerDrift compares batch totals with journal totals for every item.
func FindLedgerDrift(tx *gorm.DB) ([]LedgerDrift, error) {
	var items []InventoryItem
	if err := tx.Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	var out []LedgerDrift
	for _, item := range items {
		onHand, err := CurrentQuantity(tx, item.ID)
		if err != nil {
			return nil, err
		}
		journaled, err := MovementTotal(tx, item.ID)
		if err != nil {
			return nil, err
		}
		if !onHand.Equal(journaled) {
			out = append(out, LedgerDrift{InventoryItemId: item.ID, Name: item.Name, BatchTotal: onHand, MovementTotal: journaled})
		}
	}
	return out, nil
}
