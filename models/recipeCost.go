package models

import (
	"errors"

	"github.com/mmdatafocus/pos_backend/money"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CostLine is one ingredient of a recipe costing.
type CostLine struct {
	IngredientName  string          `json:"ingredient"`
	InventoryItemId int             `json:"inventory_item_id"`
	Qty             decimal.Decimal `json:"qty"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Extended        decimal.Decimal `json:"extended"`
}

// latestUnitCost is the cost of the most recently received batch, zero when
// the item has never been received.
func latestUnitCost(tx *gorm.DB, itemId int) (decimal.Decimal, error) {
	var batch InventoryBatch
	err := tx.Where("inventory_item_id = ?", itemId).
		Order("received_at DESC, id DESC").
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return batch.UnitCost, nil
}

// CostOf prices a menu item's recipe at latest batch cost.
// A nil total means the menu item has no recipe.
func CostOf(tx *gorm.DB, menuItemId int) (*decimal.Decimal, []CostLine, error) {
	var recipe Recipe
	err := tx.Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Preload("Components.InventoryItem").
		Where("menu_item_id = ?", menuItemId).
		First(&recipe).Error
	if err != nil {
		if utils.NotFoundOr(err) == utils.ErrorRecordNotFound {
			return nil, []CostLine{}, nil
		}
		return nil, nil, err
	}

	total := decimal.Zero
	lines := make([]CostLine, 0, len(recipe.Components))
	for _, comp := range recipe.Components {
		unitCost, err := latestUnitCost(tx, comp.InventoryItemId)
		if err != nil {
			return nil, nil, err
		}
		extended := money.Round4(comp.Qty.Mul(unitCost))
		total = total.Add(extended)

		line := CostLine{
			InventoryItemId: comp.InventoryItemId,
			Qty:             comp.Qty,
			UnitCost:        unitCost,
			Extended:        extended,
		}
		if comp.InventoryItem != nil {
			line.IngredientName = comp.InventoryItem.Name
		}
		lines = append(lines, line)
	}
	total = money.Round2(total)
	return &total, lines, nil
}
