package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Unit{}, &UnitConversion{},
		&Supplier{},
		&InventoryItem{}, &InventoryBatch{}, &StockMovement{},
		&InventoryAuditSession{}, &InventoryAuditItem{},
		&MenuItem{}, &ModifierOption{}, &Recipe{}, &RecipeComponent{},
		&Cart{}, &CartItem{}, &CartItemModifier{},
		&Order{}, &OrderItem{}, &OrderItemModifier{},
		&Payment{},
		&IdempotencyKey{}, &OutboxEvent{},
	)
}
