package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/money"
	"github.com/mmdatafocus/pos_backend/unitconv"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type ReceiveInventoryInput struct {
	InventoryItemId int    `json:"inventory_item_id" validate:"required,gt=0"`
	Qty             string `json:"qty" validate:"required"`
	// blank means the item's base unit
	UnitCode string `json:"unit"`
	// cost per UnitCode; stored per base unit
	UnitCost       string     `json:"unit_cost"`
	ExpirationDate *time.Time `json:"expiration_date"`
	SupplierName   string     `json:"supplier"`
	ReceivedAt     time.Time  `json:"received_at"`
}

// ReceiveInventory books a delivery in any convertible unit as a new batch.
func ReceiveInventory(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input ReceiveInventoryInput) (batch *models.InventoryBatch, err error) {
	ctx, span := startSpan(ctx, "workflow.ReceiveInventory", attribute.Int("inventory_item_id", input.InventoryItemId))
	defer func() { endSpan(span, err) }()

	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	qty, err := money.Parse("qty", input.Qty)
	if err != nil {
		return nil, err
	}
	unitCost := decimal.Zero
	if input.UnitCost != "" {
		if unitCost, err = money.ParseNonNegative("unit_cost", input.UnitCost); err != nil {
			return nil, err
		}
	}

	release, err := utils.ObtainLock(ctx, "inventory:item", input.InventoryItemId, "InventoryWorkflow.go", "ReceiveInventory")
	if err != nil {
		return nil, err
	}
	defer release()

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := models.LockInventoryItem(tx, input.InventoryItemId)
		if err != nil {
			return err
		}
		unitCode := models.NormalizeUnitCode(input.UnitCode)
		if unitCode == "" {
			unitCode = item.BaseUnit.Code
		}
		graph, err := models.LoadConversionGraph(ctx, tx)
		if err != nil {
			return err
		}
		factor, err := graph.ResolveFactor(unitCode, item.BaseUnit.Code)
		if err != nil {
			if apperr.IsConversion(err) {
				config.LogWarn(logger, "InventoryWorkflow.go", "ReceiveInventory", "missing unit conversion", unitCode, err)
			}
			return err
		}
		baseQty := qty.Mul(factor).Round(unitconv.QuantityPlaces)
		baseCost := unitCost
		if !factor.IsZero() {
			baseCost = unitCost.DivRound(factor, money.UnitCostPlaces)
		}

		supplier, err := models.EnsureSupplier(tx, input.SupplierName)
		if err != nil {
			return err
		}
		batch, err = models.ReceiveBatch(tx, item, models.ReceiveBatchInput{
			Qty:            baseQty,
			UnitCost:       baseCost,
			ExpirationDate: input.ExpirationDate,
			SupplierId:     &supplier.ID,
			ReceivedAt:     input.ReceivedAt,
		})
		if err != nil {
			config.LogError(logger, "InventoryWorkflow.go", "ReceiveInventory", "ReceiveBatch", input, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

type WasteInput struct {
	InventoryItemId int    `json:"inventory_item_id" validate:"required,gt=0"`
	Qty             string `json:"qty" validate:"required"`
	UnitCode        string `json:"unit"`
}

// RecordWaste removes spoiled stock. A shortfall rejects the whole amount.
func RecordWaste(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input WasteInput) (err error) {
	ctx, span := startSpan(ctx, "workflow.RecordWaste", attribute.Int("inventory_item_id", input.InventoryItemId))
	defer func() { endSpan(span, err) }()

	if err := utils.ValidateStruct(&input); err != nil {
		return err
	}
	qty, err := money.Parse("qty", input.Qty)
	if err != nil {
		return err
	}
	release, err := utils.ObtainLock(ctx, "inventory:item", input.InventoryItemId, "InventoryWorkflow.go", "RecordWaste")
	if err != nil {
		return err
	}
	defer release()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := models.LockInventoryItem(tx, input.InventoryItemId)
		if err != nil {
			return err
		}
		graph, err := models.LoadConversionGraph(ctx, tx)
		if err != nil {
			return err
		}
		baseQty, err := models.ConvertToBaseQty(graph, qty, input.UnitCode, item.BaseUnit.Code)
		if err != nil {
			return err
		}
		if err := models.DepleteForReason(tx, item, baseQty, models.MovementReasonWaste, "", nil); err != nil {
			config.LogError(logger, "InventoryWorkflow.go", "RecordWaste", "DepleteForReason", input, err)
			return err
		}
		return nil
	})
}

// ChangeItemBaseUnit switches an item to another convertible unit.
func ChangeItemBaseUnit(ctx context.Context, db *gorm.DB, logger *logrus.Logger, itemId int, unitCode string) (item *models.InventoryItem, err error) {
	ctx, span := startSpan(ctx, "workflow.ChangeItemBaseUnit", attribute.Int("inventory_item_id", itemId))
	defer func() { endSpan(span, err) }()

	release, err := utils.ObtainLock(ctx, "inventory:item", itemId, "InventoryWorkflow.go", "ChangeItemBaseUnit")
	if err != nil {
		return nil, err
	}
	defer release()

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		graph, err := models.LoadConversionGraph(ctx, tx)
		if err != nil {
			return err
		}
		item, err = models.ChangeBaseUnit(ctx, tx, graph, itemId, unitCode)
		if err != nil {
			config.LogError(logger, "InventoryWorkflow.go", "ChangeItemBaseUnit", "ChangeBaseUnit", unitCode, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

type InventoryOverview struct {
	Items  []models.InventorySnapshot `json:"items"`
	Alerts models.InventoryAlerts     `json:"alerts"`
}

func GetInventoryOverview(ctx context.Context, db *gorm.DB) (*InventoryOverview, error) {
	snaps, err := models.ListInventorySnapshots(db.WithContext(ctx), time.Now().UTC(), config.LoadSettings().ExpirationAlertDays)
	if err != nil {
		return nil, err
	}
	return &InventoryOverview{Items: snaps, Alerts: models.BuildInventoryAlerts(snaps)}, nil
}
