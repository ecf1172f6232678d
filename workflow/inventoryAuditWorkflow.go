package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/money"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const auditSessionListLimit = 25

func OpenAuditSession(ctx context.Context, db *gorm.DB, userId int, note string) (*models.InventoryAuditSession, error) {
	if userId <= 0 {
		userId, _ = utils.GetUserIdFromContext(ctx)
	}
	if userId <= 0 {
		return nil, apperr.NewValidation("user_id", "is required")
	}
	note, err := utils.NormalizeNote(note, config.LoadSettings().NoteMaxLen)
	if err != nil {
		return nil, err
	}
	session := models.InventoryAuditSession{UserId: userId, Note: note, StartedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Omit("Items").Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

type RecordCountInput struct {
	InventoryItemId int `json:"inventory_item_id" validate:"required,gt=0"`
	// counted quantity in UnitCode, e.g. "2.5"
	NewQty string `json:"new_qty" validate:"required"`
	// blank means the item's base unit
	UnitCode       string     `json:"unit"`
	ExpirationDate *time.Time `json:"expiration_date"`
	Note           string     `json:"note"`
}

// RecordCount records one recount inside an open session: the counted quantity
// is converted to the item's base unit, the ledger is moved to it, and the
// before/after pair is kept as an audit item. All of it commits or none does.
func RecordCount(ctx context.Context, db *gorm.DB, logger *logrus.Logger, sessionId int, input RecordCountInput) (record *models.InventoryAuditItem, err error) {
	ctx, span := startSpan(ctx, "workflow.RecordCount",
		attribute.Int("session_id", sessionId),
		attribute.Int("inventory_item_id", input.InventoryItemId))
	defer func() { endSpan(span, err) }()

	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	counted, err := money.ParseNonNegative("new_qty", input.NewQty)
	if err != nil {
		return nil, err
	}
	settings := config.LoadSettings()
	note, err := utils.NormalizeNote(input.Note, settings.NoteMaxLen)
	if err != nil {
		return nil, err
	}

	release, err := utils.ObtainLock(ctx, "inventory:item", input.InventoryItemId, "InventoryAuditWorkflow.go", "RecordCount")
	if err != nil {
		return nil, err
	}
	defer release()

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := utils.FetchModelForUpdate[models.InventoryAuditSession](tx, sessionId)
		if err != nil {
			return err
		}
		if session.IsCompleted() {
			return &apperr.InvalidStateError{Entity: "audit session", State: "completed", Op: "record a count in"}
		}
		item, err := models.LockInventoryItem(tx, input.InventoryItemId)
		if err != nil {
			return err
		}
		graph, err := models.LoadConversionGraph(ctx, tx)
		if err != nil {
			return err
		}
		unitCode := models.NormalizeUnitCode(input.UnitCode)
		if unitCode == "" {
			unitCode = item.BaseUnit.Code
		}
		target, err := models.ConvertToBaseQty(graph, counted, unitCode, item.BaseUnit.Code)
		if err != nil {
			if apperr.IsConversion(err) {
				config.LogWarn(logger, "InventoryAuditWorkflow.go", "RecordCount", "missing unit conversion", map[string]interface{}{
					"from": unitCode, "to": item.BaseUnit.Code, "inventory_item_id": item.ID,
				}, err)
			}
			return err
		}

		previous, err := models.CurrentQuantity(tx, item.ID)
		if err != nil {
			return err
		}
		actual, err := models.SetAbsoluteQuantity(tx, item, target, input.ExpirationDate, &session.ID)
		if err != nil {
			config.LogError(logger, "InventoryAuditWorkflow.go", "RecordCount", "SetAbsoluteQuantity", item.ID, err)
			return err
		}

		record = &models.InventoryAuditItem{
			SessionId:       session.ID,
			InventoryItemId: item.ID,
			PreviousQty:     previous,
			NewQty:          actual,
			CountUnitCode:   unitCode,
			ExpirationDate:  input.ExpirationDate,
			Note:            note,
			RecordedAt:      time.Now().UTC(),
		}
		if err := tx.Omit("InventoryItem").Create(record).Error; err != nil {
			return err
		}
		if !actual.Equal(previous) {
			if _, err := models.EnqueueOutboxEvent(tx, models.EventInventoryAdjusted, models.ReferenceTypeAuditSession, session.ID, map[string]interface{}{
				"inventory_item_id": item.ID,
				"previous_qty":      previous,
				"new_qty":           actual,
				"base_unit":         item.BaseUnit.Code,
			}); err != nil {
				return err
			}
		}
		record.InventoryItem = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CompleteAuditSession closes the session. Completing twice keeps the first
// completion time.
func CompleteAuditSession(ctx context.Context, db *gorm.DB, sessionId int) (*models.InventoryAuditSession, error) {
	var session *models.InventoryAuditSession
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = utils.FetchModelForUpdate[models.InventoryAuditSession](tx, sessionId)
		if err != nil {
			return err
		}
		if session.IsCompleted() {
			return nil
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.InventoryAuditSession{}).Where("id = ?", session.ID).Update("completed_at", now).Error; err != nil {
			return err
		}
		session.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func UpdateAuditSessionNote(ctx context.Context, db *gorm.DB, sessionId int, note string) (*models.InventoryAuditSession, error) {
	note, err := utils.NormalizeNote(note, config.LoadSettings().NoteMaxLen)
	if err != nil {
		return nil, err
	}
	var session *models.InventoryAuditSession
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = utils.FetchModelForUpdate[models.InventoryAuditSession](tx, sessionId)
		if err != nil {
			return err
		}
		if session.IsCompleted() {
			return &apperr.InvalidStateError{Entity: "audit session", State: "completed", Op: "edit"}
		}
		session.Note = note
		return tx.Model(&models.InventoryAuditSession{}).Where("id = ?", session.ID).Update("note", note).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetAuditSession loads a session with its items, newest first.
func GetAuditSession(ctx context.Context, db *gorm.DB, sessionId int) (*models.InventoryAuditSession, error) {
	var session models.InventoryAuditSession
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("recorded_at DESC, id DESC")
		}).
		Preload("Items.InventoryItem").
		First(&session, sessionId).Error
	if err != nil {
		return nil, utils.NotFoundOr(err)
	}
	return &session, nil
}

func ListAuditSessions(ctx context.Context, db *gorm.DB) ([]models.InventoryAuditSession, error) {
	var sessions []models.InventoryAuditSession
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("recorded_at DESC, id DESC")
		}).
		Order("started_at DESC, id DESC").
		Limit(auditSessionListLimit).
		Find(&sessions).Error
	return sessions, err
}

// AuditVariance sums the signed quantity change recorded by a session per item.
func AuditVariance(session *models.InventoryAuditSession) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for _, it := range session.Items {
		out[it.InventoryItemId] = out[it.InventoryItemId].Add(it.NewQty.Sub(it.PreviousQty))
	}
	return out
}
