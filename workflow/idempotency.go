package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BeginIdempotency claims (scope, handler, message) as STARTED inside the
// caller's transaction. If SUCCEEDED exists, returns (true, nil) meaning "skip
// safely". A concurrent claim that loses the unique index race comes back as
// *apperr.ConflictError.
//
// The claim commits together with the handler's work, so a committed STARTED
// or FAILED row only marks an earlier attempt and is taken over. The existing
// row is read first so a duplicate insert never aborts the caller's
// transaction on Postgres.
func BeginIdempotency(tx *gorm.DB, scope, handlerName, messageId string) (skip bool, err error) {
	var existing models.IdempotencyKey
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope = ? AND handler_name = ? AND message_id = ?", scope, handlerName, messageId).
		First(&existing).Error
	if err == nil {
		if existing.Status == models.IdempotencyStatusSucceeded {
			return true, nil
		}
		return false, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	key := models.IdempotencyKey{
		Scope:       scope,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return false, &apperr.ConflictError{Key: fmt.Sprintf("%s/%s/%s", scope, handlerName, messageId)}
		}
		return false, err
	}
	return false, nil
}

func MarkIdempotencySucceeded(tx *gorm.DB, scope, handlerName, messageId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("scope = ? AND handler_name = ? AND message_id = ?", scope, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

// MarkIdempotencyFailed runs outside the failed transaction, whose STARTED row
// was rolled back with it, so the key is upserted.
func MarkIdempotencyFailed(db *gorm.DB, scope, handlerName, messageId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	key := models.IdempotencyKey{
		Scope:       scope,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusFailed,
		LastError:   &msg,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "handler_name"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "updated_at"}),
	}).Create(&key).Error
}
