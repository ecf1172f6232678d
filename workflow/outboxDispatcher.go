package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishFunc sends one event and returns the broker's message id.
type PublishFunc func(ctx context.Context, evt config.DomainEvent) (string, error)

// OutboxDispatcher publishes committed outbox events to Pub/Sub.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishDomainEvent,
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch, publishes it and returns how many were sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return 0
	}

	var claimed []models.OutboxEvent
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but the lock is stale (dispatcher died mid-batch)
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.OutboxEvent{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.OutboxEvent{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "OutboxDispatcher.go", "DispatchOnce", "claim batch", d.DispatcherID, err)
		return 0
	}

	sent := 0
	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		pubID, pubErr := d.Publish(ctx, rec.ToDomainEvent())
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID)
		sent++
	}
	return sent
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, pubsubMsgID string) {
	now := time.Now().UTC()
	id := pubsubMsgID
	err := d.DB.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &id,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "OutboxDispatcher.go", "markPublishSent", "update outbox", recordID, err)
	}
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.OutboxEvent, err error) {
	db := d.DB.WithContext(ctx)
	msg := err.Error()
	attempt := rec.PublishAttempts

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		if updErr := db.Model(&models.OutboxEvent{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error; updErr != nil {
			config.LogError(d.Logger, "OutboxDispatcher.go", "markPublishFailed", "mark dead", rec.ID, updErr)
		}
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":      "OutboxDispatcher",
				"event_type": rec.EventType,
				"record_id":  rec.ID,
				"attempt":    attempt,
			}).Error("outbox publish moved to DEAD after max attempts: " + msg)
		}
		return
	}

	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	next := time.Now().UTC().Add(backoff)
	if updErr := db.Model(&models.OutboxEvent{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error; updErr != nil {
		config.LogError(d.Logger, "OutboxDispatcher.go", "markPublishFailed", "schedule retry", rec.ID, updErr)
	}

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"event_type":      rec.EventType,
			"record_id":       rec.ID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("outbox publish failed: " + msg)
	}
}

// RequeueDead puts DEAD events back to PENDING with a fresh attempt budget.
// No ids means every DEAD event.
func (d *OutboxDispatcher) RequeueDead(ctx context.Context, ids ...int) (int64, error) {
	q := d.DB.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("publish_status = ?", models.OutboxPublishStatusDead)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.Updates(map[string]interface{}{
		"publish_status":   models.OutboxPublishStatusPending,
		"publish_attempts": 0,
		"next_attempt_at":  nil,
	})
	if res.Error != nil {
		config.LogError(d.Logger, "OutboxDispatcher.go", "RequeueDead", "requeue", ids, res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
