package models

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/utils"
	"gorm.io/gorm"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Domain event types written to the outbox.
const (
	EventOrderPaid         = "order.paid"
	EventOrderFailed       = "order.failed"
	EventInventoryAdjusted = "inventory.adjusted"
)

// OutboxEvent is a domain event committed with the change that caused it and
// published to Pub/Sub afterwards by the dispatcher.
type OutboxEvent struct {
	ID               int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType        string     `gorm:"size:60;not null;index" json:"event_type"`
	ReferenceType    string     `gorm:"size:40;not null" json:"reference_type"`
	ReferenceId      int        `gorm:"not null" json:"reference_id"`
	Payload          []byte     `gorm:"type:blob" json:"payload"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	OccurredAt       time.Time  `gorm:"not null" json:"occurred_at"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueueOutboxEvent stores an event in the caller's transaction.
func EnqueueOutboxEvent(tx *gorm.DB, eventType string, referenceType string, referenceId int, payload any) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	evt := OutboxEvent{
		EventType:     eventType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		Payload:       body,
		OccurredAt:    time.Now().UTC(),
		PublishStatus: OutboxPublishStatusPending,
	}
	if ctx := tx.Statement.Context; ctx != nil {
		if id, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			evt.CorrelationId = id
		}
	}
	if err := tx.Create(&evt).Error; err != nil {
		return nil, err
	}
	return &evt, nil
}

func (e OutboxEvent) ToDomainEvent() config.DomainEvent {
	return config.DomainEvent{
		Type:          e.EventType,
		ReferenceType: e.ReferenceType,
		ReferenceId:   e.ReferenceId,
		OccurredAt:    e.OccurredAt,
		CorrelationId: e.CorrelationId,
		Payload:       json.RawMessage(e.Payload),
	}
}
