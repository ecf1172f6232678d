package workflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/payment"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const paymentWebhookHandler = "payment_webhook"

// Outcome says what a webhook delivery did. Every outcome is acknowledged.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeUnknownReference Outcome = "unknown_reference"
)

// HandleWebhook verifies a raw delivery with the provider and reconciles it.
func HandleWebhook(ctx context.Context, db *gorm.DB, provider payment.Provider, logger *logrus.Logger, body []byte, signatureHeader, secret string) (Outcome, error) {
	if secret == "" {
		return "", apperr.NewValidation("secret", "webhook secret not configured")
	}
	evt, err := provider.VerifyAndParse(body, signatureHeader, secret)
	if err != nil {
		config.LogError(logger, "PaymentReconciler.go", "HandleWebhook", "VerifyAndParse", nil, err)
		return "", err
	}
	return ProcessPaymentEvent(ctx, db, logger, evt)
}

// ProcessPaymentEvent applies a verified provider event to the matching order
// and payment. Re-deliveries are no-ops: the event id is recorded as an
// idempotency key in the same transaction as the state change, and a paid
// order is never touched again.
func ProcessPaymentEvent(ctx context.Context, db *gorm.DB, logger *logrus.Logger, evt payment.Event) (outcome Outcome, err error) {
	switch evt.Type {
	case payment.EventPaymentSucceeded, payment.EventPaymentFailed, payment.EventPaymentCanceled:
	default:
		return OutcomeIgnored, nil
	}
	if evt.Reference == "" {
		return "", apperr.NewValidation("reference", "event carries no payment reference")
	}
	provider := evt.Provider
	if provider == "" {
		provider = payment.ProviderStripe
	}
	messageId := evt.Id
	if messageId == "" {
		messageId = evt.Type + ":" + evt.Reference
	}

	ctx, span := startSpan(ctx, "workflow.ProcessPaymentEvent",
		attribute.String("event_type", evt.Type),
		attribute.String("reference", evt.Reference))
	defer func() { endSpan(span, err) }()

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip, err := BeginIdempotency(tx, provider, paymentWebhookHandler, messageId)
		if err != nil {
			return err
		}
		if skip {
			outcome = OutcomeDuplicate
			return nil
		}

		outcome, err = applyPaymentEvent(tx, provider, evt)
		if err != nil {
			return err
		}
		return MarkIdempotencySucceeded(tx, provider, paymentWebhookHandler, messageId)
	})
	if apperr.IsConflict(err) {
		// a concurrent delivery of the same event holds the key
		return OutcomeDuplicate, nil
	}
	if err != nil {
		config.LogError(logger, "PaymentReconciler.go", "ProcessPaymentEvent", evt.Type, evt.Reference, err)
		if markErr := MarkIdempotencyFailed(db.WithContext(ctx), provider, paymentWebhookHandler, messageId, err); markErr != nil {
			config.LogWarn(logger, "PaymentReconciler.go", "ProcessPaymentEvent", "MarkIdempotencyFailed", messageId, markErr)
		}
		return "", err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":     "PaymentReconciler.go",
			"event_id":   evt.Id,
			"event_type": evt.Type,
			"reference":  evt.Reference,
			"outcome":    outcome,
		}).Info("payment event processed")
	}
	return outcome, nil
}

func applyPaymentEvent(tx *gorm.DB, provider string, evt payment.Event) (Outcome, error) {
	pay, err := models.LockPaymentByReference(tx, provider, evt.Reference)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return OutcomeUnknownReference, nil
	}
	if err != nil {
		return "", err
	}
	order, err := models.LockOrder(tx, pay.OrderId)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	raw := string(evt.Raw)

	if evt.Type == payment.EventPaymentSucceeded {
		if order.Status == models.OrderStatusPaid {
			return OutcomeDuplicate, nil
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"status":    models.OrderStatusPaid,
			"placed_at": now,
		}).Error; err != nil {
			return "", err
		}
		if err := tx.Model(&models.Payment{}).Where("id = ?", pay.ID).Updates(map[string]interface{}{
			"status":       models.PaymentStatusCaptured,
			"raw_response": raw,
		}).Error; err != nil {
			return "", err
		}
		if cartId, ok := cartForOrder(order, evt); ok {
			if _, err := models.CloseCart(tx, cartId, now); err != nil {
				return "", err
			}
		}
		if _, err := models.EnqueueOutboxEvent(tx, models.EventOrderPaid, models.ReferenceTypeOrder, order.ID, map[string]interface{}{
			"order_id":    order.ID,
			"grand_total": order.GrandTotal,
			"currency":    order.Currency,
		}); err != nil {
			return "", err
		}
		return OutcomeApplied, nil
	}

	// payment_failed / canceled
	if order.Status == models.OrderStatusPending {
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", models.OrderStatusFailed).Error; err != nil {
			return "", err
		}
		if _, err := models.EnqueueOutboxEvent(tx, models.EventOrderFailed, models.ReferenceTypeOrder, order.ID, map[string]interface{}{
			"order_id": order.ID,
			"reason":   evt.Type,
		}); err != nil {
			return "", err
		}
	}
	if pay.Status != models.PaymentStatusCaptured {
		if err := tx.Model(&models.Payment{}).Where("id = ?", pay.ID).Updates(map[string]interface{}{
			"status":       models.PaymentStatusFailed,
			"raw_response": raw,
		}).Error; err != nil {
			return "", err
		}
	}
	return OutcomeApplied, nil
}

// cartForOrder prefers the order's own cart link and falls back to the
// cart_id the authorization was created with.
func cartForOrder(order *models.Order, evt payment.Event) (int, bool) {
	if order.CartId != nil {
		return *order.CartId, true
	}
	if id, err := strconv.Atoi(evt.Metadata["cart_id"]); err == nil && id > 0 {
		return id, true
	}
	return 0, false
}
