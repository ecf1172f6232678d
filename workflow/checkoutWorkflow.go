package workflow

import (
	"context"
	"errors"
	"strconv"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/payment"
	"github.com/mmdatafocus/pos_backend/pricing"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CheckoutInput struct {
	CartId           int    `json:"cart_id" validate:"required,gt=0"`
	TipCents         int64  `json:"tip_cents" validate:"gte=0"`
	DeliveryFeeCents int64  `json:"delivery_fee_cents" validate:"gte=0"`
	DiscountCents    int64  `json:"discount_cents" validate:"gte=0"`
	Fulfillment      string `json:"fulfillment"`
	// caller identity, one of the two
	UserId       *int   `json:"-"`
	SessionToken string `json:"session_id"`
}

type CheckoutResult struct {
	OrderId         int            `json:"order_id"`
	ClientSecret    string         `json:"client_secret"`
	PaymentIntentId string         `json:"payment_intent_id"`
	AmountCents     int64          `json:"amount_cents"`
	Currency        string         `json:"currency"`
	Totals          pricing.Totals `json:"totals"`
}

// asExternal makes sure a provider failure surfaces as a retryable
// ExternalServiceError; local state is already rolled back when it does.
func asExternal(op string, err error) error {
	var ee *apperr.ExternalServiceError
	if errors.As(err, &ee) {
		return err
	}
	return &apperr.ExternalServiceError{Op: op, Retryable: true, Err: err}
}

// principalFromContext fills a blank caller identity from the request context.
func principalFromContext(ctx context.Context, userId *int, sessionToken string) (*int, string) {
	if userId == nil {
		if id, ok := utils.GetUserIdFromContext(ctx); ok && id > 0 {
			userId = &id
		}
	}
	if sessionToken == "" {
		sessionToken, _ = utils.GetSessionTokenFromContext(ctx)
	}
	return userId, sessionToken
}

// PrepareCheckout turns a cart into a pending order and a payment
// authorization. The order, its items and the payment row commit together, and
// only after the provider accepted the authorization.
func PrepareCheckout(ctx context.Context, db *gorm.DB, provider payment.Provider, logger *logrus.Logger, input CheckoutInput) (result *CheckoutResult, err error) {
	ctx, span := startSpan(ctx, "workflow.PrepareCheckout", attribute.Int("cart_id", input.CartId))
	defer func() { endSpan(span, err) }()

	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	input.UserId, input.SessionToken = principalFromContext(ctx, input.UserId, input.SessionToken)
	fulfillment, err := models.ParseFulfillment(input.Fulfillment)
	if err != nil {
		return nil, apperr.NewValidation("fulfillment", "must be pickup or delivery")
	}
	settings := config.LoadSettings()

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cart, input.CartId).Error; err != nil {
			return utils.NotFoundOr(err)
		}
		if !cart.AccessibleBy(input.UserId, input.SessionToken) {
			return utils.ErrorRecordNotFound
		}
		if cart.IsClosed() {
			return &apperr.InvalidStateError{Entity: "cart", State: "closed", Op: "check out"}
		}
		loaded, err := models.GetCart(tx, cart.ID)
		if err != nil {
			return err
		}
		if len(loaded.Items) == 0 {
			return apperr.NewValidation("cart_id", "cart is empty")
		}

		totals, err := pricing.ComputeTotals(loaded.LineItems(), input.TipCents, settings.TaxRate, input.DeliveryFeeCents, input.DiscountCents)
		if err != nil {
			return err
		}
		order, err := models.StageOrderFromCart(tx, loaded, totals, fulfillment, settings.Currency)
		if err != nil {
			config.LogError(logger, "CheckoutWorkflow.go", "PrepareCheckout", "StageOrderFromCart", input.CartId, err)
			return err
		}

		userRef := ""
		if loaded.UserId != nil {
			userRef = strconv.Itoa(*loaded.UserId)
		}
		payCtx, cancel := context.WithTimeout(ctx, settings.PaymentTimeout)
		defer cancel()
		auth, err := provider.CreateAuthorization(payCtx, payment.AuthorizationRequest{
			AmountCents: totals.GrandTotalCents(),
			Currency:    settings.Currency,
			Metadata: map[string]string{
				"order_id": strconv.Itoa(order.ID),
				"cart_id":  strconv.Itoa(loaded.ID),
				"user_id":  userRef,
			},
			IdempotencyKey: pricing.IdempotencyKeyForOrder(order.ID),
		})
		if err != nil {
			config.LogError(logger, "CheckoutWorkflow.go", "PrepareCheckout", "CreateAuthorization", order.ID, err)
			return asExternal("create authorization", err)
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("payment_reference", auth.Id).Error; err != nil {
			return err
		}
		pay := models.Payment{
			OrderId:     order.ID,
			Provider:    provider.Name(),
			Reference:   auth.Id,
			Amount:      totals.GrandTotal,
			Currency:    settings.Currency,
			Status:      models.PaymentStatusPending,
			RawResponse: string(auth.Raw),
		}
		if err := tx.Create(&pay).Error; err != nil {
			config.LogError(logger, "CheckoutWorkflow.go", "PrepareCheckout", "Create Payment", auth.Id, err)
			return err
		}

		result = &CheckoutResult{
			OrderId:         order.ID,
			ClientSecret:    auth.ClientSecret,
			PaymentIntentId: auth.Id,
			AmountCents:     totals.GrandTotalCents(),
			Currency:        settings.Currency,
			Totals:          totals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":       "CheckoutWorkflow.go",
			"order_id":     result.OrderId,
			"amount_cents": result.AmountCents,
		}).Info("checkout prepared")
	}
	return result, nil
}

type TipUpdateInput struct {
	OrderId      int   `json:"order_id" validate:"required,gt=0"`
	TipCents     int64 `json:"tip_cents" validate:"gte=0"`
	UserId       *int  `json:"-"`
	SessionToken string
}

// orderAccessible lets the ordering user through, or a guest holding the
// token of the cart the order came from.
func orderAccessible(tx *gorm.DB, order *models.Order, userId *int, sessionToken string) (bool, error) {
	if order.UserId != nil {
		return userId != nil && *userId == *order.UserId, nil
	}
	if order.CartId == nil {
		return false, nil
	}
	cart, err := utils.FetchModel[models.Cart](tx, *order.CartId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return cart.AccessibleBy(nil, sessionToken), nil
}

// UpdateTip changes the tip of a pending order. The provider authorization is
// resized first; stored totals change only after it succeeded.
func UpdateTip(ctx context.Context, db *gorm.DB, provider payment.Provider, logger *logrus.Logger, input TipUpdateInput) (totals pricing.Totals, err error) {
	ctx, span := startSpan(ctx, "workflow.UpdateTip", attribute.Int("order_id", input.OrderId))
	defer func() { endSpan(span, err) }()

	if err := utils.ValidateStruct(&input); err != nil {
		return pricing.Totals{}, err
	}
	input.UserId, input.SessionToken = principalFromContext(ctx, input.UserId, input.SessionToken)
	settings := config.LoadSettings()
	if input.TipCents > settings.MaxTipCents {
		return pricing.Totals{}, apperr.NewValidation("tip_cents", "tip too large (max %d cents)", settings.MaxTipCents)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := models.LockOrder(tx, input.OrderId)
		if err != nil {
			return err
		}
		ok, err := orderAccessible(tx, order, input.UserId, input.SessionToken)
		if err != nil {
			return err
		}
		if !ok {
			return utils.ErrorRecordNotFound
		}
		next, err := pricing.RetotalForTipChange(order.Totals(), pricing.OrderStatus(order.Status), input.TipCents)
		if err != nil {
			return err
		}
		if order.PaymentReference == nil || *order.PaymentReference == "" {
			return &apperr.InvalidStateError{Entity: "order", State: "no payment authorization", Op: "change tip on"}
		}
		reference := *order.PaymentReference

		payCtx, cancel := context.WithTimeout(ctx, settings.PaymentTimeout)
		defer cancel()
		current, err := provider.RetrieveAuthorization(payCtx, reference)
		if err != nil {
			config.LogError(logger, "CheckoutWorkflow.go", "UpdateTip", "RetrieveAuthorization", reference, err)
			return asExternal("retrieve authorization", err)
		}
		if current.IsFinal() {
			return &apperr.InvalidStateError{Entity: "payment", State: current.Status, Op: "change tip on"}
		}
		updated, err := provider.ModifyAuthorization(payCtx, reference, next.GrandTotalCents())
		if err != nil {
			config.LogError(logger, "CheckoutWorkflow.go", "UpdateTip", "ModifyAuthorization", reference, err)
			return asExternal("modify authorization", err)
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"tip":         next.Tip,
			"grand_total": next.GrandTotal,
		}).Error; err != nil {
			return err
		}
		pay, err := models.FindOrderPayment(tx, order.ID, provider.Name(), reference)
		switch {
		case err == nil:
			if err := tx.Model(&models.Payment{}).Where("id = ?", pay.ID).Updates(map[string]interface{}{
				"amount":       next.GrandTotal,
				"raw_response": string(updated.Raw),
			}).Error; err != nil {
				return err
			}
		case !errors.Is(err, utils.ErrorRecordNotFound):
			return err
		}
		totals = next
		return nil
	})
	if err != nil {
		return pricing.Totals{}, err
	}
	return totals, nil
}
