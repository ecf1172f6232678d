package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cart belongs to exactly one principal: a user or a guest session token.
type Cart struct {
	ID           int        `gorm:"primary_key" json:"id"`
	UserId       *int       `gorm:"index" json:"user_id"`
	SessionToken *string    `gorm:"size:64;uniqueIndex" json:"session_token"`
	Currency     string     `gorm:"size:3;not null" json:"currency"`
	ClosedAt     *time.Time `json:"closed_at"`
	Items        []CartItem `gorm:"foreignKey:CartId;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CartItem.UnitPrice is the menu price plus modifier deltas at the time the
// item was added. Later menu price changes do not touch it.
type CartItem struct {
	ID           int                `gorm:"primary_key" json:"id"`
	CartId       int                `gorm:"not null;index" json:"cart_id"`
	MenuItemId   int                `gorm:"not null;index" json:"menu_item_id"`
	MenuItemName string             `gorm:"size:120;not null" json:"name"`
	Qty          int                `gorm:"not null" json:"qty"`
	UnitPrice    decimal.Decimal    `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Notes        string             `gorm:"type:text" json:"notes"`
	Modifiers    []CartItemModifier `gorm:"foreignKey:CartItemId;constraint:OnDelete:CASCADE" json:"modifiers"`
}

type CartItemModifier struct {
	ID               int             `gorm:"primary_key" json:"id"`
	CartItemId       int             `gorm:"not null;index" json:"cart_item_id"`
	ModifierOptionId int             `gorm:"not null" json:"option_id"`
	Name             string          `gorm:"size:80;not null" json:"name"`
	PriceDelta       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price_delta"`
}

func (c *Cart) IsClosed() bool {
	return c.ClosedAt != nil
}

// AccessibleBy reports whether the caller owns the cart, either as the
// logged-in user or by presenting the guest session token.
func (c *Cart) AccessibleBy(userId *int, sessionToken string) bool {
	if c.UserId != nil {
		return userId != nil && *userId == *c.UserId
	}
	return c.SessionToken != nil && sessionToken != "" && *c.SessionToken == sessionToken
}

type NewCart struct {
	UserId       *int   `json:"user_id"`
	SessionToken string `json:"session_id" validate:"max=64"`
	Currency     string `json:"currency"`
}

// CreateCart opens a cart for a user, or for a guest when UserId is nil.
// A guest without a token gets a fresh one.
func CreateCart(tx *gorm.DB, input *NewCart) (*Cart, error) {
	input.SessionToken = strings.TrimSpace(input.SessionToken)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.UserId != nil && input.SessionToken != "" {
		return nil, apperr.NewValidation("session_id", "a cart belongs to a user or a guest session, not both")
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = config.DefaultCurrency
	}

	cart := Cart{UserId: input.UserId, Currency: currency}
	if input.UserId == nil {
		token := input.SessionToken
		if token == "" {
			token = utils.NewSessionToken()
		}
		cart.SessionToken = &token
	}
	if err := tx.Omit(clause.Associations).Create(&cart).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, apperr.NewValidation("session_id", "session already has a cart")
		}
		return nil, err
	}
	return &cart, nil
}

// GetCart loads a cart with items and modifiers in insertion order.
func GetCart(tx *gorm.DB, id int) (*Cart, error) {
	var cart Cart
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Preload("Items.Modifiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).First(&cart, id).Error
	if err != nil {
		return nil, utils.NotFoundOr(err)
	}
	return &cart, nil
}

type NewCartItem struct {
	MenuItemId        int    `json:"menu_item_id" validate:"required,gt=0"`
	Qty               int    `json:"qty" validate:"gte=1"`
	Notes             string `json:"notes"`
	ModifierOptionIds []int  `json:"modifier_option_ids" validate:"dive,gt=0"`
}

// AddCartItem snapshots the menu item and its chosen modifiers into cart.
func AddCartItem(tx *gorm.DB, cart *Cart, input *NewCartItem, noteMaxLen int) (*CartItem, error) {
	if cart.IsClosed() {
		return nil, &apperr.InvalidStateError{Entity: "cart", State: "closed", Op: "add item"}
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	notes, err := utils.NormalizeNote(input.Notes, noteMaxLen)
	if err != nil {
		return nil, err
	}

	menuItem, err := utils.FetchModel[MenuItem](tx, input.MenuItemId)
	if err != nil {
		return nil, err
	}
	if menuItem.IsActive != nil && !*menuItem.IsActive {
		return nil, apperr.NewValidation("menu_item_id", "menu item %d is not available", menuItem.ID)
	}

	var options []ModifierOption
	if len(input.ModifierOptionIds) > 0 {
		if err := tx.Where("id IN ? AND menu_item_id = ?", input.ModifierOptionIds, menuItem.ID).
			Order("id").Find(&options).Error; err != nil {
			return nil, err
		}
		if len(options) != len(input.ModifierOptionIds) {
			return nil, apperr.NewValidation("modifier_option_ids", "unknown modifier for menu item %d", menuItem.ID)
		}
	}

	unitPrice := menuItem.Price
	for _, opt := range options {
		unitPrice = unitPrice.Add(opt.PriceDelta)
	}
	item := CartItem{
		CartId:       cart.ID,
		MenuItemId:   menuItem.ID,
		MenuItemName: menuItem.Name,
		Qty:          input.Qty,
		UnitPrice:    unitPrice.Round(2),
		Notes:        notes,
	}
	if err := tx.Omit(clause.Associations).Create(&item).Error; err != nil {
		return nil, err
	}
	for _, opt := range options {
		mod := CartItemModifier{CartItemId: item.ID, ModifierOptionId: opt.ID, Name: opt.Name, PriceDelta: opt.PriceDelta}
		if err := tx.Create(&mod).Error; err != nil {
			return nil, err
		}
		item.Modifiers = append(item.Modifiers, mod)
	}
	return &item, nil
}

// CloseCart stamps closed_at once. It reports whether this call closed it.
func CloseCart(tx *gorm.DB, cartId int, at time.Time) (bool, error) {
	res := tx.Model(&Cart{}).Where("id = ? AND closed_at IS NULL", cartId).Update("closed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
