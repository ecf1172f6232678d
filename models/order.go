package models

import (
	"time"

	"github.com/mmdatafocus/pos_backend/pricing"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the checkout snapshot of a cart. Only Status, Tip, GrandTotal,
// PlacedAt and PaymentReference change after creation.
type Order struct {
	ID               int             `gorm:"primary_key" json:"id"`
	UserId           *int            `gorm:"index" json:"user_id"`
	CartId           *int            `gorm:"index" json:"cart_id"`
	Status           OrderStatus     `gorm:"size:20;not null;index" json:"status"`
	Channel          string          `gorm:"size:20;not null;default:web" json:"channel"`
	Fulfillment      Fulfillment     `gorm:"size:20;not null;default:pickup" json:"fulfillment"`
	Currency         string          `gorm:"size:3;not null" json:"currency"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	TaxTotal         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax_total"`
	DeliveryFee      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"delivery_fee"`
	DiscountTotal    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount_total"`
	Tip              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tip"`
	GrandTotal       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"grand_total"`
	PaymentReference *string         `gorm:"size:255;index" json:"payment_reference"`
	PlacedAt         *time.Time      `json:"placed_at"`
	Items            []OrderItem     `gorm:"foreignKey:OrderId;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	OrderId      int                 `gorm:"not null;index" json:"order_id"`
	MenuItemId   int                 `gorm:"index" json:"menu_item_id"`
	MenuItemName string              `gorm:"size:120;not null" json:"name"`
	Qty          int                 `gorm:"not null" json:"qty"`
	UnitPrice    decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	LineTotal    decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"line_total"`
	Notes        string              `gorm:"type:text" json:"notes"`
	Modifiers    []OrderItemModifier `gorm:"foreignKey:OrderItemId;constraint:OnDelete:CASCADE" json:"modifiers"`
}

type OrderItemModifier struct {
	ID          int             `gorm:"primary_key" json:"id"`
	OrderItemId int             `gorm:"not null;index" json:"order_item_id"`
	Name        string          `gorm:"size:80;not null" json:"name"`
	PriceDelta  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price_delta"`
}

// Totals extracts the monetary fields.
func (o *Order) Totals() pricing.Totals {
	return pricing.Totals{
		Subtotal:      o.Subtotal,
		TaxTotal:      o.TaxTotal,
		DeliveryFee:   o.DeliveryFee,
		DiscountTotal: o.DiscountTotal,
		Tip:           o.Tip,
		GrandTotal:    o.GrandTotal,
	}
}

func (o *Order) ApplyTotals(t pricing.Totals) {
	o.Subtotal = t.Subtotal
	o.TaxTotal = t.TaxTotal
	o.DeliveryFee = t.DeliveryFee
	o.DiscountTotal = t.DiscountTotal
	o.Tip = t.Tip
	o.GrandTotal = t.GrandTotal
}

// LineItems converts a cart into pricing input.
func (c *Cart) LineItems() []pricing.LineItem {
	items := make([]pricing.LineItem, 0, len(c.Items))
	for _, ci := range c.Items {
		items = append(items, pricing.LineItem{Name: ci.MenuItemName, UnitPrice: ci.UnitPrice, Qty: ci.Qty})
	}
	return items
}

// StageOrderFromCart writes a pending order with its item and modifier
// snapshots. Totals are taken as given.
func StageOrderFromCart(tx *gorm.DB, cart *Cart, totals pricing.Totals, fulfillment Fulfillment, currency string) (*Order, error) {
	cartId := cart.ID
	order := Order{
		UserId:      cart.UserId,
		CartId:      &cartId,
		Status:      OrderStatusPending,
		Channel:     "web",
		Fulfillment: fulfillment,
		Currency:    currency,
	}
	order.ApplyTotals(totals)
	if err := tx.Omit("Items").Create(&order).Error; err != nil {
		return nil, err
	}

	for _, ci := range cart.Items {
		oi := OrderItem{
			OrderId:      order.ID,
			MenuItemId:   ci.MenuItemId,
			MenuItemName: ci.MenuItemName,
			Qty:          ci.Qty,
			UnitPrice:    ci.UnitPrice,
			LineTotal:    ci.UnitPrice.Mul(decimal.NewFromInt(int64(ci.Qty))).Round(2),
			Notes:        ci.Notes,
		}
		if err := tx.Omit("Modifiers").Create(&oi).Error; err != nil {
			return nil, err
		}
		for _, m := range ci.Modifiers {
			om := OrderItemModifier{OrderItemId: oi.ID, Name: m.Name, PriceDelta: m.PriceDelta}
			if err := tx.Create(&om).Error; err != nil {
				return nil, err
			}
			oi.Modifiers = append(oi.Modifiers, om)
		}
		order.Items = append(order.Items, oi)
	}
	return &order, nil
}

func GetOrder(tx *gorm.DB, id int) (*Order, error) {
	return utils.FetchModel[Order](tx, id, "Items", "Items.Modifiers")
}

// LockOrder loads the order row with SELECT ... FOR UPDATE.
func LockOrder(tx *gorm.DB, id int) (*Order, error) {
	return utils.FetchModelForUpdate[Order](tx, id)
}
