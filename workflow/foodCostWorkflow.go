package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/money"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type foodCostPeriod struct {
	days  int
	label string
}

var foodCostPeriods = map[string]foodCostPeriod{
	"day":   {1, "Last 24h"},
	"week":  {7, "Last 7 days"},
	"month": {30, "Last 30 days"},
}

type FoodCostItem struct {
	MenuItemId  int              `json:"menu_item_id"`
	Name        string           `json:"name"`
	Price       decimal.Decimal  `json:"price"`
	Cost        *decimal.Decimal `json:"cost"`
	FoodCostPct *decimal.Decimal `json:"food_cost_pct"`
	QtySold     int              `json:"qty_sold"`
}

type FoodCostReport struct {
	Period        string           `json:"period"`
	Label         string           `json:"label"`
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	OrdersCount   int              `json:"orders_count"`
	PaymentsCount int              `json:"payments_count"`
	Revenue       decimal.Decimal  `json:"revenue"`
	Cogs          decimal.Decimal  `json:"cogs"`
	FoodCostPct   *decimal.Decimal `json:"food_cost_pct"`
	Items         []FoodCostItem   `json:"items"`
}

// percentOf returns round2(part/whole*100), nil when whole is zero.
func percentOf(part, whole decimal.Decimal) *decimal.Decimal {
	if whole.IsZero() {
		return nil
	}
	pct := money.Round2(part.Mul(decimal.NewFromInt(100)).Div(whole))
	return &pct
}

// FoodCostSummary compares recipe cost of what was sold against the revenue
// collected over a trailing window. Unknown periods fall back to a week.
func FoodCostSummary(ctx context.Context, db *gorm.DB, period string) (*FoodCostReport, error) {
	key := strings.ToLower(strings.TrimSpace(period))
	preset, ok := foodCostPeriods[key]
	if !ok {
		key, preset = "week", foodCostPeriods["week"]
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -preset.days)
	report := &FoodCostReport{Period: key, Label: preset.label, From: from, To: to, Items: []FoodCostItem{}}

	tx := db.WithContext(ctx)
	var orders []models.Order
	if err := tx.Preload("Items").
		Where("placed_at IS NOT NULL AND placed_at >= ? AND placed_at <= ?", from, to).
		Order("id").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	report.OrdersCount = len(orders)

	sold := make(map[string]int)
	orderIds := make([]int, 0, len(orders))
	for _, o := range orders {
		orderIds = append(orderIds, o.ID)
		for _, it := range o.Items {
			sold[strings.ToLower(strings.TrimSpace(it.MenuItemName))] += it.Qty
		}
	}

	revenue := decimal.Zero
	if len(orderIds) > 0 {
		var payments []models.Payment
		if err := tx.Where("order_id IN ? AND status IN ?", orderIds, models.RevenuePaymentStatuses).
			Find(&payments).Error; err != nil {
			return nil, err
		}
		report.PaymentsCount = len(payments)
		for _, p := range payments {
			revenue = revenue.Add(p.Amount)
		}
	}
	report.Revenue = money.Round2(revenue)

	var menu []models.MenuItem
	if err := tx.Where("is_active = ?", true).Order("name, id").Find(&menu).Error; err != nil {
		return nil, utils.NotFoundOr(err)
	}
	cogs := decimal.Zero
	for _, m := range menu {
		cost, _, err := models.CostOf(tx, m.ID)
		if err != nil {
			return nil, err
		}
		row := FoodCostItem{
			MenuItemId: m.ID,
			Name:       m.Name,
			Price:      m.Price,
			Cost:       cost,
			QtySold:    sold[strings.ToLower(strings.TrimSpace(m.Name))],
		}
		if cost != nil {
			row.FoodCostPct = percentOf(*cost, m.Price)
			cogs = cogs.Add(cost.Mul(decimal.NewFromInt(int64(row.QtySold))))
		}
		report.Items = append(report.Items, row)
	}
	report.Cogs = money.Round2(cogs)
	report.FoodCostPct = percentOf(report.Cogs, report.Revenue)
	return report, nil
}
