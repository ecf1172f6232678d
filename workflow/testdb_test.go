package workflow

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/payment"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var ctxBg = context.Background()

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:wf_%s?mode=memory&cache=shared", name)), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedUnits(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, u := range []models.NewUnit{
		{Code: "g", Name: "Gram"}, {Code: "kg", Name: "Kilogram"}, {Code: "oz", Name: "Ounce"},
		{Code: "lb", Name: "Pound"}, {Code: "ea", Name: "Each"},
	} {
		u := u
		if _, err := models.CreateUnit(db, &u); err != nil {
			t.Fatalf("CreateUnit %s: %v", u.Code, err)
		}
	}
	for _, c := range []models.NewUnitConversion{
		{FromCode: "kg", ToCode: "g", Factor: dec("1000")},
		{FromCode: "lb", ToCode: "g", Factor: dec("453.592")},
		{FromCode: "lb", ToCode: "oz", Factor: dec("16")},
	} {
		c := c
		if _, err := models.CreateUnitConversion(ctxBg, db, &c); err != nil {
			t.Fatalf("CreateUnitConversion %s->%s: %v", c.FromCode, c.ToCode, err)
		}
	}
}

func mustItem(t *testing.T, db *gorm.DB, name, baseUnit string) *models.InventoryItem {
	t.Helper()
	item, err := models.CreateInventoryItem(db, &models.NewInventoryItem{Name: name, BaseUnitCode: baseUnit})
	if err != nil {
		t.Fatalf("CreateInventoryItem %s: %v", name, err)
	}
	return item
}

func mustMenuItem(t *testing.T, db *gorm.DB, name, price string) *models.MenuItem {
	t.Helper()
	m, err := models.CreateMenuItem(db, &models.NewMenuItem{Name: name, Price: dec(price)})
	if err != nil {
		t.Fatalf("CreateMenuItem %s: %v", name, err)
	}
	return m
}

const guestToken = "guest-session-1"

// burgerCart is a guest cart holding 3 x Burger (4.00) with bacon (+0.50).
func burgerCart(t *testing.T, db *gorm.DB) *models.Cart {
	t.Helper()
	burger := mustMenuItem(t, db, "Burger", "4.00")
	bacon, err := models.CreateModifierOption(db, burger.ID, &models.NewModifierOption{Name: "Bacon", PriceDelta: dec("0.50")})
	if err != nil {
		t.Fatalf("CreateModifierOption: %v", err)
	}
	cart, err := models.CreateCart(db, &models.NewCart{SessionToken: guestToken})
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if _, err := models.AddCartItem(db, cart, &models.NewCartItem{MenuItemId: burger.ID, Qty: 3, ModifierOptionIds: []int{bacon.ID}}, 500); err != nil {
		t.Fatalf("AddCartItem: %v", err)
	}
	return cart
}

// checkedOut checks the burger cart out: 13.50 subtotal, 8% tax, 2.00 tip.
func checkedOut(t *testing.T, db *gorm.DB, provider payment.Provider) (*models.Cart, *CheckoutResult) {
	t.Helper()
	t.Setenv("TAX_RATE", "0.08")
	cart := burgerCart(t, db)
	res, err := PrepareCheckout(ctxBg, db, provider, testLogger(), CheckoutInput{
		CartId:       cart.ID,
		TipCents:     200,
		Fulfillment:  "pickup",
		SessionToken: guestToken,
	})
	if err != nil {
		t.Fatalf("PrepareCheckout: %v", err)
	}
	return cart, res
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
