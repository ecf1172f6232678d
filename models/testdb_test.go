package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var ctxBg = context.Background()

// openTestDB returns a migrated in-memory database private to the test.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), config.GormConfig())
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedUnits loads g, kg, oz, lb, ea with kg->g, lb->g and lb->oz.
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

func assertNoDrift(t *testing.T, db *gorm.DB) {
	t.Helper()
	drift, err := models.FindLedgerDrift(db)
	if err != nil {
		t.Fatalf("FindLedgerDrift: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("expected batch totals to match journal, got %+v", drift)
	}
}
