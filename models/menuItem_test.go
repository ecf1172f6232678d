package models_test

import (
	"testing"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/mmdatafocus/pos_backend/pricing"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func mustMenuItem(t *testing.T, db *gorm.DB, name, price string) *models.MenuItem {
	t.Helper()
	m, err := models.CreateMenuItem(db, &models.NewMenuItem{Name: name, Price: dec(price)})
	if err != nil {
		t.Fatalf("CreateMenuItem %s: %v", name, err)
	}
	return m
}

func TestCostOfPizza(t *testing.T) {
	db := openTestDB(t)
	seedUnits(t, db)
	flour := mustItem(t, db, "Flour", "lb")
	cheese := mustItem(t, db, "Cheese", "lb")
	received := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	// an older flour price that must be ignored
	if _, err := models.ReceiveBatch(db, flour, models.ReceiveBatchInput{Qty: dec("50"), UnitCost: dec("0.45"), ReceivedAt: received.Add(-48 * time.Hour)}); err != nil {
		t.Fatalf("ReceiveBatch: %v", err)
	}
	if _, err := models.ReceiveBatch(db, flour, models.ReceiveBatchInput{Qty: dec("50"), UnitCost: dec("0.60"), ReceivedAt: received}); err != nil {
		t.Fatalf("ReceiveBatch: %v", err)
	}
	if _, err := models.ReceiveBatch(db, cheese, models.ReceiveBatchInput{Qty: dec("10"), UnitCost: dec("3.00"), ReceivedAt: received}); err != nil {
		t.Fatalf("ReceiveBatch: %v", err)
	}

	pizza := mustMenuItem(t, db, "Margherita", "12.00")
	if _, err := models.SaveRecipe(db, pizza.ID, &models.NewRecipe{Components: []*models.NewRecipeComponent{
		{InventoryItemId: flour.ID, Qty: dec("0.2")},
		{InventoryItemId: cheese.ID, Qty: dec("0.1")},
	}}); err != nil {
		t.Fatalf("SaveRecipe: %v", err)
	}

	total, lines, err := models.CostOf(db, pizza.ID)
	if err != nil {
		t.Fatalf("CostOf: %v", err)
	}
	if total == nil || total.StringFixed(2) != "0.42" {
		t.Fatalf("expected total 0.42, got %v", total)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].IngredientName != "Flour" || lines[0].Extended.StringFixed(4) != "0.1200" {
		t.Fatalf("unexpected flour line %+v", lines[0])
	}
	if lines[1].IngredientName != "Cheese" || lines[1].Extended.StringFixed(4) != "0.3000" {
		t.Fatalf("unexpected cheese line %+v", lines[1])
	}
}

func TestCostOfWithoutRecipeOrBatches(t *testing.T) {
	db := openTestDB(t)
	seedUnits(t, db)
	salad := mustMenuItem(t, db, "Salad", "8.00")

	total, lines, err := models.CostOf(db, salad.ID)
	if err != nil {
		t.Fatalf("CostOf: %v", err)
	}
	if total != nil || len(lines) != 0 {
		t.Fatalf("expected no recipe, got %v %v", total, lines)
	}

	lettuce := mustItem(t, db, "Lettuce", "g")
	if _, err := models.SaveRecipe(db, salad.ID, &models.NewRecipe{Components: []*models.NewRecipeComponent{
		{InventoryItemId: lettuce.ID, Qty: dec("120")},
	}}); err != nil {
		t.Fatalf("SaveRecipe: %v", err)
	}
	total, lines, err = models.CostOf(db, salad.ID)
	if err != nil {
		t.Fatalf("CostOf: %v", err)
	}
	if total == nil || !total.IsZero() || !lines[0].UnitCost.IsZero() {
		t.Fatalf("never-received ingredient should cost zero, got %v %+v", total, lines)
	}
}

func TestSaveRecipeValidation(t *testing.T) {
	db := openTestDB(t)
	seedUnits(t, db)
	soup := mustMenuItem(t, db, "Soup", "6.50")
	onion := mustItem(t, db, "Onion", "g")

	cases := []struct {
		name  string
		input *models.NewRecipe
	}{
		{"duplicate ingredient", &models.NewRecipe{Components: []*models.NewRecipeComponent{
			{InventoryItemId: onion.ID, Qty: dec("1")}, {InventoryItemId: onion.ID, Qty: dec("2")},
		}}},
		{"zero qty", &models.NewRecipe{Components: []*models.NewRecipeComponent{{InventoryItemId: onion.ID}}}},
		{"waste over 100", &models.NewRecipe{Components: []*models.NewRecipeComponent{
			{InventoryItemId: onion.ID, Qty: dec("1"), WastePct: dec("101")},
		}}},
		{"unknown item", &models.NewRecipe{Components: []*models.NewRecipeComponent{{InventoryItemId: 999, Qty: dec("1")}}}},
		{"negative yield", &models.NewRecipe{YieldQty: dec("-1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := models.SaveRecipe(db, soup.ID, tc.input); !apperr.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	// saving again replaces the components
	if _, err := models.SaveRecipe(db, soup.ID, &models.NewRecipe{Components: []*models.NewRecipeComponent{{InventoryItemId: onion.ID, Qty: dec("80")}}}); err != nil {
		t.Fatalf("SaveRecipe: %v", err)
	}
	recipe, err := models.SaveRecipe(db, soup.ID, &models.NewRecipe{Components: []*models.NewRecipeComponent{{InventoryItemId: onion.ID, Qty: dec("90")}}})
	if err != nil {
		t.Fatalf("SaveRecipe: %v", err)
	}
	var count int64
	db.Model(&models.RecipeComponent{}).Where("recipe_id = ?", recipe.ID).Count(&count)
	if count != 1 || !recipe.Components[0].Qty.Equal(dec("90")) {
		t.Fatalf("expected a single replaced component, got %d", count)
	}
}

func TestCartSnapshotAndOrderStaging(t *testing.T) {
	db := openTestDB(t)
	burger := mustMenuItem(t, db, "Burger", "4.00")
	bacon, err := models.CreateModifierOption(db, burger.ID, &models.NewModifierOption{Name: "Bacon", PriceDelta: dec("0.50")})
	if err != nil {
		t.Fatalf("CreateModifierOption: %v", err)
	}
	other := mustMenuItem(t, db, "Fries", "2.00")
	salt, _ := models.CreateModifierOption(db, other.ID, &models.NewModifierOption{Name: "Salt", PriceDelta: decimal.Zero})

	cart, err := models.CreateCart(db, &models.NewCart{})
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if cart.SessionToken == nil || *cart.SessionToken == "" {
		t.Fatalf("guest cart needs a session token")
	}
	if !cart.AccessibleBy(nil, *cart.SessionToken) || cart.AccessibleBy(nil, "other") {
		t.Fatalf("guest token check failed")
	}
	userId := 5
	if cart.AccessibleBy(&userId, "") {
		t.Fatalf("a user cannot reach a guest cart without its token")
	}

	if _, err := models.AddCartItem(db, cart, &models.NewCartItem{MenuItemId: burger.ID, Qty: 3, ModifierOptionIds: []int{salt.ID}}, 500); !apperr.IsValidation(err) {
		t.Fatalf("expected a foreign modifier to be rejected, got %v", err)
	}
	if _, err := models.AddCartItem(db, cart, &models.NewCartItem{MenuItemId: burger.ID, Qty: 0}, 500); !apperr.IsValidation(err) {
		t.Fatalf("expected qty 0 to be rejected, got %v", err)
	}
	ci, err := models.AddCartItem(db, cart, &models.NewCartItem{MenuItemId: burger.ID, Qty: 3, Notes: "  no onion ", ModifierOptionIds: []int{bacon.ID}}, 500)
	if err != nil {
		t.Fatalf("AddCartItem: %v", err)
	}
	if ci.UnitPrice.StringFixed(2) != "4.50" || ci.Notes != "no onion" {
		t.Fatalf("expected 4.50 snapshot with trimmed note, got %s %q", ci.UnitPrice, ci.Notes)
	}

	// later price changes do not reach the cart
	db.Model(&models.MenuItem{}).Where("id = ?", burger.ID).Update("price", dec("9.99"))

	loaded, err := models.GetCart(db, cart.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	totals, err := pricing.ComputeTotals(loaded.LineItems(), 200, dec("0.08"), 0, 0)
	if err != nil {
		t.Fatalf("ComputeTotals: %v", err)
	}
	if totals.GrandTotal.StringFixed(2) != "16.58" {
		t.Fatalf("expected 16.58, got %s", totals.GrandTotal)
	}

	order, err := models.StageOrderFromCart(db, loaded, totals, models.FulfillmentPickup, "usd")
	if err != nil {
		t.Fatalf("StageOrderFromCart: %v", err)
	}
	stored, err := models.GetOrder(db, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if stored.Status != models.OrderStatusPending || stored.CartId == nil || *stored.CartId != cart.ID {
		t.Fatalf("unexpected order %+v", stored)
	}
	if len(stored.Items) != 1 || stored.Items[0].LineTotal.StringFixed(2) != "13.50" || len(stored.Items[0].Modifiers) != 1 {
		t.Fatalf("unexpected order items %+v", stored.Items)
	}
	if stored.Totals().GrandTotalCents() != 1658 {
		t.Fatalf("expected 1658 cents, got %d", stored.Totals().GrandTotalCents())
	}

	closed, err := models.CloseCart(db, cart.ID, time.Now().UTC())
	if err != nil || !closed {
		t.Fatalf("CloseCart: %v %v", closed, err)
	}
	if closed, _ := models.CloseCart(db, cart.ID, time.Now().UTC()); closed {
		t.Fatalf("second close must be a no-op")
	}
	if _, err := models.AddCartItem(db, &models.Cart{ID: cart.ID, ClosedAt: &order.CreatedAt}, &models.NewCartItem{MenuItemId: burger.ID, Qty: 1}, 500); !apperr.IsInvalidState(err) {
		t.Fatalf("closed cart must reject items, got %v", err)
	}
}

func TestCreateCartPrincipal(t *testing.T) {
	db := openTestDB(t)
	userId := 11
	if _, err := models.CreateCart(db, &models.NewCart{UserId: &userId, SessionToken: "abc"}); !apperr.IsValidation(err) {
		t.Fatalf("expected both principals to be rejected, got %v", err)
	}
	cart, err := models.CreateCart(db, &models.NewCart{UserId: &userId})
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if cart.SessionToken != nil || !cart.AccessibleBy(&userId, "") {
		t.Fatalf("user cart should be reachable by its user only")
	}
	other := 12
	if cart.AccessibleBy(&other, "") || cart.AccessibleBy(nil, "") {
		t.Fatalf("user cart leaked")
	}
}
