package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MenuItem struct {
	ID        int              `gorm:"primary_key" json:"id"`
	Name      string           `gorm:"size:120;not null;index" json:"name"`
	Price     decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	IsActive  *bool            `gorm:"not null;default:true" json:"is_active"`
	Recipe    *Recipe          `gorm:"foreignKey:MenuItemId" json:"recipe,omitempty"`
	Modifiers []ModifierOption `gorm:"foreignKey:MenuItemId" json:"modifiers,omitempty"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ModifierOption is a priced add-on offered with a menu item.
type ModifierOption struct {
	ID         int             `gorm:"primary_key" json:"id"`
	MenuItemId int             `gorm:"not null;index" json:"menu_item_id"`
	Name       string          `gorm:"size:80;not null" json:"name"`
	PriceDelta decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price_delta"`
}

// Recipe is the bill of materials of one menu item.
type Recipe struct {
	ID         int               `gorm:"primary_key" json:"id"`
	MenuItemId int               `gorm:"not null;uniqueIndex" json:"menu_item_id"`
	YieldQty   decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:1" json:"yield_qty"`
	Components []RecipeComponent `gorm:"foreignKey:RecipeId;constraint:OnDelete:CASCADE" json:"components"`
}

// RecipeComponent quantities are in the inventory item's base unit.
type RecipeComponent struct {
	ID              int             `gorm:"primary_key" json:"id"`
	RecipeId        int             `gorm:"not null;uniqueIndex:uniq_recipe_component,priority:1" json:"recipe_id"`
	InventoryItemId int             `gorm:"not null;uniqueIndex:uniq_recipe_component,priority:2" json:"inventory_item_id"`
	InventoryItem   *InventoryItem  `gorm:"foreignKey:InventoryItemId" json:"inventory_item,omitempty"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	WastePct        decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"waste_pct"`
}

type NewMenuItem struct {
	Name  string          `json:"name" validate:"required,max=120"`
	Price decimal.Decimal `json:"price"`
}

func CreateMenuItem(tx *gorm.DB, input *NewMenuItem) (*MenuItem, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Price.IsNegative() {
		return nil, apperr.NewValidation("price", "must be zero or greater")
	}
	item := MenuItem{Name: input.Name, Price: input.Price.Round(2), IsActive: utils.NewTrue()}
	if err := tx.Omit(clause.Associations).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

type NewModifierOption struct {
	Name       string          `json:"name" validate:"required,max=80"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

func CreateModifierOption(tx *gorm.DB, menuItemId int, input *NewModifierOption) (*ModifierOption, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if _, err := utils.FetchModel[MenuItem](tx, menuItemId); err != nil {
		return nil, err
	}
	opt := ModifierOption{MenuItemId: menuItemId, Name: input.Name, PriceDelta: input.PriceDelta.Round(2)}
	if err := tx.Create(&opt).Error; err != nil {
		return nil, err
	}
	return &opt, nil
}

type NewRecipeComponent struct {
	InventoryItemId int             `json:"inventory_item_id" validate:"required,gt=0"`
	Qty             decimal.Decimal `json:"qty"`
	WastePct        decimal.Decimal `json:"waste_pct"`
}

type NewRecipe struct {
	YieldQty   decimal.Decimal       `json:"yield_qty"`
	Components []*NewRecipeComponent `json:"components" validate:"dive,required"`
}

var hundredPct = decimal.NewFromInt(100)

func (input *NewRecipe) validate(tx *gorm.DB) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.YieldQty.IsZero() {
		input.YieldQty = decimal.NewFromInt(1)
	}
	if !input.YieldQty.IsPositive() {
		return apperr.NewValidation("yield_qty", "must be greater than zero")
	}
	seen := make(map[int]bool, len(input.Components))
	ids := make([]int, 0, len(input.Components))
	for _, c := range input.Components {
		if seen[c.InventoryItemId] {
			return apperr.NewValidation("components", "inventory item %d listed twice", c.InventoryItemId)
		}
		seen[c.InventoryItemId] = true
		ids = append(ids, c.InventoryItemId)
		if !c.Qty.IsPositive() {
			return apperr.NewValidation("components.qty", "must be greater than zero")
		}
		if c.WastePct.IsNegative() || c.WastePct.GreaterThan(hundredPct) {
			return apperr.NewValidation("components.waste_pct", "must be between 0 and 100")
		}
	}
	if len(ids) > 0 {
		var count int64
		if err := tx.Model(&InventoryItem{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(ids)) {
			return apperr.NewValidation("components", "inventory item not found")
		}
	}
	return nil
}

// SaveRecipe replaces the menu item's recipe with input.
func SaveRecipe(tx *gorm.DB, menuItemId int, input *NewRecipe) (*Recipe, error) {
	if _, err := utils.FetchModel[MenuItem](tx, menuItemId); err != nil {
		return nil, err
	}
	if err := input.validate(tx); err != nil {
		return nil, err
	}

	var recipe Recipe
	err := tx.Where("menu_item_id = ?", menuItemId).First(&recipe).Error
	switch {
	case err == nil:
		if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&RecipeComponent{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&recipe).Update("yield_qty", input.YieldQty).Error; err != nil {
			return nil, err
		}
		recipe.YieldQty = input.YieldQty
	case utils.NotFoundOr(err) == utils.ErrorRecordNotFound:
		recipe = Recipe{MenuItemId: menuItemId, YieldQty: input.YieldQty}
		if err := tx.Omit(clause.Associations).Create(&recipe).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	recipe.Components = make([]RecipeComponent, 0, len(input.Components))
	for _, c := range input.Components {
		comp := RecipeComponent{
			RecipeId:        recipe.ID,
			InventoryItemId: c.InventoryItemId,
			Qty:             c.Qty.Round(4),
			WastePct:        c.WastePct.Round(2),
		}
		if err := tx.Omit(clause.Associations).Create(&comp).Error; err != nil {
			return nil, err
		}
		recipe.Components = append(recipe.Components, comp)
	}
	return &recipe, nil
}
