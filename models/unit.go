package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/unitconv"
	"github.com/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const conversionEdgesCachePrefix = "unitconv:edges"

// factorScale matches the Factor column; factors needing more places would be
// rounded on write.
const (
	factorScale         int32 = 15
	factorIntegerDigits int32 = 15
)

var (
	readEdgeCache  = config.GetRedisObject
	writeEdgeCache = config.SetRedisObject
)

// Unit is reference data (g, kg, oz, lb, ea, ...).
type Unit struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:10;not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"size:50;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UnitConversion means 1 FromUnit = Factor ToUnit. The inverse is implied.
type UnitConversion struct {
	ID         int             `gorm:"primary_key" json:"id"`
	FromUnitId int             `gorm:"not null;uniqueIndex:uniq_unit_conv,priority:1" json:"from_unit_id"`
	FromUnit   Unit            `gorm:"foreignKey:FromUnitId" json:"-"`
	ToUnitId   int             `gorm:"not null;uniqueIndex:uniq_unit_conv,priority:2" json:"to_unit_id"`
	ToUnit     Unit            `gorm:"foreignKey:ToUnitId" json:"-"`
	Factor     decimal.Decimal `gorm:"type:decimal(30,15);not null" json:"factor"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewUnit struct {
	Code string `json:"code" validate:"required,max=10"`
	Name string `json:"name" validate:"required,max=50"`
}

type NewUnitConversion struct {
	FromCode string          `json:"from" validate:"required"`
	ToCode   string          `json:"to" validate:"required,nefield=FromCode"`
	Factor   decimal.Decimal `json:"factor"`
}

// NormalizeUnitCode is the stored form of a unit code.
func NormalizeUnitCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func CreateUnit(tx *gorm.DB, input *NewUnit) (*Unit, error) {
	input.Code = NormalizeUnitCode(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	unit := Unit{Code: input.Code, Name: input.Name}
	if err := tx.Create(&unit).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, apperr.NewValidation("code", "unit %q already exists", input.Code)
		}
		return nil, err
	}
	return &unit, nil
}

func GetUnitByCode(tx *gorm.DB, code string) (*Unit, error) {
	var unit Unit
	if err := tx.Where("code = ?", NormalizeUnitCode(code)).First(&unit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.ConversionError{Unknown: NormalizeUnitCode(code)}
		}
		return nil, err
	}
	return &unit, nil
}

// CreateUnitConversion registers a factor between two known units. Cached
// graphs are keyed by the conversion table's version, so no invalidation is needed.
func CreateUnitConversion(ctx context.Context, tx *gorm.DB, input *NewUnitConversion) (*UnitConversion, error) {
	tx = tx.WithContext(ctx)
	input.FromCode = NormalizeUnitCode(input.FromCode)
	input.ToCode = NormalizeUnitCode(input.ToCode)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Factor.IsPositive() {
		return nil, apperr.NewValidation("factor", "must be greater than zero")
	}
	if !input.Factor.Equal(input.Factor.Round(factorScale)) {
		return nil, apperr.NewValidation("factor", "at most %d decimal places", factorScale)
	}
	if input.Factor.GreaterThanOrEqual(decimal.New(1, factorIntegerDigits)) {
		return nil, apperr.NewValidation("factor", "at most %d integer digits", factorIntegerDigits)
	}
	from, err := GetUnitByCode(tx, input.FromCode)
	if err != nil {
		return nil, err
	}
	to, err := GetUnitByCode(tx, input.ToCode)
	if err != nil {
		return nil, err
	}

	conv := UnitConversion{FromUnitId: from.ID, ToUnitId: to.ID, Factor: input.Factor}
	if err := tx.Omit(clause.Associations).Create(&conv).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, apperr.NewValidation("from", "conversion %s -> %s already exists", from.Code, to.Code)
		}
		return nil, err
	}
	conv.FromUnit = *from
	conv.ToUnit = *to
	return &conv, nil
}

type conversionVersion struct {
	Count int64
	MaxId int
}

// conversionCacheKey names the cached edge list for the conversions visible to
// tx. Rows are only ever inserted, so count and highest id identify the set; a
// reader that cannot see an uncommitted row writes under the older key.
func conversionCacheKey(tx *gorm.DB) (string, error) {
	var v conversionVersion
	if err := tx.Model(&UnitConversion{}).
		Select("COUNT(*) AS count, COALESCE(MAX(id), 0) AS max_id").
		Scan(&v).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%d", conversionEdgesCachePrefix, v.Count, v.MaxId), nil
}

// LoadConversionGraph builds the unit graph from every stored conversion,
// reading the edge list from Redis when it is cached.
func LoadConversionGraph(ctx context.Context, tx *gorm.DB) (*unitconv.Graph, error) {
	cacheKey, err := conversionCacheKey(tx)
	if err != nil {
		return nil, err
	}
	var edges []unitconv.Edge
	exists, err := readEdgeCache(ctx, cacheKey, &edges)
	if err != nil {
		config.LogWarn(nil, "Models", "LoadConversionGraph", "read conversion cache", nil, err)
	}
	if exists {
		return unitconv.Build(edges), nil
	}

	var conversions []UnitConversion
	if err := tx.Preload("FromUnit").Preload("ToUnit").Order("id").Find(&conversions).Error; err != nil {
		return nil, err
	}
	edges = make([]unitconv.Edge, 0, len(conversions))
	for _, c := range conversions {
		edges = append(edges, unitconv.Edge{From: c.FromUnit.Code, To: c.ToUnit.Code, Factor: c.Factor})
	}
	if err := writeEdgeCache(ctx, cacheKey, edges, time.Hour); err != nil {
		config.LogWarn(nil, "Models", "LoadConversionGraph", "write conversion cache", nil, err)
	}
	return unitconv.Build(edges), nil
}

// ConvertToBaseQty normalises a counted or received quantity into baseUnitCode.
// An empty unitCode means the value is already in the base unit.
func ConvertToBaseQty(graph *unitconv.Graph, value decimal.Decimal, unitCode string, baseUnitCode string) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, apperr.NewValidation("qty", "must be zero or greater")
	}
	unitCode = NormalizeUnitCode(unitCode)
	if unitCode == "" {
		unitCode = baseUnitCode
	}
	return graph.ConvertQuantity(value, unitCode, baseUnitCode)
}
