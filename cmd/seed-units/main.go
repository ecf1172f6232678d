package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var standardUnits = []models.NewUnit{
	{Code: "g", Name: "Gram"},
	{Code: "kg", Name: "Kilogram"},
	{Code: "oz", Name: "Ounce"},
	{Code: "lb", Name: "Pound"},
	{Code: "ea", Name: "Each"},
}

var standardConversions = []struct {
	from, to, factor string
}{
	{"kg", "g", "1000"},
	{"lb", "g", "453.592"},
	{"lb", "oz", "16"},
	{"oz", "g", "28.3495"},
}

func main() {
	migrate := flag.Bool("migrate", false, "Run table migrations before seeding")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if err := config.ConnectRedisWithRetry(ctx, 3); err != nil {
		fmt.Fprintf(os.Stderr, "redis unavailable, conversion cache not cleared: %v\n", err)
	}
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
			os.Exit(1)
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, u := range standardUnits {
			u := u
			if _, err := models.GetUnitByCode(tx, u.Code); err == nil {
				continue
			} else if !apperr.IsConversion(err) {
				return err
			}
			if _, err := models.CreateUnit(tx, &u); err != nil {
				return err
			}
			fmt.Printf("unit %s created\n", u.Code)
		}
		for _, c := range standardConversions {
			_, err := models.CreateUnitConversion(ctx, tx, &models.NewUnitConversion{
				FromCode: c.from,
				ToCode:   c.to,
				Factor:   decimal.RequireFromString(c.factor),
			})
			var ve *apperr.ValidationError
			if errors.As(err, &ve) {
				// already seeded
				continue
			}
			if err != nil {
				return err
			}
			fmt.Printf("conversion 1 %s = %s %s created\n", c.from, c.factor, c.to)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	graph, err := models.LoadConversionGraph(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load graph: %v\n", err)
		os.Exit(1)
	}
	issues := graph.Validate()
	for _, is := range issues {
		fmt.Printf("INCONSISTENT %s -> %s: %s vs %s\n", is.From, is.To, is.Factor.String(), is.Conflict.String())
	}
	if len(issues) > 0 {
		os.Exit(2)
	}
	fmt.Println("units seeded")
}
