package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/models"
)

// ledger-reconcile compares every item's batch total with its stock movement
// journal and exits 2 when any item disagrees.
func main() {
	itemID := flag.Int("item-id", 0, "Optional: only check this inventory item")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	drift, err := models.FindLedgerDrift(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}

	found := 0
	for _, d := range drift {
		if *itemID > 0 && d.InventoryItemId != *itemID {
			continue
		}
		found++
		fmt.Printf("DRIFT item=%d name=%q batches=%s movements=%s diff=%s\n",
			d.InventoryItemId, d.Name, d.BatchTotal.String(), d.MovementTotal.String(), d.BatchTotal.Sub(d.MovementTotal).String())
	}
	if found > 0 {
		fmt.Fprintf(os.Stderr, "%d item(s) out of balance\n", found)
		os.Exit(2)
	}
	fmt.Println("ledger balanced")
}
