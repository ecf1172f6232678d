package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/payment"
	"github.com/mmdatafocus/pos_backend/workflow"
)

// payment-webhook-replay feeds a captured Stripe webhook delivery back through
// the reconciler, e.g. after an outage dropped it. Re-running it is safe.
func main() {
	bodyPath := flag.String("body", "", "Required: file holding the raw request body")
	signature := flag.String("signature", "", "Required: the Stripe-Signature header of the delivery")
	flag.Parse()

	if strings.TrimSpace(*bodyPath) == "" || strings.TrimSpace(*signature) == "" {
		fmt.Fprintln(os.Stderr, "--body and --signature are required")
		os.Exit(1)
	}
	body, err := os.ReadFile(*bodyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read body: %v\n", err)
		os.Exit(1)
	}

	settings := config.LoadSettings()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	provider := payment.NewStripeProvider(settings.StripeSecretKey)
	outcome, err := workflow.HandleWebhook(context.Background(), db, provider, config.GetLogger(), body, *signature, settings.StripeWebhookSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("outcome=%s\n", outcome)
}
