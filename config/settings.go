package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency             = "usd"
	DefaultMaxTipCents    int64 = 500000
	DefaultNoteMaxLen           = 500
	DefaultAlertDays            = 7
	DefaultPaymentTimeout       = 10 * time.Second
)

// Settings are the pricing and inventory knobs read from the environment.
type Settings struct {
	TaxRate             decimal.Decimal
	Currency            string
	MaxTipCents         int64
	PaymentTimeout      time.Duration
	NoteMaxLen          int
	ExpirationAlertDays int
	// DepletionPolicy is "LIFO" (default) or "FEFO".
	DepletionPolicy     string
	StripeSecretKey     string
	StripeWebhookSecret string
}

// LoadSettings reads Settings from env. Malformed values fall back to defaults.
//
// Env:
// - TAX_RATE (decimal fraction, e.g. 0.08875; default 0)
// - PAYMENT_CURRENCY (default usd)
// - MAX_TIP_CENTS (default 500000)
// - PAYMENT_TIMEOUT_SECONDS (default 10)
// - NOTE_MAX_LEN (default 500)
// - INVENTORY_EXPIRATION_ALERT_DAYS (default 7)
// - INVENTORY_DEPLETION_POLICY (LIFO|FEFO)
func LoadSettings() Settings {
	s := Settings{
		TaxRate:             decimal.Zero,
		Currency:            DefaultCurrency,
		MaxTipCents:         DefaultMaxTipCents,
		PaymentTimeout:      DefaultPaymentTimeout,
		NoteMaxLen:          DefaultNoteMaxLen,
		ExpirationAlertDays: DefaultAlertDays,
		DepletionPolicy:     "LIFO",
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	}

	if raw := strings.TrimSpace(os.Getenv("TAX_RATE")); raw != "" {
		if rate, err := decimal.NewFromString(raw); err == nil && !rate.IsNegative() {
			s.TaxRate = rate
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("PAYMENT_CURRENCY"))); raw != "" {
		s.Currency = raw
	}
	if raw := strings.TrimSpace(os.Getenv("MAX_TIP_CENTS")); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			s.MaxTipCents = n
		}
	}
	if secs := intFromEnv("PAYMENT_TIMEOUT_SECONDS", 0); secs > 0 {
		s.PaymentTimeout = time.Duration(secs) * time.Second
	}
	if n := intFromEnv("NOTE_MAX_LEN", 0); n > 0 {
		s.NoteMaxLen = n
	}
	if n := intFromEnv("INVENTORY_EXPIRATION_ALERT_DAYS", -1); n >= 0 {
		s.ExpirationAlertDays = n
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("INVENTORY_DEPLETION_POLICY")), "FEFO") {
		s.DepletionPolicy = "FEFO"
	}
	return s
}
