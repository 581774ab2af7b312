// Package config carries the explicit ledger configuration that callers pass
// into the core services. Nothing here is process-global; two ledgers with
// different precision settings can coexist in one process.
package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ledgertree/ledgertree/internal/errs"
	"github.com/ledgertree/ledgertree/internal/ledger"
)

const (
	DefaultMaxDigits     = 13
	DefaultDecimalPlaces = 2
)

// Config bounds leg amounts and supplies the currency used when a caller
// posts a leg without one.
type Config struct {
	// DefaultCurrency is applied to legs posted with an empty currency code.
	DefaultCurrency string
	// MaxDigits caps the total number of significant digits in a leg amount.
	MaxDigits int
	// DecimalPlaces caps the number of fractional digits in a leg amount.
	DecimalPlaces int
}

// Default returns the configuration used when the environment specifies
// nothing: EUR, 13 digits, 2 decimal places.
func Default() Config {
	return Config{DefaultCurrency: "EUR", MaxDigits: DefaultMaxDigits, DecimalPlaces: DefaultDecimalPlaces}
}

// FromEnv builds a Config from LEDGER_DEFAULT_CURRENCY, LEDGER_MAX_DIGITS and
// LEDGER_DECIMAL_PLACES, falling back to Default for unset variables.
func FromEnv() (Config, error) {
	cfg := Default()
	if v := os.Getenv("LEDGER_DEFAULT_CURRENCY"); v != "" {
		cfg.DefaultCurrency = v
	}
	if v := os.Getenv("LEDGER_MAX_DIGITS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errs.Validation("LEDGER_MAX_DIGITS", "not an integer")
		}
		cfg.MaxDigits = n
	}
	if v := os.Getenv("LEDGER_DECIMAL_PLACES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errs.Validation("LEDGER_DECIMAL_PLACES", "not an integer")
		}
		cfg.DecimalPlaces = n
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks internal consistency and that the default currency exists.
func (c Config) Validate() error {
	if _, err := ledger.NormalizeCurrency(c.DefaultCurrency); err != nil {
		return err
	}
	if c.MaxDigits <= 0 {
		return errs.Validation("max_digits", "must be positive")
	}
	if c.DecimalPlaces < 0 || c.DecimalPlaces >= c.MaxDigits {
		return errs.Validation("decimal_places", "must be in [0, max_digits)")
	}
	return nil
}

// CheckAmount rejects values that exceed the configured precision. The value
// is never silently rounded; a caller posting 1.005 with two decimal places
// configured gets a validation error back.
func (c Config) CheckAmount(v decimal.Decimal) error {
	if int(-v.Exponent()) > c.DecimalPlaces {
		return errs.Validation("amount", "more than "+strconv.Itoa(c.DecimalPlaces)+" decimal places")
	}
	digits := len(v.Coefficient().String())
	if v.Sign() < 0 {
		digits--
	}
	// A positive exponent adds trailing integer digits the coefficient
	// doesn't carry: 1e50 is one coefficient digit but 51 significant ones.
	if exp := int(v.Exponent()); exp > 0 {
		digits += exp
	}
	if digits > c.MaxDigits {
		return errs.Validation("amount", "more than "+strconv.Itoa(c.MaxDigits)+" digits")
	}
	return nil
}
