package ledger

import (
	"strings"

	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/ledgertree/ledgertree/internal/errs"
)

// Amount is a signed decimal value tagged with an ISO 4217 currency code.
// Arithmetic is exact; there is no floating-point rounding tolerance
// anywhere in the ledger.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// NewAmount validates the currency code against the ISO 4217 registry and
// normalizes it to upper case.
func NewAmount(value decimal.Decimal, currency string) (Amount, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: value, Currency: code}, nil
}

// MustAmount is a test and seed helper; it panics on an unknown currency.
func MustAmount(value string, currency string) Amount {
	a, err := NewAmount(decimal.RequireFromString(value), currency)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether the amount's value is exactly zero.
func (a Amount) IsZero() bool { return a.Value.IsZero() }

// Neg returns the amount with its sign flipped, e.g. to build a reversing leg.
func (a Amount) Neg() Amount { return Amount{Value: a.Value.Neg(), Currency: a.Currency} }

func (a Amount) String() string { return a.Value.String() + " " + a.Currency }

// NormalizeCurrency upper-cases code and rejects anything outside the
// ISO 4217 registry.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := money.ParseCurr(code); err != nil {
		return "", errs.Validation("currency", "unknown currency code "+strings.ToLower(code))
	}
	return code, nil
}

// CurrencyScale returns the ISO minor-unit scale for a valid currency code,
// e.g. 2 for USD, 0 for JPY. Used for display defaults only; stored values
// keep whatever precision the configuration allows.
func CurrencyScale(code string) (int, error) {
	curr, err := money.ParseCurr(code)
	if err != nil {
		return 0, errs.Validation("currency", "unknown currency code "+strings.ToLower(code))
	}
	return curr.Scale(), nil
}
