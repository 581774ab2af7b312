package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgertree/ledgertree/internal/errs"
)

func TestNewAmount_NormalizesCurrency(t *testing.T) {
	a, err := NewAmount(decimal.RequireFromString("12.50"), "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", a.Currency)
	assert.Equal(t, "12.5 USD", a.String())
}

func TestNewAmount_UnknownCurrency(t *testing.T) {
	_, err := NewAmount(decimal.NewFromInt(1), "XXX999")
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestAmount_Neg(t *testing.T) {
	a := MustAmount("100.00", "EUR")
	n := a.Neg()
	assert.True(t, a.Value.Add(n.Value).IsZero())
	assert.Equal(t, "EUR", n.Currency)
}

func TestCurrencyScale(t *testing.T) {
	usd, err := CurrencyScale("USD")
	require.NoError(t, err)
	assert.Equal(t, 2, usd)
	jpy, err := CurrencyScale("JPY")
	require.NoError(t, err)
	assert.Equal(t, 0, jpy)
}

func TestAccount_AllowsCurrency(t *testing.T) {
	unrestricted := Account{}
	assert.True(t, unrestricted.AllowsCurrency("USD"))

	restricted := Account{Currencies: []string{"EUR", "GBP"}}
	assert.True(t, restricted.AllowsCurrency("EUR"))
	assert.True(t, restricted.AllowsCurrency("gbp"))
	assert.False(t, restricted.AllowsCurrency("USD"))
}

func TestAccountType_DisplaySign(t *testing.T) {
	assert.Equal(t, 1, AccountTypeAsset.DisplaySign())
	assert.Equal(t, 1, AccountTypeExpense.DisplaySign())
	assert.Equal(t, -1, AccountTypeLiability.DisplaySign())
	assert.Equal(t, -1, AccountTypeEquity.DisplaySign())
	assert.Equal(t, -1, AccountTypeIncome.DisplaySign())
}
