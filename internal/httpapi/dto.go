package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgertree/ledgertree/internal/ledger"
)

type postAccountRequest struct {
	ParentID   *uuid.UUID         `json:"parent_id,omitempty"`
	Code       string             `json:"code"`
	Name       string             `json:"name"`
	Type       ledger.AccountType `json:"type"`
	Currencies []string           `json:"currencies,omitempty"`
}

type moveAccountRequest struct {
	NewParentID *uuid.UUID `json:"new_parent_id"`
}

type accountResponse struct {
	ID         uuid.UUID          `json:"id"`
	ParentID   *uuid.UUID         `json:"parent_id,omitempty"`
	Code       string             `json:"code"`
	FullCode   string             `json:"full_code"`
	Name       string             `json:"name"`
	Type       ledger.AccountType `json:"type"`
	Currencies []string           `json:"currencies,omitempty"`
	Depth      int                `json:"depth"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	resp := accountResponse{
		ID:         a.ID,
		Code:       a.Code,
		FullCode:   a.FullCode,
		Name:       a.Name,
		Type:       a.Type,
		Currencies: a.Currencies,
		Depth:      a.Depth,
	}
	if a.ParentID != uuid.Nil {
		p := a.ParentID
		resp.ParentID = &p
	}
	return resp
}

type postTransactionRequest struct {
	Date        time.Time        `json:"date"`
	Description string           `json:"description"`
	Legs        []postLegRequest `json:"legs"`
}

type postLegRequest struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Description string          `json:"description,omitempty"`
}

type reverseTransactionRequest struct {
	// Date defaults to now when omitted.
	Date *time.Time `json:"date,omitempty"`
}

type transactionResponse struct {
	ID            uuid.UUID     `json:"id"`
	CorrelationID uuid.UUID     `json:"correlation_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Date          time.Time     `json:"date"`
	Description   string        `json:"description"`
	Legs          []legResponse `json:"legs"`
}

type legResponse struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:            t.ID,
		CorrelationID: t.CorrelationID,
		Timestamp:     t.Timestamp,
		Date:          t.Date,
		Description:   t.Description,
		Legs:          make([]legResponse, 0, len(t.Legs)),
	}
	for _, leg := range t.Legs {
		resp.Legs = append(resp.Legs, legResponse{
			ID:          leg.ID,
			AccountID:   leg.AccountID,
			Amount:      leg.Amount.Value,
			Currency:    leg.Amount.Currency,
			Description: leg.Description,
		})
	}
	return resp
}

type balanceResponse struct {
	AccountID uuid.UUID                  `json:"account_id"`
	AsOf      *time.Time                 `json:"as_of,omitempty"`
	Balances  map[string]decimal.Decimal `json:"balances"`
	// Display mirrors Balances with the account-type sign convention
	// applied. Stored sums are uniformly signed (debit positive).
	Display map[string]decimal.Decimal `json:"display"`
}

type ledgerEntryResponse struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Balance       decimal.Decimal `json:"balance"`
}

type ledgerResponse struct {
	AccountID uuid.UUID             `json:"account_id"`
	Currency  string                `json:"currency"`
	Entries   []ledgerEntryResponse `json:"entries"`
}
