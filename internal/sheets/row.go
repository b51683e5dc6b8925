package sheets

import (
	"github.com/shopspring/decimal"

	"famfinance/internal/core"
)

// Header is the first row of the ledger sheet.
var Header = []any{"date", "type", "description", "amount_original", "currency", "exchange_rate", "amount_base", "sync_id"}

// Row is the spreadsheet projection of a transaction.
type Row struct {
	Date           core.Date
	Type           core.TransactionType
	Description    string
	AmountOriginal decimal.Decimal
	Currency       string
	ExchangeRate   decimal.Decimal
	AmountBase     decimal.Decimal
	SyncID         string
}

func RowFromTransaction(t core.Transaction) Row {
	return Row{
		Date:           core.DateOf(t.TrxDate),
		Type:           t.Type,
		Description:    t.Description,
		AmountOriginal: t.AmountOriginal,
		Currency:       t.CurrencyCode,
		ExchangeRate:   t.ExchangeRate,
		AmountBase:     t.AmountBase,
		SyncID:         t.SyncID,
	}
}

// Values returns the cells in Header order. Amounts are written as fixed
// decimal strings so the sheet never sees a float.
func (r Row) Values() []any {
	return []any{
		r.Date.String(),
		string(r.Type),
		r.Description,
		r.AmountOriginal.StringFixed(core.MoneyPlaces),
		r.Currency,
		r.ExchangeRate.StringFixed(core.RatePlaces),
		r.AmountBase.StringFixed(core.MoneyPlaces),
		r.SyncID,
	}
}
