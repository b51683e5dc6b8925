package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnassignedMember labels ledger rows that carry no user.
const UnassignedMember = "Unassigned"

// Summary is the per-type rollup of amount_base over a window.
type Summary struct {
	Income   decimal.Decimal `json:"income"`
	Expense  decimal.Decimal `json:"expense"`
	Debt     decimal.Decimal `json:"debt"`
	Saving   decimal.Decimal `json:"saving"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// NewSummary seeds every type with zero. Debt movements are excluded from the balance.
func NewSummary(totals map[TransactionType]decimal.Decimal, currency string) Summary {
	s := Summary{
		Income:   totals[TypeIncome],
		Expense:  totals[TypeExpense],
		Debt:     totals[TypeDebt],
		Saving:   totals[TypeSaving],
		Currency: currency,
	}
	s.Balance = s.Income.Sub(s.Expense).Sub(s.Saving)
	return s
}

type Comparison struct {
	Current       Summary         `json:"current"`
	Previous      Summary         `json:"previous"`
	CurrentFrom   time.Time       `json:"current_from"`
	CurrentTo     time.Time       `json:"current_to"`
	PreviousFrom  time.Time       `json:"previous_from"`
	PreviousTo    time.Time       `json:"previous_to"`
	IncomeChange  decimal.Decimal `json:"income_change_pct"`
	ExpenseChange decimal.Decimal `json:"expense_change_pct"`
	SavingsRate   decimal.Decimal `json:"savings_rate"`
}

// PreviousWindow returns the window of identical duration that ends one
// second before from.
func PreviousWindow(from, to time.Time) (time.Time, time.Time) {
	prevTo := from.Add(-time.Second)
	return prevTo.Add(-to.Sub(from)), prevTo
}

func NewComparison(cur, prev Summary) Comparison {
	return Comparison{
		Current:       cur,
		Previous:      prev,
		IncomeChange:  PercentChange(cur.Income, prev.Income),
		ExpenseChange: PercentChange(cur.Expense, prev.Expense),
		SavingsRate:   SavingsRate(cur.Income, cur.Expense),
	}
}

// PercentChange is (cur − prev) / prev × 100, 0 when prev is 0.
func PercentChange(cur, prev decimal.Decimal) decimal.Decimal {
	return Percentage(cur.Sub(prev), prev)
}

// SavingsRate is (income − expense) / income × 100, 0 when income is 0.
func SavingsRate(income, expense decimal.Decimal) decimal.Decimal {
	return Percentage(income.Sub(expense), income)
}

type MemberSummary struct {
	UserID           string          `json:"user_id,omitempty"`
	Name             string          `json:"name"`
	Income           decimal.Decimal `json:"income"`
	Expense          decimal.Decimal `json:"expense"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transaction_count"`
}

type DebtSummary struct {
	TotalDebts       int                        `json:"total_debts"`
	TotalBalanceBase decimal.Decimal            `json:"total_balance_base"`
	ByType           map[string]decimal.Decimal `json:"by_type"`
	ByCurrency       map[string]decimal.Decimal `json:"by_currency"`
	Currency         string                     `json:"currency"`
}

// SummarizeDebts totals non-archived debts. ByType is converted to base
// with each debt's fixed rate, ByCurrency is a raw per-currency sum.
func SummarizeDebts(debts []Debt, baseCurrency string) DebtSummary {
	s := DebtSummary{
		TotalBalanceBase: decimal.Zero,
		ByType:           map[string]decimal.Decimal{},
		ByCurrency:       map[string]decimal.Decimal{},
		Currency:         baseCurrency,
	}
	for _, d := range debts {
		if d.IsArchived {
			continue
		}
		base := BaseAmount(d.CurrentBalance, d.ExchangeRateFixed)
		s.TotalDebts++
		s.TotalBalanceBase = s.TotalBalanceBase.Add(base)
		s.ByType[string(d.DebtType)] = s.ByType[string(d.DebtType)].Add(base)
		s.ByCurrency[d.CurrencyCode] = s.ByCurrency[d.CurrencyCode].Add(d.CurrentBalance)
	}
	return s
}

type BudgetStatus struct {
	Budget           CategoryBudget  `json:"budget"`
	CategoryName     string          `json:"category_name"`
	PeriodStart      Date            `json:"period_start"`
	AsOf             Date            `json:"as_of"`
	Spent            decimal.Decimal `json:"spent"`
	Remaining        decimal.Decimal `json:"remaining"`
	PercentageUsed   decimal.Decimal `json:"percentage_used"`
	IsOverBudget     bool            `json:"is_over_budget"`
	IsAlertTriggered bool            `json:"is_alert_triggered"`
}

// PeriodStart returns the Monday of asOf's week or the first of its month.
func PeriodStart(period BudgetPeriod, asOf Date) Date {
	if period == PeriodWeekly {
		return asOf.StartOfWeek()
	}
	return asOf.FirstOfMonth()
}

// NewBudgetStatus derives the status from the amount spent in the window.
func NewBudgetStatus(b CategoryBudget, categoryName string, asOf Date, spent decimal.Decimal) BudgetStatus {
	pct := Percentage(spent, b.BudgetAmount)
	return BudgetStatus{
		Budget:           b,
		CategoryName:     categoryName,
		PeriodStart:      PeriodStart(b.Period, asOf),
		AsOf:             asOf,
		Spent:            spent,
		Remaining:        b.BudgetAmount.Sub(spent),
		PercentageUsed:   pct,
		IsOverBudget:     spent.GreaterThan(b.BudgetAmount),
		IsAlertTriggered: pct.GreaterThanOrEqual(decimal.NewFromInt(int64(b.AlertThreshold))),
	}
}
