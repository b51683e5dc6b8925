package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
	"famfinance/internal/storage"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// TransactionInput carries the client fields of a new transaction.
type TransactionInput struct {
	CategoryID     *int64
	AmountOriginal decimal.Decimal
	CurrencyCode   string
	// ExchangeRate zero selects the current rate to the base currency.
	ExchangeRate decimal.Decimal
	// TrxDate zero means now.
	TrxDate     time.Time
	Type        core.TransactionType
	Description string
	IsInvoiced  bool
	SyncID      string
}

// TransactionPatch lists the fields to change; nil fields are kept.
type TransactionPatch struct {
	CategoryID     *int64
	AmountOriginal *decimal.Decimal
	CurrencyCode   *string
	ExchangeRate   *decimal.Decimal
	TrxDate        *time.Time
	Type           *core.TransactionType
	Description    *string
	IsInvoiced     *bool
}

// changesMoney reports whether the patch alters amount, currency, rate or type.
func (p TransactionPatch) changesMoney(t core.Transaction) bool {
	switch {
	case p.AmountOriginal != nil && !core.RoundMoney(*p.AmountOriginal).Equal(t.AmountOriginal):
		return true
	case p.CurrencyCode != nil && core.NormalizeCurrency(*p.CurrencyCode) != t.CurrencyCode:
		return true
	case p.ExchangeRate != nil && !core.RoundRate(*p.ExchangeRate).Equal(t.ExchangeRate):
		return true
	case p.Type != nil && *p.Type != t.Type:
		return true
	}
	return false
}

// Dashboard is the all-time summary plus the transaction count.
type Dashboard struct {
	Summary           core.Summary `json:"summary"`
	TransactionsCount int          `json:"recent_transactions_count"`
}

// LedgerService owns the transaction log.
type LedgerService struct {
	store Store
	rates RateSource
	opts  options
}

func NewLedgerService(store Store, rates RateSource, opts ...Option) *LedgerService {
	return &LedgerService{store: store, rates: rates, opts: buildOptions(opts)}
}

// Create validates and stores a transaction. A repeated sync id is a
// conflict.
func (s *LedgerService) Create(ctx context.Context, familyID, userID string, in TransactionInput) (core.Transaction, error) {
	t := core.Transaction{
		FamilyID:       familyID,
		UserID:         userID,
		CategoryID:     in.CategoryID,
		AmountOriginal: core.RoundMoney(in.AmountOriginal),
		CurrencyCode:   core.NormalizeCurrency(in.CurrencyCode),
		ExchangeRate:   core.RoundRate(in.ExchangeRate),
		TrxDate:        in.TrxDate,
		Type:           in.Type,
		Description:    strings.TrimSpace(in.Description),
		IsInvoiced:     in.IsInvoiced,
		SyncID:         strings.TrimSpace(in.SyncID),
	}
	if t.CurrencyCode == "" {
		t.CurrencyCode = baseCurrency(s.rates)
	}
	if t.ExchangeRate.IsZero() {
		t.ExchangeRate = defaultRate(s.rates, t.CurrencyCode)
	}
	if t.TrxDate.IsZero() {
		t.TrxDate = s.opts.now()
	}

	q := s.store.Queries()
	if err := checkCategory(ctx, q, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	created, err := insertTransaction(ctx, q, t)
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"family_id", familyID,
		"transaction_id", created.ID,
		"type", created.Type,
		"amount_base", created.AmountBase.String())

	s.opts.publish(ctx, amqp.EventCreated, familyID, created.ID, created.SyncID)
	if created.Type == core.TypeExpense && created.CategoryID != nil {
		s.checkBudgetAlert(ctx, created)
	}
	return created, nil
}

// insertTransaction computes amount_base and writes t through q.
func insertTransaction(ctx context.Context, q *storage.Queries, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.AmountBase = core.BaseAmount(t.AmountOriginal, t.ExchangeRate)
	created, err := q.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return created, nil
}

func checkCategory(ctx context.Context, q *storage.Queries, id *int64) error {
	if id == nil {
		return nil
	}
	if _, err := q.GetCategory(ctx, *id); err != nil {
		if errors.Is(err, core.ErrCategoryNotFound) {
			return core.Validationf("category %d does not exist", *id)
		}
		return fmt.Errorf("get category: %w", err)
	}
	return nil
}

func (s *LedgerService) Get(ctx context.Context, familyID, id string) (core.Transaction, error) {
	return s.store.Queries().GetTransaction(ctx, familyID, id)
}

// Update applies patch. amount_base is always recomputed from the resulting
// amount and rate. Rows written by a debt payment keep their money fields so
// the debt balance stays reversible.
func (s *LedgerService) Update(ctx context.Context, familyID, id string, patch TransactionPatch) (core.Transaction, error) {
	q := s.store.Queries()
	t, err := q.GetTransaction(ctx, familyID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.DebtID != "" && patch.changesMoney(t) {
		return core.Transaction{}, core.ErrDebtPaymentLocked
	}

	if patch.CategoryID != nil {
		if err := checkCategory(ctx, q, patch.CategoryID); err != nil {
			return core.Transaction{}, err
		}
		t.CategoryID = patch.CategoryID
	}
	if patch.AmountOriginal != nil {
		t.AmountOriginal = core.RoundMoney(*patch.AmountOriginal)
	}
	if patch.CurrencyCode != nil {
		t.CurrencyCode = core.NormalizeCurrency(*patch.CurrencyCode)
	}
	if patch.ExchangeRate != nil {
		t.ExchangeRate = core.RoundRate(*patch.ExchangeRate)
	}
	if patch.TrxDate != nil {
		t.TrxDate = *patch.TrxDate
	}
	if patch.Type != nil {
		t.Type = *patch.Type
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.IsInvoiced != nil {
		t.IsInvoiced = *patch.IsInvoiced
	}

	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.AmountBase = core.BaseAmount(t.AmountOriginal, t.ExchangeRate)

	updated, err := q.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	s.opts.publish(ctx, amqp.EventUpdated, familyID, updated.ID, updated.SyncID)
	return updated, nil
}

// Delete removes a transaction and reverses the business event that created
// it: a debt payment restores the debt balance, a recurring execution moves
// the schedule back one period.
func (s *LedgerService) Delete(ctx context.Context, familyID, id string) error {
	var deleted core.Transaction
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		t, err := q.GetTransaction(ctx, familyID, id)
		if err != nil {
			return err
		}
		deleted = t

		if t.Type == core.TypeDebt && t.DebtID != "" {
			if err := reverseDebtPayment(ctx, q, t, s.opts.now()); err != nil {
				return err
			}
		}
		if t.Type == core.TypeExpense && t.RecurringExpenseID != "" {
			if err := reverseRecurringExecution(ctx, q, t); err != nil {
				return err
			}
		}
		return q.DeleteTransaction(ctx, familyID, id)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"family_id", familyID,
		"transaction_id", id,
		"type", deleted.Type)
	s.opts.publish(ctx, amqp.EventDeleted, familyID, deleted.ID, deleted.SyncID)
	return nil
}

func reverseDebtPayment(ctx context.Context, q *storage.Queries, t core.Transaction, now time.Time) error {
	debt, err := q.GetDebt(ctx, t.FamilyID, t.DebtID)
	if errors.Is(err, core.ErrDebtNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load debt for reversal: %w", err)
	}

	balance := debt.CurrentBalance.Add(t.AmountOriginal)
	archived := debt.IsArchived && !balance.IsPositive()
	if err := q.SetDebtBalance(ctx, debt.ID, balance, archived); err != nil {
		return err
	}
	_, err = q.CreateDebtPayment(ctx, core.DebtPayment{
		DebtID:       debt.ID,
		Amount:       t.AmountOriginal.Neg(),
		PaymentDate:  core.DateOf(now),
		Notes:        "Reversal of deleted transaction " + t.ID,
		IsAdjustment: true,
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Debt payment reversed",
		"debt_id", debt.ID,
		"transaction_id", t.ID,
		"new_balance", balance.String(),
		"archived", archived)
	return nil
}

func reverseRecurringExecution(ctx context.Context, q *storage.Queries, t core.Transaction) error {
	re, err := q.GetRecurring(ctx, t.FamilyID, t.RecurringExpenseID)
	if errors.Is(err, core.ErrRecurringNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recurring expense for reversal: %w", err)
	}

	prev, err := RevertDueDate(re.NextDueDate, re.Frequency)
	if err != nil {
		return err
	}
	if err := q.SetRecurringSchedule(ctx, re.ID, prev, core.Date{}); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Recurring execution reversed",
		"recurring_id", re.ID,
		"transaction_id", t.ID,
		"next_due_date", prev.String())
	return nil
}

// List returns one page of transactions. page starts at 1; size defaults to
// DefaultPageSize and is capped at MaxPageSize.
func (s *LedgerService) List(ctx context.Context, familyID string, f storage.TransactionFilter, page, size int) (Page[core.Transaction], error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	f.CurrencyCode = core.NormalizeCurrency(f.CurrencyCode)
	f.Search = strings.TrimSpace(f.Search)

	items, total, err := s.store.Queries().ListTransactions(ctx, familyID, f, page, size)
	if err != nil {
		return Page[core.Transaction]{}, err
	}
	return newPage(items, total, page, size), nil
}

// Summary totals amount_base per type. Nil bounds are open.
func (s *LedgerService) Summary(ctx context.Context, familyID string, from, to *time.Time, categoryID *int64) (core.Summary, error) {
	totals, err := s.store.Queries().SumByType(ctx, familyID, from, to, categoryID)
	if err != nil {
		return core.Summary{}, err
	}
	return core.NewSummary(totals, baseCurrency(s.rates)), nil
}

// SummaryWithComparison compares [from, to] with the preceding window of the
// same length.
func (s *LedgerService) SummaryWithComparison(ctx context.Context, familyID string, from, to time.Time) (core.Comparison, error) {
	if to.Before(from) {
		return core.Comparison{}, core.Validationf("date_to must not be before date_from")
	}
	cur, err := s.Summary(ctx, familyID, &from, &to, nil)
	if err != nil {
		return core.Comparison{}, err
	}
	prevFrom, prevTo := core.PreviousWindow(from, to)
	prev, err := s.Summary(ctx, familyID, &prevFrom, &prevTo, nil)
	if err != nil {
		return core.Comparison{}, err
	}

	c := core.NewComparison(cur, prev)
	c.CurrentFrom, c.CurrentTo = from, to
	c.PreviousFrom, c.PreviousTo = prevFrom, prevTo
	return c, nil
}

// MemberSummary splits INCOME and EXPENSE by user.
func (s *LedgerService) MemberSummary(ctx context.Context, familyID string, from, to *time.Time) ([]core.MemberSummary, error) {
	rows, err := s.store.Queries().SumByMember(ctx, familyID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]core.MemberSummary, 0, len(rows))
	for _, r := range rows {
		name := core.UnassignedMember
		if r.UserID != "" {
			name = core.User{Name: r.Name, Email: r.Email}.DisplayName()
		}
		out = append(out, core.MemberSummary{
			UserID:           r.UserID,
			Name:             name,
			Income:           r.Income,
			Expense:          r.Expense,
			Balance:          r.Income.Sub(r.Expense),
			TransactionCount: r.Count,
		})
	}
	return out, nil
}

func (s *LedgerService) Dashboard(ctx context.Context, familyID string) (Dashboard, error) {
	summary, err := s.Summary(ctx, familyID, nil, nil, nil)
	if err != nil {
		return Dashboard{}, err
	}
	n, err := s.store.Queries().CountTransactions(ctx, familyID)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Summary: summary, TransactionsCount: n}, nil
}

// SetAttachment stores the attachment urls returned by the file store.
func (s *LedgerService) SetAttachment(ctx context.Context, familyID, id, url, thumbURL string) (core.Transaction, error) {
	q := s.store.Queries()
	if err := q.SetAttachment(ctx, familyID, id, url, thumbURL); err != nil {
		return core.Transaction{}, err
	}
	return q.GetTransaction(ctx, familyID, id)
}

// checkBudgetAlert notifies when t moves its category budget into alert.
func (s *LedgerService) checkBudgetAlert(ctx context.Context, t core.Transaction) {
	q := s.store.Queries()
	budget, err := q.GetBudgetByCategory(ctx, t.FamilyID, *t.CategoryID)
	if err != nil {
		if !errors.Is(err, core.ErrBudgetNotFound) {
			slog.WarnContext(ctx, "Budget lookup failed", "category_id", *t.CategoryID, "error", err)
		}
		return
	}
	status, err := budgetStatus(ctx, q, budget, core.DateOf(t.TrxDate))
	if err != nil {
		slog.WarnContext(ctx, "Budget status failed", "budget_id", budget.ID, "error", err)
		return
	}
	before := core.NewBudgetStatus(budget, status.CategoryName, status.AsOf, status.Spent.Sub(t.AmountBase))
	if !status.IsAlertTriggered || before.IsAlertTriggered {
		return
	}
	s.opts.notify(ctx, amqp.Notification{
		Kind:     amqp.NotifyBudgetAlert,
		FamilyID: t.FamilyID,
		Subject:  "Budget alert: " + status.CategoryName,
		Body: fmt.Sprintf("%s%% of the %s budget for %s is used (%s of %s).",
			status.PercentageUsed.StringFixed(2), strings.ToLower(string(budget.Period)),
			status.CategoryName, status.Spent.StringFixed(2), budget.BudgetAmount.StringFixed(2)),
	})
}
