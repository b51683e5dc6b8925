package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
	"famfinance/internal/storage"
)

type RecurringInput struct {
	CategoryID   *int64
	Name         string
	Description  string
	Amount       decimal.Decimal
	CurrencyCode string
	Frequency    core.Frequency
	NextDueDate  core.Date
	IsAutomatic  bool
}

type RecurringPatch struct {
	CategoryID   *int64
	Name         *string
	Description  *string
	Amount       *decimal.Decimal
	CurrencyCode *string
	Frequency    *core.Frequency
	NextDueDate  *core.Date
	IsAutomatic  *bool
	IsActive     *bool
}

// ExecutionResult is the transaction written by one execution and the
// schedule after it.
type ExecutionResult struct {
	Transaction core.Transaction      `json:"transaction"`
	Recurring   core.RecurringExpense `json:"recurring"`
}

// AutoExecuteResult counts the expenses executed and the transactions
// written; an expense that was several periods behind writes several.
type AutoExecuteResult struct {
	ExecutedCount       int                `json:"executed_count"`
	TransactionsCreated int                `json:"transactions_created"`
	Transactions        []core.Transaction `json:"-"`
}

// OverdueConversion describes one expense handled by ConvertOverdueToDebts.
type OverdueConversion struct {
	RecurringID string    `json:"recurring_id"`
	Name        string    `json:"name"`
	Periods     int       `json:"periods"`
	DebtID      string    `json:"debt_id,omitempty"`
	NextDueDate core.Date `json:"next_due_date"`
}

type OverdueResult struct {
	DebtsCreated     int                 `json:"debts_created"`
	ExpensesAdvanced int                 `json:"expenses_advanced"`
	Conversions      []OverdueConversion `json:"conversions,omitempty"`
}

// RecurringService runs the recurring expense schedule.
type RecurringService struct {
	store Store
	rates RateSource
	opts  options
}

func NewRecurringService(store Store, rates RateSource, opts ...Option) *RecurringService {
	return &RecurringService{store: store, rates: rates, opts: buildOptions(opts)}
}

func (s *RecurringService) today() core.Date {
	return core.DateOf(s.opts.now())
}

func (s *RecurringService) Create(ctx context.Context, familyID string, in RecurringInput) (core.RecurringExpense, error) {
	re := core.RecurringExpense{
		FamilyID:     familyID,
		CategoryID:   in.CategoryID,
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Amount:       core.RoundMoney(in.Amount),
		CurrencyCode: core.NormalizeCurrency(in.CurrencyCode),
		Frequency:    in.Frequency,
		NextDueDate:  in.NextDueDate,
		IsAutomatic:  in.IsAutomatic,
		IsActive:     true,
	}
	if re.CurrencyCode == "" {
		re.CurrencyCode = baseCurrency(s.rates)
	}
	if re.Frequency == "" {
		re.Frequency = core.Monthly
	}
	if err := re.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}

	q := s.store.Queries()
	if err := checkCategory(ctx, q, re.CategoryID); err != nil {
		return core.RecurringExpense{}, err
	}
	created, err := q.CreateRecurring(ctx, re)
	if err != nil {
		return core.RecurringExpense{}, err
	}

	slog.InfoContext(ctx, "Recurring expense created",
		"family_id", familyID,
		"recurring_id", created.ID,
		"frequency", created.Frequency,
		"next_due_date", created.NextDueDate.String())
	return created, nil
}

func (s *RecurringService) Get(ctx context.Context, familyID, id string) (core.RecurringExpense, error) {
	return s.store.Queries().GetRecurring(ctx, familyID, id)
}

func (s *RecurringService) List(ctx context.Context, familyID string, includeInactive bool) ([]core.RecurringExpense, error) {
	return s.store.Queries().ListRecurring(ctx, familyID, includeInactive)
}

func (s *RecurringService) Update(ctx context.Context, familyID, id string, patch RecurringPatch) (core.RecurringExpense, error) {
	q := s.store.Queries()
	re, err := q.GetRecurring(ctx, familyID, id)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	if patch.CategoryID != nil {
		if err := checkCategory(ctx, q, patch.CategoryID); err != nil {
			return core.RecurringExpense{}, err
		}
		re.CategoryID = patch.CategoryID
	}
	if patch.Name != nil {
		re.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		re.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Amount != nil {
		re.Amount = core.RoundMoney(*patch.Amount)
	}
	if patch.CurrencyCode != nil {
		re.CurrencyCode = core.NormalizeCurrency(*patch.CurrencyCode)
	}
	if patch.Frequency != nil {
		re.Frequency = *patch.Frequency
	}
	if patch.NextDueDate != nil {
		re.NextDueDate = *patch.NextDueDate
	}
	if patch.IsAutomatic != nil {
		re.IsAutomatic = *patch.IsAutomatic
	}
	if patch.IsActive != nil {
		re.IsActive = *patch.IsActive
	}
	if err := re.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	return q.UpdateRecurring(ctx, re)
}

// Delete deactivates the expense; executed transactions are kept.
func (s *RecurringService) Delete(ctx context.Context, familyID, id string) error {
	if err := s.store.Queries().DeactivateRecurring(ctx, familyID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Recurring expense deactivated", "family_id", familyID, "recurring_id", id)
	return nil
}

// Due lists active expenses with next_due_date on or before asOf. A zero
// asOf means today.
func (s *RecurringService) Due(ctx context.Context, familyID string, asOf core.Date) ([]core.RecurringExpense, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	return s.store.Queries().ListDueRecurring(ctx, familyID, asOf)
}

// Execute writes one EXPENSE transaction for the expense and advances its
// schedule by one period. A zero date means today; an empty description
// uses the expense name.
func (s *RecurringService) Execute(ctx context.Context, familyID, id, userID string, date core.Date, description string) (ExecutionResult, error) {
	if date.IsZero() {
		date = s.today()
	}

	var res ExecutionResult
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		re, err := q.GetRecurring(ctx, familyID, id)
		if err != nil {
			return err
		}
		res, err = executeOnce(ctx, q, re, userID, date, description)
		return err
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	s.logExecution(ctx, res)
	s.opts.publish(ctx, amqp.EventCreated, familyID, res.Transaction.ID, res.Transaction.SyncID)
	return res, nil
}

func executeOnce(ctx context.Context, q *storage.Queries, re core.RecurringExpense, userID string, date core.Date, description string) (ExecutionResult, error) {
	if !re.IsActive {
		return ExecutionResult{}, core.ErrRecurringInactive
	}
	if description = strings.TrimSpace(description); description == "" {
		description = re.Name
	}

	t, err := insertTransaction(ctx, q, core.Transaction{
		FamilyID:           re.FamilyID,
		UserID:             userID,
		CategoryID:         re.CategoryID,
		AmountOriginal:     re.Amount,
		CurrencyCode:       re.CurrencyCode,
		ExchangeRate:       decimal.NewFromInt(1),
		TrxDate:            date.Time,
		Type:               core.TypeExpense,
		Description:        description,
		RecurringExpenseID: re.ID,
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	next, err := AdvanceDueDate(re.NextDueDate, re.Frequency)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := q.SetRecurringSchedule(ctx, re.ID, next, date); err != nil {
		return ExecutionResult{}, err
	}
	re.NextDueDate, re.LastExecutedDate = next, date
	return ExecutionResult{Transaction: t, Recurring: re}, nil
}

func (s *RecurringService) logExecution(ctx context.Context, res ExecutionResult) {
	slog.InfoContext(ctx, "Created expense from recurring template",
		"recurring_id", res.Recurring.ID,
		"transaction_id", res.Transaction.ID,
		"amount", res.Transaction.AmountOriginal.String(),
		"frequency", res.Recurring.Frequency,
		"next_due_date", res.Recurring.NextDueDate.String())
}

// AutoExecuteDue executes every active automatic expense once per period
// until its next_due_date is after today. Each expense commits on its own.
func (s *RecurringService) AutoExecuteDue(ctx context.Context, familyID, userID string) (AutoExecuteResult, error) {
	today := s.today()
	due, err := s.store.Queries().ListDueRecurring(ctx, familyID, today)
	if err != nil {
		return AutoExecuteResult{}, err
	}

	var res AutoExecuteResult
	for _, re := range due {
		if !re.IsAutomatic {
			continue
		}
		var created []ExecutionResult
		err := s.store.InTx(ctx, func(q *storage.Queries) error {
			created = created[:0]
			cur := re
			for !cur.NextDueDate.After(today.Time) {
				r, err := executeOnce(ctx, q, cur, userID, today, "")
				if err != nil {
					return err
				}
				created = append(created, r)
				cur = r.Recurring
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("auto-execute %s: %w", re.ID, err)
		}

		if len(created) > 0 {
			res.ExecutedCount++
		}
		for _, r := range created {
			s.logExecution(ctx, r)
			s.opts.publish(ctx, amqp.EventCreated, familyID, r.Transaction.ID, r.Transaction.SyncID)
			res.Transactions = append(res.Transactions, r.Transaction)
		}
	}
	res.TransactionsCreated = len(res.Transactions)

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"family_id", familyID,
		"executed", res.ExecutedCount,
		"transactions", res.TransactionsCreated,
		"total_checked", len(due))
	return res, nil
}

// ConvertOverdueToDebts turns manual expenses left unpaid before the
// current month into debts of type other, one per expense, and moves
// their schedule to the current month. An expense that already has an
// open debt is only advanced.
func (s *RecurringService) ConvertOverdueToDebts(ctx context.Context, familyID string) (OverdueResult, error) {
	monthStart := s.today().FirstOfMonth()
	due, err := s.store.Queries().ListDueRecurring(ctx, familyID, monthStart.AddDays(-1))
	if err != nil {
		return OverdueResult{}, err
	}

	var res OverdueResult
	for _, re := range due {
		if re.IsAutomatic {
			continue
		}
		var conv OverdueConversion
		err := s.store.InTx(ctx, func(q *storage.Queries) error {
			var err error
			conv, err = s.convertOverdue(ctx, q, re, monthStart)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("convert overdue %s: %w", re.ID, err)
		}

		res.ExpensesAdvanced++
		if conv.DebtID != "" {
			res.DebtsCreated++
		}
		res.Conversions = append(res.Conversions, conv)

		slog.InfoContext(ctx, "Overdue recurring expense converted",
			"family_id", familyID,
			"recurring_id", re.ID,
			"periods", conv.Periods,
			"debt_id", conv.DebtID,
			"next_due_date", conv.NextDueDate.String())
	}
	return res, nil
}

func (s *RecurringService) convertOverdue(ctx context.Context, q *storage.Queries, re core.RecurringExpense, monthStart core.Date) (OverdueConversion, error) {
	next, periods := re.NextDueDate, 0
	for next.Before(monthStart.Time) {
		var err error
		if next, err = AdvanceDueDate(next, re.Frequency); err != nil {
			return OverdueConversion{}, err
		}
		periods++
	}
	conv := OverdueConversion{RecurringID: re.ID, Name: re.Name, Periods: periods, NextDueDate: next}

	_, err := q.FindOpenDebtForRecurring(ctx, re.FamilyID, re.ID)
	switch {
	case err == nil:
		// Already tracked as a debt.
	case errors.Is(err, core.ErrDebtNotFound):
		total := core.RoundMoney(re.Amount.Mul(decimal.NewFromInt(int64(periods))))
		d := core.Debt{
			FamilyID:          re.FamilyID,
			Creditor:          re.Name,
			Description:       fmt.Sprintf("Overdue recurring expense %s (%s): %d missed period(s)", re.Name, re.ID, periods),
			DebtType:          core.DebtOther,
			TotalAmount:       total,
			CurrentBalance:    total,
			CurrencyCode:      re.CurrencyCode,
			ExchangeRateFixed: defaultRate(s.rates, re.CurrencyCode),
			DueDate:           monthStart,
			SourceRecurringID: re.ID,
		}
		if err := d.Validate(); err != nil {
			return OverdueConversion{}, err
		}
		created, err := q.CreateDebt(ctx, d)
		if err != nil {
			return OverdueConversion{}, err
		}
		conv.DebtID = created.ID
	default:
		return OverdueConversion{}, err
	}

	if err := q.SetRecurringSchedule(ctx, re.ID, next, re.LastExecutedDate); err != nil {
		return OverdueConversion{}, err
	}
	return conv, nil
}
