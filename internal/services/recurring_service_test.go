package services

import (
	"context"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"famfinance/internal/core"
	"famfinance/internal/storage"
)

func TestRecurringExecute_MonthEndClampsToFebruary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	re, err := env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name:        "Gym",
		Amount:      dec("499"),
		CategoryID:  ptr(int64(11)),
		Frequency:   core.Monthly,
		NextDueDate: core.NewDate(2026, 1, 31),
	})
	assert.NoError(t, err)

	res, err := env.recurring.Execute(ctx, env.family.ID, re.ID, env.admin.ID, core.Date{}, "")
	assert.NoError(t, err)
	assert.Equal(t, core.NewDate(2026, 2, 28), res.Recurring.NextDueDate)
	assert.Equal(t, core.DateOf(testNow), res.Recurring.LastExecutedDate)

	tx := res.Transaction
	assert.Equal(t, core.TypeExpense, tx.Type)
	assert.Equal(t, "Gym", tx.Description)
	assertDecimal(t, "499", tx.AmountBase)
	assertDecimal(t, "1", tx.ExchangeRate)
	assert.Equal(t, re.ID, tx.RecurringExpenseID)
	assert.Equal(t, int64(11), *tx.CategoryID)

	got, err := env.recurring.Get(ctx, env.family.ID, re.ID)
	assert.NoError(t, err)
	assert.Equal(t, core.NewDate(2026, 2, 28), got.NextDueDate)
}

func TestRecurringExecute_ExplicitDateAndDescription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	re, err := env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Water", Amount: dec("150"), Frequency: core.Biweekly, NextDueDate: core.NewDate(2026, 3, 1),
	})
	assert.NoError(t, err)

	date := core.NewDate(2026, 3, 2)
	res, err := env.recurring.Execute(ctx, env.family.ID, re.ID, env.admin.ID, date, "Water, paid late")
	assert.NoError(t, err)
	assert.Equal(t, "Water, paid late", res.Transaction.Description)
	assert.True(t, res.Transaction.TrxDate.Equal(date.Time))
	assert.Equal(t, core.NewDate(2026, 3, 15), res.Recurring.NextDueDate)
}

func TestRecurringExecute_InactiveIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	re, err := env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Netflix", Amount: dec("199"), NextDueDate: core.NewDate(2026, 3, 1),
	})
	assert.NoError(t, err)
	assert.NoError(t, env.recurring.Delete(ctx, env.family.ID, re.ID))

	_, err = env.recurring.Execute(ctx, env.family.ID, re.ID, env.admin.ID, core.Date{}, "")
	assert.IsError(t, err, core.ErrRecurringInactive)
	assert.Equal(t, core.KindBusinessRule, core.KindOf(err))

	d, err := env.ledger.Dashboard(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, d.TransactionsCount)
}

func TestRecurringDue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, in := range []RecurringInput{
		{Name: "Past", Amount: dec("1"), NextDueDate: core.NewDate(2026, 3, 1)},
		{Name: "Today", Amount: dec("1"), NextDueDate: core.NewDate(2026, 3, 15)},
		{Name: "Future", Amount: dec("1"), NextDueDate: core.NewDate(2026, 3, 16)},
	} {
		_, err := env.recurring.Create(ctx, env.family.ID, in)
		assert.NoError(t, err)
	}

	due, err := env.recurring.Due(ctx, env.family.ID, core.Date{})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(due))

	due, err = env.recurring.Due(ctx, env.family.ID, core.NewDate(2026, 3, 10))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(due))
	assert.Equal(t, "Past", due[0].Name)
}

func TestRecurringAutoExecuteDue_CatchesUpMissedPeriods(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auto, err := env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Insurance", Amount: dec("300"), NextDueDate: core.NewDate(2026, 1, 15), IsAutomatic: true,
	})
	assert.NoError(t, err)
	_, err = env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Manual", Amount: dec("10"), NextDueDate: core.NewDate(2026, 1, 1),
	})
	assert.NoError(t, err)

	res, err := env.recurring.AutoExecuteDue(ctx, env.family.ID, env.admin.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.ExecutedCount)
	assert.Equal(t, 3, res.TransactionsCreated)

	got, err := env.recurring.Get(ctx, env.family.ID, auto.ID)
	assert.NoError(t, err)
	assert.Equal(t, core.NewDate(2026, 4, 15), got.NextDueDate)

	page, err := env.ledger.List(ctx, env.family.ID, storage.TransactionFilter{}, 1, 10)
	assert.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	for _, tx := range page.Items {
		assert.Equal(t, auto.ID, tx.RecurringExpenseID)
		assert.Equal(t, env.admin.ID, tx.UserID)
	}

	// Nothing is due any more.
	res, err = env.recurring.AutoExecuteDue(ctx, env.family.ID, env.admin.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.TransactionsCreated)
}

func TestRecurringConvertOverdueToDebts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	re, err := env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Internet", Amount: dec("100"), NextDueDate: core.NewDate(2026, 1, 10),
	})
	assert.NoError(t, err)
	// Automatic expenses and expenses due this month are left alone.
	_, err = env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Auto", Amount: dec("5"), NextDueDate: core.NewDate(2026, 1, 10), IsAutomatic: true,
	})
	assert.NoError(t, err)
	_, err = env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Current", Amount: dec("5"), NextDueDate: core.NewDate(2026, 3, 2),
	})
	assert.NoError(t, err)

	res, err := env.recurring.ConvertOverdueToDebts(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.DebtsCreated)
	assert.Equal(t, 1, res.ExpensesAdvanced)
	assert.Equal(t, 2, res.Conversions[0].Periods)

	debt, err := env.debts.Get(ctx, env.family.ID, res.Conversions[0].DebtID)
	assert.NoError(t, err)
	assertDecimal(t, "200", debt.TotalAmount)
	assertDecimal(t, "200", debt.CurrentBalance)
	assert.Equal(t, core.DebtOther, debt.DebtType)
	assert.Equal(t, core.NewDate(2026, 3, 1), debt.DueDate)
	assert.Equal(t, re.ID, debt.SourceRecurringID)
	assert.True(t, strings.Contains(debt.Description, "Internet") && strings.Contains(debt.Description, re.ID))

	got, err := env.recurring.Get(ctx, env.family.ID, re.ID)
	assert.NoError(t, err)
	assert.Equal(t, core.NewDate(2026, 3, 10), got.NextDueDate)

	// A second run finds nothing overdue.
	res, err = env.recurring.ConvertOverdueToDebts(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.ExpensesAdvanced)
}

func TestRecurringConvertOverdue_ExistingDebtOnlyAdvances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	re, err := env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Phone", Amount: dec("50"), Frequency: core.Weekly, NextDueDate: core.NewDate(2026, 2, 20),
	})
	assert.NoError(t, err)
	first, err := env.recurring.ConvertOverdueToDebts(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, first.DebtsCreated)
	assert.Equal(t, core.NewDate(2026, 3, 6), first.Conversions[0].NextDueDate)

	// Overdue again while the first debt is still open.
	_, err = env.recurring.Update(ctx, env.family.ID, re.ID, RecurringPatch{NextDueDate: ptr(core.NewDate(2026, 2, 27))})
	assert.NoError(t, err)

	second, err := env.recurring.ConvertOverdueToDebts(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, second.DebtsCreated)
	assert.Equal(t, 1, second.ExpensesAdvanced)

	debts, err := env.debts.List(ctx, env.family.ID, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(debts))

	got, err := env.recurring.Get(ctx, env.family.ID, re.ID)
	assert.NoError(t, err)
	assert.Equal(t, core.NewDate(2026, 3, 6), got.NextDueDate)
}

func TestRecurringCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RecurringInput
		want error
	}{
		{"missing name", RecurringInput{Amount: dec("1"), NextDueDate: core.NewDate(2026, 1, 1)}, core.ErrEmptyName},
		{"zero amount", RecurringInput{Name: "x", Amount: dec("0"), NextDueDate: core.NewDate(2026, 1, 1)}, core.ErrInvalidAmount},
		{"bad frequency", RecurringInput{Name: "x", Amount: dec("1"), Frequency: "YEARLY", NextDueDate: core.NewDate(2026, 1, 1)}, core.ErrInvalidFrequency},
		{"missing due date", RecurringInput{Name: "x", Amount: dec("1")}, core.ErrMissingDueDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.recurring.Create(ctx, env.family.ID, tt.in)
			assert.IsError(t, err, tt.want)
		})
	}
}

func TestRecurringUpdateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	re, err := env.recurring.Create(ctx, env.family.ID, RecurringInput{
		Name: "Spotify", Amount: dec("129"), NextDueDate: core.NewDate(2026, 3, 20),
	})
	assert.NoError(t, err)
	assert.Equal(t, core.Monthly, re.Frequency)
	assert.True(t, re.IsActive)

	updated, err := env.recurring.Update(ctx, env.family.ID, re.ID, RecurringPatch{
		Amount: ptr(dec("149")), IsAutomatic: ptr(true),
	})
	assert.NoError(t, err)
	assertDecimal(t, "149", updated.Amount)
	assert.True(t, updated.IsAutomatic)

	assert.NoError(t, env.recurring.Delete(ctx, env.family.ID, re.ID))
	active, err := env.recurring.List(ctx, env.family.ID, false)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(active))
	all, err := env.recurring.List(ctx, env.family.ID, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(all))
}
