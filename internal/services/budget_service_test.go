package services

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"famfinance/internal/core"
)

func TestBudgetStatus_Monthly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: groceries, BudgetAmount: dec("1000")})
	assert.NoError(t, err)
	assert.Equal(t, core.PeriodMonthly, b.Period)
	assert.Equal(t, 80, b.AlertThreshold)
	assert.Equal(t, "MXN", b.CurrencyCode)

	env.expense(t, "300", ptr(groceries), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	env.expense(t, "200", ptr(groceries), time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC))
	env.expense(t, "500", ptr(groceries), time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC))
	env.expense(t, "999", ptr(int64(5)), time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	env.expense(t, "50", ptr(groceries), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))

	st, err := env.budgets.Status(ctx, env.family.ID, b.ID, core.Date{})
	assert.NoError(t, err)
	assert.Equal(t, "Groceries", st.CategoryName)
	assert.Equal(t, core.NewDate(2026, 3, 1), st.PeriodStart)
	assertDecimal(t, "500", st.Spent)
	assertDecimal(t, "500", st.Remaining)
	assertDecimal(t, "50", st.PercentageUsed)
	assert.False(t, st.IsOverBudget)
	assert.False(t, st.IsAlertTriggered)
}

func TestBudgetStatus_WeeklyOverBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.budgets.Create(ctx, env.family.ID, BudgetInput{
		CategoryID: groceries, BudgetAmount: dec("100"), Period: core.PeriodWeekly, AlertThreshold: ptr(90),
	})
	assert.NoError(t, err)

	env.expense(t, "80", ptr(groceries), time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))
	env.expense(t, "45", ptr(groceries), time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC))
	env.expense(t, "70", ptr(groceries), time.Date(2026, 3, 8, 8, 0, 0, 0, time.UTC))

	st, err := env.budgets.Status(ctx, env.family.ID, b.ID, core.NewDate(2026, 3, 15))
	assert.NoError(t, err)
	assert.Equal(t, core.NewDate(2026, 3, 9), st.PeriodStart)
	assertDecimal(t, "125", st.Spent)
	assertDecimal(t, "-25", st.Remaining)
	assertDecimal(t, "125", st.PercentageUsed)
	assert.True(t, st.IsOverBudget)
	assert.True(t, st.IsAlertTriggered)
}

func TestBudgetCreate_DuplicateCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: groceries, BudgetAmount: dec("100")})
	assert.NoError(t, err)

	_, err = env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: groceries, BudgetAmount: dec("200")})
	assert.IsError(t, err, core.ErrDuplicateBudget)
	assert.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestBudgetCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: groceries, BudgetAmount: dec("0")})
	assert.IsError(t, err, core.ErrInvalidAmount)
	_, err = env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: groceries, BudgetAmount: dec("1"), AlertThreshold: ptr(101)})
	assert.IsError(t, err, core.ErrInvalidThreshold)
	_, err = env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: 999, BudgetAmount: dec("1")})
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestBudgetUpdateDeleteAndAllStatuses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: groceries, BudgetAmount: dec("100")})
	assert.NoError(t, err)
	_, err = env.budgets.Create(ctx, env.family.ID, BudgetInput{CategoryID: 6, BudgetAmount: dec("50")})
	assert.NoError(t, err)

	updated, err := env.budgets.Update(ctx, env.family.ID, b.ID, BudgetPatch{BudgetAmount: ptr(dec("400")), AlertThreshold: ptr(50)})
	assert.NoError(t, err)
	assertDecimal(t, "400", updated.BudgetAmount)
	assert.Equal(t, 50, updated.AlertThreshold)

	env.expense(t, "200", ptr(groceries), testNow)
	statuses, err := env.budgets.AllStatuses(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(statuses))
	for _, st := range statuses {
		if st.Budget.ID == b.ID {
			assert.True(t, st.IsAlertTriggered)
		}
	}

	assert.NoError(t, env.budgets.Delete(ctx, env.family.ID, b.ID))
	_, err = env.budgets.Get(ctx, env.family.ID, b.ID)
	assert.IsError(t, err, core.ErrBudgetNotFound)
	list, err := env.budgets.List(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(list))
}
