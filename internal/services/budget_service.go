package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"famfinance/internal/core"
	"famfinance/internal/storage"
)

// BudgetInput carries the fields of a new budget.
type BudgetInput struct {
	CategoryID     int64
	BudgetAmount   decimal.Decimal
	CurrencyCode   string
	Period         core.BudgetPeriod
	AlertThreshold *int
}

type BudgetPatch struct {
	BudgetAmount   *decimal.Decimal
	CurrencyCode   *string
	Period         *core.BudgetPeriod
	AlertThreshold *int
}

const defaultAlertThreshold = 80

type BudgetService struct {
	store Store
	rates RateSource
	opts  options
}

func NewBudgetService(store Store, rates RateSource, opts ...Option) *BudgetService {
	return &BudgetService{store: store, rates: rates, opts: buildOptions(opts)}
}

func (s *BudgetService) Create(ctx context.Context, familyID string, in BudgetInput) (core.CategoryBudget, error) {
	b := core.CategoryBudget{
		FamilyID:       familyID,
		CategoryID:     in.CategoryID,
		BudgetAmount:   core.RoundMoney(in.BudgetAmount),
		CurrencyCode:   core.NormalizeCurrency(in.CurrencyCode),
		Period:         in.Period,
		AlertThreshold: defaultAlertThreshold,
	}
	if b.CurrencyCode == "" {
		b.CurrencyCode = baseCurrency(s.rates)
	}
	if b.Period == "" {
		b.Period = core.PeriodMonthly
	}
	if in.AlertThreshold != nil {
		b.AlertThreshold = *in.AlertThreshold
	}
	if err := b.Validate(); err != nil {
		return core.CategoryBudget{}, err
	}

	q := s.store.Queries()
	if err := checkCategory(ctx, q, &b.CategoryID); err != nil {
		return core.CategoryBudget{}, err
	}
	created, err := q.CreateBudget(ctx, b)
	if err != nil {
		return core.CategoryBudget{}, err
	}

	slog.InfoContext(ctx, "Budget created",
		"family_id", familyID,
		"budget_id", created.ID,
		"category_id", created.CategoryID,
		"period", created.Period)
	return created, nil
}

func (s *BudgetService) Get(ctx context.Context, familyID, id string) (core.CategoryBudget, error) {
	return s.store.Queries().GetBudget(ctx, familyID, id)
}

func (s *BudgetService) List(ctx context.Context, familyID string) ([]core.CategoryBudget, error) {
	return s.store.Queries().ListBudgets(ctx, familyID)
}

func (s *BudgetService) Update(ctx context.Context, familyID, id string, patch BudgetPatch) (core.CategoryBudget, error) {
	q := s.store.Queries()
	b, err := q.GetBudget(ctx, familyID, id)
	if err != nil {
		return core.CategoryBudget{}, err
	}
	if patch.BudgetAmount != nil {
		b.BudgetAmount = core.RoundMoney(*patch.BudgetAmount)
	}
	if patch.CurrencyCode != nil {
		b.CurrencyCode = core.NormalizeCurrency(*patch.CurrencyCode)
	}
	if patch.Period != nil {
		b.Period = *patch.Period
	}
	if patch.AlertThreshold != nil {
		b.AlertThreshold = *patch.AlertThreshold
	}
	if err := b.Validate(); err != nil {
		return core.CategoryBudget{}, err
	}
	return q.UpdateBudget(ctx, b)
}

func (s *BudgetService) Delete(ctx context.Context, familyID, id string) error {
	return s.store.Queries().DeleteBudget(ctx, familyID, id)
}

// Status reports spending against one budget for the period containing
// asOf. A zero asOf means today.
func (s *BudgetService) Status(ctx context.Context, familyID, id string, asOf core.Date) (core.BudgetStatus, error) {
	q := s.store.Queries()
	b, err := q.GetBudget(ctx, familyID, id)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	if asOf.IsZero() {
		asOf = core.DateOf(s.opts.now())
	}
	return budgetStatus(ctx, q, b, asOf)
}

// AllStatuses reports every budget of the family as of today.
func (s *BudgetService) AllStatuses(ctx context.Context, familyID string) ([]core.BudgetStatus, error) {
	q := s.store.Queries()
	budgets, err := q.ListBudgets(ctx, familyID)
	if err != nil {
		return nil, err
	}
	today := core.DateOf(s.opts.now())
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		st, err := budgetStatus(ctx, q, b, today)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// budgetStatus sums EXPENSE amount_base for the budget's category over
// [period start 00:00, asOf 23:59:59].
func budgetStatus(ctx context.Context, q *storage.Queries, b core.CategoryBudget, asOf core.Date) (core.BudgetStatus, error) {
	start := core.PeriodStart(b.Period, asOf)
	spent, err := q.SumExpenses(ctx, b.FamilyID, b.CategoryID, start.Time, asOf.EndOfDay())
	if err != nil {
		return core.BudgetStatus{}, err
	}

	name := ""
	cat, err := q.GetCategory(ctx, b.CategoryID)
	switch {
	case err == nil:
		name = cat.Name
	case !errors.Is(err, core.ErrCategoryNotFound):
		return core.BudgetStatus{}, fmt.Errorf("get category: %w", err)
	}
	return core.NewBudgetStatus(b, name, asOf, spent), nil
}
