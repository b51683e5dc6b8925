package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"famfinance/internal/core"
)

// ProcessResult totals one processor run over every family.
type ProcessResult struct {
	Families            int `json:"families"`
	TransactionsCreated int `json:"transactions_created"`
	DebtsCreated        int `json:"debts_created"`
	ExpensesAdvanced    int `json:"expenses_advanced"`
	Failed              int `json:"failed"`
}

// RecurringProcessor runs the recurring schedule for every family: automatic
// expenses are executed and manual ones left overdue become debts.
type RecurringProcessor struct {
	store       Store
	recurring   *RecurringService
	concurrency int

	convertOverdue bool
}

// NewRecurringProcessor creates a processor handling up to concurrency
// families at once.
func NewRecurringProcessor(store Store, recurring *RecurringService, concurrency int) *RecurringProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RecurringProcessor{
		store:          store,
		recurring:      recurring,
		concurrency:    concurrency,
		convertOverdue: true,
	}
}

// SetConvertOverdue toggles the overdue-to-debt step of ProcessFamily.
func (p *RecurringProcessor) SetConvertOverdue(enabled bool) {
	p.convertOverdue = enabled
}

// ProcessAll processes every family. A family that fails is logged and
// counted; the run continues with the others.
func (p *RecurringProcessor) ProcessAll(ctx context.Context) (ProcessResult, error) {
	if p.store == nil || p.recurring == nil {
		return ProcessResult{}, fmt.Errorf("processor not properly initialized")
	}

	families, err := p.store.Queries().ListFamilyIDs(ctx)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("failed to list families: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring expenses", "families", len(families))

	var (
		mu  sync.Mutex
		res = ProcessResult{Families: len(families)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, familyID := range families {
		g.Go(func() error {
			fr, err := p.ProcessFamily(gctx, familyID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				slog.ErrorContext(gctx, "Failed to process family",
					"family_id", familyID,
					"error", err)
				return nil
			}
			res.TransactionsCreated += fr.TransactionsCreated
			res.DebtsCreated += fr.DebtsCreated
			res.ExpensesAdvanced += fr.ExpensesAdvanced
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"families", res.Families,
		"transactions_created", res.TransactionsCreated,
		"debts_created", res.DebtsCreated,
		"failed", res.Failed)
	return res, ctx.Err()
}

// ProcessFamily executes the family's due automatic expenses on behalf of
// its first admin, then converts overdue manual expenses into debts.
func (p *RecurringProcessor) ProcessFamily(ctx context.Context, familyID string) (ProcessResult, error) {
	res := ProcessResult{Families: 1}

	admin, err := p.store.Queries().FirstAdmin(ctx, familyID)
	switch {
	case err == nil:
		auto, err := p.recurring.AutoExecuteDue(ctx, familyID, admin.ID)
		if err != nil {
			return res, err
		}
		res.TransactionsCreated = auto.TransactionsCreated
	case errors.Is(err, core.ErrUserNotFound):
		slog.WarnContext(ctx, "Family has no admin, skipping automatic expenses", "family_id", familyID)
	default:
		return res, err
	}

	if !p.convertOverdue {
		return res, nil
	}
	overdue, err := p.recurring.ConvertOverdueToDebts(ctx, familyID)
	if err != nil {
		return res, err
	}
	res.DebtsCreated = overdue.DebtsCreated
	res.ExpensesAdvanced = overdue.ExpensesAdvanced
	return res, nil
}
