package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"famfinance/internal/core"
)

const budgetColumns = `id, family_id, category_id, budget_amount, currency_code, period, alert_threshold,
	created_at, updated_at`

func scanBudget(row scanner) (core.CategoryBudget, error) {
	var (
		b                core.CategoryBudget
		amount           int64
		period           string
		created, updated string
	)
	err := row.Scan(&b.ID, &b.FamilyID, &b.CategoryID, &amount, &b.CurrencyCode, &period,
		&b.AlertThreshold, &created, &updated)
	if err != nil {
		return core.CategoryBudget{}, err
	}
	b.BudgetAmount = fromMinor(amount)
	b.Period = core.BudgetPeriod(period)
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

// CreateBudget inserts b. A second budget for the same category returns
// core.ErrDuplicateBudget.
func (q *Queries) CreateBudget(ctx context.Context, b core.CategoryBudget) (core.CategoryBudget, error) {
	now := q.now().UTC().Truncate(time.Second)
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO category_budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.FamilyID, b.CategoryID, toMinor(b.BudgetAmount), b.CurrencyCode, string(b.Period),
		b.AlertThreshold, formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.CategoryBudget{}, core.ErrDuplicateBudget
		}
		return core.CategoryBudget{}, fmt.Errorf("insert budget: %w", err)
	}
	return b, nil
}

func (q *Queries) GetBudget(ctx context.Context, familyID, id string) (core.CategoryBudget, error) {
	b, err := scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM category_budgets WHERE id = ? AND family_id = ?`, id, familyID))
	if err != nil {
		return core.CategoryBudget{}, notFound(err, core.ErrBudgetNotFound)
	}
	return b, nil
}

// GetBudgetByCategory returns the family's budget for a category, or
// core.ErrBudgetNotFound.
func (q *Queries) GetBudgetByCategory(ctx context.Context, familyID string, categoryID int64) (core.CategoryBudget, error) {
	b, err := scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM category_budgets WHERE family_id = ? AND category_id = ?`,
		familyID, categoryID))
	if err != nil {
		return core.CategoryBudget{}, notFound(err, core.ErrBudgetNotFound)
	}
	return b, nil
}

func (q *Queries) ListBudgets(ctx context.Context, familyID string) ([]core.CategoryBudget, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM category_budgets WHERE family_id = ? ORDER BY category_id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryBudget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateBudget(ctx context.Context, b core.CategoryBudget) (core.CategoryBudget, error) {
	b.UpdatedAt = q.now().UTC().Truncate(time.Second)
	res, err := q.db.ExecContext(ctx,
		`UPDATE category_budgets SET budget_amount = ?, currency_code = ?, period = ?,
			alert_threshold = ?, updated_at = ?
		WHERE id = ? AND family_id = ?`,
		toMinor(b.BudgetAmount), b.CurrencyCode, string(b.Period), b.AlertThreshold,
		formatTime(b.UpdatedAt), b.ID, b.FamilyID)
	if err != nil {
		return core.CategoryBudget{}, fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.CategoryBudget{}, core.ErrBudgetNotFound
	}
	return b, nil
}

func (q *Queries) DeleteBudget(ctx context.Context, familyID, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM category_budgets WHERE id = ? AND family_id = ?`, id, familyID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrBudgetNotFound
	}
	return nil
}
