package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"famfinance/internal/core"
)

const recurringColumns = `id, family_id, category_id, name, description, amount, currency_code, frequency,
	next_due_date, last_executed_date, is_automatic, is_active, created_at, updated_at`

func scanRecurring(row scanner) (core.RecurringExpense, error) {
	var (
		re                core.RecurringExpense
		categoryID        sql.NullInt64
		amount            int64
		frequency         string
		nextDue, lastExec sql.NullString
		automatic, active int
		created, updated  string
	)
	err := row.Scan(&re.ID, &re.FamilyID, &categoryID, &re.Name, &re.Description, &amount,
		&re.CurrencyCode, &frequency, &nextDue, &lastExec, &automatic, &active, &created, &updated)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	re.CategoryID = int64Ptr(categoryID)
	re.Amount = fromMinor(amount)
	re.Frequency = core.Frequency(frequency)
	re.NextDueDate = parseDate(nextDue)
	re.LastExecutedDate = parseDate(lastExec)
	re.IsAutomatic = automatic == 1
	re.IsActive = active == 1
	re.CreatedAt = parseTime(created)
	re.UpdatedAt = parseTime(updated)
	return re, nil
}

func (q *Queries) listRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringExpense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func (q *Queries) CreateRecurring(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	now := q.now().UTC().Truncate(time.Second)
	if re.ID == "" {
		re.ID = uuid.NewString()
	}
	re.CreatedAt, re.UpdatedAt = now, now
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO recurring_expenses (`+recurringColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		re.ID, re.FamilyID, nullInt64(re.CategoryID), re.Name, re.Description, toMinor(re.Amount),
		re.CurrencyCode, string(re.Frequency), formatDate(re.NextDueDate), formatDate(re.LastExecutedDate),
		boolInt(re.IsAutomatic), boolInt(re.IsActive), formatTime(re.CreatedAt), formatTime(re.UpdatedAt))
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("insert recurring expense: %w", err)
	}
	return re, nil
}

func (q *Queries) GetRecurring(ctx context.Context, familyID, id string) (core.RecurringExpense, error) {
	re, err := scanRecurring(q.db.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_expenses WHERE id = ? AND family_id = ?`, id, familyID))
	if err != nil {
		return core.RecurringExpense{}, notFound(err, core.ErrRecurringNotFound)
	}
	return re, nil
}

// ListRecurring returns the family's recurring expenses by next due date.
func (q *Queries) ListRecurring(ctx context.Context, familyID string, includeInactive bool) ([]core.RecurringExpense, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_expenses WHERE family_id = ?`
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	return q.listRecurring(ctx, query+` ORDER BY next_due_date, name`, familyID)
}

// ListDueRecurring returns active expenses with next_due_date on or before asOf.
func (q *Queries) ListDueRecurring(ctx context.Context, familyID string, asOf core.Date) ([]core.RecurringExpense, error) {
	return q.listRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_expenses
		WHERE family_id = ? AND is_active = 1 AND next_due_date <= ?
		ORDER BY next_due_date, name`, familyID, asOf.String())
}

func (q *Queries) UpdateRecurring(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	re.UpdatedAt = q.now().UTC().Truncate(time.Second)
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET category_id = ?, name = ?, description = ?, amount = ?,
			currency_code = ?, frequency = ?, next_due_date = ?, is_automatic = ?, is_active = ?,
			updated_at = ?
		WHERE id = ? AND family_id = ?`,
		nullInt64(re.CategoryID), re.Name, re.Description, toMinor(re.Amount), re.CurrencyCode,
		string(re.Frequency), formatDate(re.NextDueDate), boolInt(re.IsAutomatic), boolInt(re.IsActive),
		formatTime(re.UpdatedAt), re.ID, re.FamilyID)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("update recurring expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.RecurringExpense{}, core.ErrRecurringNotFound
	}
	return re, nil
}

// SetRecurringSchedule stores the execution state. A zero last clears
// last_executed_date.
func (q *Queries) SetRecurringSchedule(ctx context.Context, id string, next, last core.Date) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET next_due_date = ?, last_executed_date = ?, updated_at = ? WHERE id = ?`,
		formatDate(next), formatDate(last), formatTime(q.now()), id)
	if err != nil {
		return fmt.Errorf("set recurring schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrRecurringNotFound
	}
	return nil
}

func (q *Queries) DeactivateRecurring(ctx context.Context, familyID, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET is_active = 0, updated_at = ? WHERE id = ? AND family_id = ?`,
		formatTime(q.now()), id, familyID)
	if err != nil {
		return fmt.Errorf("deactivate recurring expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrRecurringNotFound
	}
	return nil
}
