package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"famfinance/internal/core"
)

const goalColumns = `id, family_id, created_by, name, description, icon, target_amount, current_saved,
	currency_code, deadline, goal_type, is_active, created_at, updated_at`

// goalVisible hides PERSONAL goals from everyone but their creator.
const goalVisible = `(goal_type = 'FAMILY' OR created_by = ?)`

func scanGoal(row scanner) (core.Goal, error) {
	var (
		g                core.Goal
		target, saved    int64
		deadline         sql.NullString
		goalType         string
		active           int
		created, updated string
	)
	err := row.Scan(&g.ID, &g.FamilyID, &g.CreatedBy, &g.Name, &g.Description, &g.Icon, &target, &saved,
		&g.CurrencyCode, &deadline, &goalType, &active, &created, &updated)
	if err != nil {
		return core.Goal{}, err
	}
	g.TargetAmount = fromMinor(target)
	g.CurrentSaved = fromMinor(saved)
	g.Deadline = parseDate(deadline)
	g.GoalType = core.GoalType(goalType)
	g.IsActive = active == 1
	g.CreatedAt = parseTime(created)
	g.UpdatedAt = parseTime(updated)
	g.ProgressPercentage = g.Progress()
	return g, nil
}

func (q *Queries) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	now := q.now().UTC().Truncate(time.Second)
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Icon == "" {
		g.Icon = core.DefaultGoalIcon
	}
	g.CreatedAt, g.UpdatedAt = now, now
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.FamilyID, g.CreatedBy, g.Name, g.Description, g.Icon, toMinor(g.TargetAmount),
		toMinor(g.CurrentSaved), g.CurrencyCode, formatDate(g.Deadline), string(g.GoalType),
		boolInt(g.IsActive), formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
	if err != nil {
		return core.Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	g.ProgressPercentage = g.Progress()
	return g, nil
}

// GetGoal loads a goal as seen by userID. A PERSONAL goal of another user
// is reported as core.ErrGoalNotFound.
func (q *Queries) GetGoal(ctx context.Context, familyID, userID, id string) (core.Goal, error) {
	g, err := scanGoal(q.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = ? AND family_id = ? AND `+goalVisible,
		id, familyID, userID))
	if err != nil {
		return core.Goal{}, notFound(err, core.ErrGoalNotFound)
	}
	return g, nil
}

func (q *Queries) ListGoals(ctx context.Context, familyID, userID string, includeInactive bool) ([]core.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE family_id = ? AND ` + goalVisible
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	rows, err := q.db.QueryContext(ctx, query+` ORDER BY created_at DESC, id`, familyID, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGoal rewrites the descriptive columns. current_saved changes only
// through SetGoalSaved.
func (q *Queries) UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	g.UpdatedAt = q.now().UTC().Truncate(time.Second)
	res, err := q.db.ExecContext(ctx,
		`UPDATE goals SET name = ?, description = ?, icon = ?, target_amount = ?, deadline = ?,
			goal_type = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND family_id = ?`,
		g.Name, g.Description, g.Icon, toMinor(g.TargetAmount), formatDate(g.Deadline),
		string(g.GoalType), boolInt(g.IsActive), formatTime(g.UpdatedAt), g.ID, g.FamilyID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Goal{}, core.ErrGoalNotFound
	}
	g.ProgressPercentage = g.Progress()
	return g, nil
}

func (q *Queries) SetGoalSaved(ctx context.Context, id string, saved decimal.Decimal) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE goals SET current_saved = ?, updated_at = ? WHERE id = ?`,
		toMinor(saved), formatTime(q.now()), id)
	if err != nil {
		return fmt.Errorf("set goal saved: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrGoalNotFound
	}
	return nil
}

func (q *Queries) DeactivateGoal(ctx context.Context, familyID, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE goals SET is_active = 0, updated_at = ? WHERE id = ? AND family_id = ?`,
		formatTime(q.now()), id, familyID)
	if err != nil {
		return fmt.Errorf("deactivate goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrGoalNotFound
	}
	return nil
}

// SumActiveSaved totals current_saved of the active goals visible to userID.
func (q *Queries) SumActiveSaved(ctx context.Context, familyID, userID string) (decimal.Decimal, int, error) {
	var (
		sum   int64
		count int
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(current_saved), 0), COUNT(*) FROM goals
		WHERE family_id = ? AND is_active = 1 AND `+goalVisible, familyID, userID).Scan(&sum, &count)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("sum goal savings: %w", err)
	}
	return fromMinor(sum), count, nil
}

const contributionColumns = `id, goal_id, user_id, amount, is_withdrawal, notes, created_at`

func (q *Queries) CreateContribution(ctx context.Context, c core.GoalContribution) (core.GoalContribution, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = q.now().UTC().Truncate(time.Second)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO goal_contributions (`+contributionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.GoalID, c.UserID, toMinor(c.Amount), boolInt(c.IsWithdrawal), c.Notes, formatTime(c.CreatedAt))
	if err != nil {
		return core.GoalContribution{}, fmt.Errorf("insert contribution: %w", err)
	}
	return c, nil
}

// ListContributions returns the newest contributions of a goal, up to limit.
func (q *Queries) ListContributions(ctx context.Context, goalID string, limit int) ([]core.GoalContribution, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+contributionColumns+` FROM goal_contributions WHERE goal_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, goalID, limit)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []core.GoalContribution
	for rows.Next() {
		var (
			c          core.GoalContribution
			amount     int64
			withdrawal int
			created    string
		)
		if err := rows.Scan(&c.ID, &c.GoalID, &c.UserID, &amount, &withdrawal, &c.Notes, &created); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.Amount = fromMinor(amount)
		c.IsWithdrawal = withdrawal == 1
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
