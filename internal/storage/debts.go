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

const debtColumns = `id, family_id, creditor, description, debt_type, total_amount, current_balance,
	currency_code, exchange_rate_fixed, interest_rate, is_archived, due_date, source_recurring_id,
	created_at, updated_at`

func scanDebt(row scanner) (core.Debt, error) {
	var (
		d                     core.Debt
		debtType              string
		total, balance, rate  int64
		interest              sql.NullInt64
		archived              int
		dueDate, sourceRecurr sql.NullString
		created, updated      string
	)
	err := row.Scan(&d.ID, &d.FamilyID, &d.Creditor, &d.Description, &debtType, &total, &balance,
		&d.CurrencyCode, &rate, &interest, &archived, &dueDate, &sourceRecurr, &created, &updated)
	if err != nil {
		return core.Debt{}, err
	}
	d.DebtType = core.DebtType(debtType)
	d.TotalAmount = fromMinor(total)
	d.CurrentBalance = fromMinor(balance)
	d.ExchangeRateFixed = fromRateUnits(rate)
	if interest.Valid {
		v := fromMinor(interest.Int64)
		d.InterestRate = &v
	}
	d.IsArchived = archived == 1
	d.DueDate = parseDate(dueDate)
	d.SourceRecurringID = sourceRecurr.String
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return d, nil
}

func interestArg(rate *decimal.Decimal) any {
	if rate == nil {
		return nil
	}
	return toMinor(*rate)
}

func (q *Queries) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	now := q.now().UTC().Truncate(time.Second)
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO debts (`+debtColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.FamilyID, d.Creditor, d.Description, string(d.DebtType), toMinor(d.TotalAmount),
		toMinor(d.CurrentBalance), d.CurrencyCode, toRateUnits(d.ExchangeRateFixed), interestArg(d.InterestRate),
		boolInt(d.IsArchived), formatDate(d.DueDate), nullString(d.SourceRecurringID),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return core.Debt{}, fmt.Errorf("insert debt: %w", err)
	}
	return d, nil
}

func (q *Queries) GetDebt(ctx context.Context, familyID, id string) (core.Debt, error) {
	d, err := scanDebt(q.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = ? AND family_id = ?`, id, familyID))
	if err != nil {
		return core.Debt{}, notFound(err, core.ErrDebtNotFound)
	}
	return d, nil
}

// ListDebts returns the family's debts, newest first.
func (q *Queries) ListDebts(ctx context.Context, familyID string, includeArchived bool) ([]core.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE family_id = ?`
	if !includeArchived {
		query += ` AND is_archived = 0`
	}
	rows, err := q.db.QueryContext(ctx, query+` ORDER BY created_at DESC, id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var out []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDebt rewrites the descriptive columns. Balance and archive state
// change only through SetDebtBalance.
func (q *Queries) UpdateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	d.UpdatedAt = q.now().UTC().Truncate(time.Second)
	res, err := q.db.ExecContext(ctx,
		`UPDATE debts SET creditor = ?, description = ?, debt_type = ?, interest_rate = ?,
			due_date = ?, updated_at = ?
		WHERE id = ? AND family_id = ?`,
		d.Creditor, d.Description, string(d.DebtType), interestArg(d.InterestRate),
		formatDate(d.DueDate), formatTime(d.UpdatedAt), d.ID, d.FamilyID)
	if err != nil {
		return core.Debt{}, fmt.Errorf("update debt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Debt{}, core.ErrDebtNotFound
	}
	return d, nil
}

func (q *Queries) SetDebtBalance(ctx context.Context, id string, balance decimal.Decimal, archived bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE debts SET current_balance = ?, is_archived = ?, updated_at = ? WHERE id = ?`,
		toMinor(balance), boolInt(archived), formatTime(q.now()), id)
	if err != nil {
		return fmt.Errorf("set debt balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrDebtNotFound
	}
	return nil
}

func (q *Queries) DeleteDebt(ctx context.Context, familyID, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM debts WHERE id = ? AND family_id = ?`, id, familyID)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrDebtNotFound
	}
	return nil
}

// FindOpenDebtForRecurring returns the non-archived debt created from a
// recurring expense, or core.ErrDebtNotFound.
func (q *Queries) FindOpenDebtForRecurring(ctx context.Context, familyID, recurringID string) (core.Debt, error) {
	d, err := scanDebt(q.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts
		WHERE family_id = ? AND source_recurring_id = ? AND is_archived = 0
		ORDER BY created_at DESC LIMIT 1`, familyID, recurringID))
	if err != nil {
		return core.Debt{}, notFound(err, core.ErrDebtNotFound)
	}
	return d, nil
}

const debtPaymentColumns = `id, debt_id, amount, payment_date, notes, is_adjustment, created_at`

func scanDebtPayment(row scanner) (core.DebtPayment, error) {
	var (
		p           core.DebtPayment
		amount      int64
		paymentDate sql.NullString
		adjustment  int
		created     string
	)
	if err := row.Scan(&p.ID, &p.DebtID, &amount, &paymentDate, &p.Notes, &adjustment, &created); err != nil {
		return core.DebtPayment{}, err
	}
	p.Amount = fromMinor(amount)
	p.PaymentDate = parseDate(paymentDate)
	p.IsAdjustment = adjustment == 1
	p.CreatedAt = parseTime(created)
	return p, nil
}

func (q *Queries) CreateDebtPayment(ctx context.Context, p core.DebtPayment) (core.DebtPayment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = q.now().UTC().Truncate(time.Second)
	if p.PaymentDate.IsZero() {
		p.PaymentDate = core.DateOf(p.CreatedAt)
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO debt_payments (`+debtPaymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DebtID, toMinor(p.Amount), p.PaymentDate.String(), p.Notes,
		boolInt(p.IsAdjustment), formatTime(p.CreatedAt))
	if err != nil {
		return core.DebtPayment{}, fmt.Errorf("insert debt payment: %w", err)
	}
	return p, nil
}

// ListDebtPayments returns the newest payments of a debt, up to limit.
func (q *Queries) ListDebtPayments(ctx context.Context, debtID string, limit int) ([]core.DebtPayment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+debtPaymentColumns+` FROM debt_payments WHERE debt_id = ?
		ORDER BY payment_date DESC, created_at DESC LIMIT ?`, debtID, limit)
	if err != nil {
		return nil, fmt.Errorf("list debt payments: %w", err)
	}
	defer rows.Close()

	var out []core.DebtPayment
	for rows.Next() {
		p, err := scanDebtPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SumDebtPayments totals every payment row of a debt, adjustments included.
func (q *Queries) SumDebtPayments(ctx context.Context, debtID string) (decimal.Decimal, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM debt_payments WHERE debt_id = ?`,
		debtID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum debt payments: %w", err)
	}
	return fromMinor(sum), nil
}
