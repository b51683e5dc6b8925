package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"famfinance/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero fields are ignored.
type TransactionFilter struct {
	Type         core.TransactionType
	CategoryID   *int64
	CurrencyCode string
	UserID       string
	DateFrom     *time.Time
	DateTo       *time.Time
	MinAmount    *decimal.Decimal
	MaxAmount    *decimal.Decimal
	Search       string
}

func (f TransactionFilter) where(familyID string) (string, []any) {
	clauses := []string{"family_id = ?"}
	args := []any{familyID}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.CategoryID != nil {
		clauses = append(clauses, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.CurrencyCode != "" {
		clauses = append(clauses, "currency_code = ?")
		args = append(args, f.CurrencyCode)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "trx_date >= ?")
		args = append(args, formatTime(*f.DateFrom))
	}
	if f.DateTo != nil {
		clauses = append(clauses, "trx_date <= ?")
		args = append(args, formatTime(*f.DateTo))
	}
	if f.MinAmount != nil {
		clauses = append(clauses, "amount_base >= ?")
		args = append(args, toMinor(*f.MinAmount))
	}
	if f.MaxAmount != nil {
		clauses = append(clauses, "amount_base <= ?")
		args = append(args, toMinor(*f.MaxAmount))
	}
	if f.Search != "" {
		clauses = append(clauses, `description_fold LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(strings.ToLower(f.Search)))
	}
	return strings.Join(clauses, " AND "), args
}

const transactionColumns = `id, family_id, user_id, category_id, amount_original, currency_code,
	exchange_rate, amount_base, trx_date, type, description, attachment_url, attachment_thumb_url,
	is_invoiced, sync_id, debt_id, recurring_expense_id, created_at, updated_at`

// foldDescription is the search key for description. SQLite's own LIKE and
// lower() only fold ASCII.
func foldDescription(s string) string {
	return strings.ToLower(s)
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                       core.Transaction
		userID, debtID, recurID sql.NullString
		categoryID              sql.NullInt64
		amount, rate, base      int64
		trxDate, typ            string
		invoiced                int
		created, updated        string
	)
	err := row.Scan(&t.ID, &t.FamilyID, &userID, &categoryID, &amount, &t.CurrencyCode,
		&rate, &base, &trxDate, &typ, &t.Description, &t.AttachmentURL, &t.AttachmentThumbURL,
		&invoiced, &t.SyncID, &debtID, &recurID, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	t.UserID = userID.String
	t.CategoryID = int64Ptr(categoryID)
	t.AmountOriginal = fromMinor(amount)
	t.ExchangeRate = fromRateUnits(rate)
	t.AmountBase = fromMinor(base)
	t.TrxDate = parseTime(trxDate)
	t.Type = core.TransactionType(typ)
	t.IsInvoiced = invoiced == 1
	t.DebtID = debtID.String
	t.RecurringExpenseID = recurID.String
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// CreateTransaction inserts t, filling the id, sync id and timestamps when
// empty. A repeated sync id returns core.ErrDuplicateSyncID.
func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := q.now().UTC().Truncate(time.Second)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.SyncID == "" {
		t.SyncID = uuid.NewString()
	}
	if t.TrxDate.IsZero() {
		t.TrxDate = now
	}
	t.TrxDate = t.TrxDate.UTC().Truncate(time.Second)
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`, description_fold)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, nullString(t.UserID), nullInt64(t.CategoryID), toMinor(t.AmountOriginal),
		t.CurrencyCode, toRateUnits(t.ExchangeRate), toMinor(t.AmountBase), formatTime(t.TrxDate),
		string(t.Type), t.Description, t.AttachmentURL, t.AttachmentThumbURL, boolInt(t.IsInvoiced),
		t.SyncID, nullString(t.DebtID), nullString(t.RecurringExpenseID),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), foldDescription(t.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Transaction{}, core.ErrDuplicateSyncID
		}
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// GetTransaction loads a transaction scoped to its family.
func (q *Queries) GetTransaction(ctx context.Context, familyID, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND family_id = ?`, id, familyID))
	if err != nil {
		return core.Transaction{}, notFound(err, core.ErrTransactionNotFound)
	}
	return t, nil
}

// GetTransactionByID loads a transaction without tenant scoping, for workers.
func (q *Queries) GetTransactionByID(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return core.Transaction{}, notFound(err, core.ErrTransactionNotFound)
	}
	return t, nil
}

// UpdateTransaction rewrites the mutable columns and clears mirrored_at so the
// row is mirrored again.
func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.UpdatedAt = q.now().UTC().Truncate(time.Second)
	t.TrxDate = t.TrxDate.UTC().Truncate(time.Second)
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ?, amount_original = ?, currency_code = ?,
			exchange_rate = ?, amount_base = ?, trx_date = ?, type = ?, description = ?,
			description_fold = ?, is_invoiced = ?, mirrored_at = NULL, updated_at = ?
		WHERE id = ? AND family_id = ?`,
		nullInt64(t.CategoryID), toMinor(t.AmountOriginal), t.CurrencyCode, toRateUnits(t.ExchangeRate),
		toMinor(t.AmountBase), formatTime(t.TrxDate), string(t.Type), t.Description,
		foldDescription(t.Description), boolInt(t.IsInvoiced), formatTime(t.UpdatedAt), t.ID, t.FamilyID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	return t, nil
}

func (q *Queries) DeleteTransaction(ctx context.Context, familyID, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND family_id = ?`, id, familyID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrTransactionNotFound
	}
	return nil
}

// ListTransactions returns one page ordered by trx_date descending, plus the
// total number of rows matching the filter.
func (q *Queries) ListTransactions(ctx context.Context, familyID string, f TransactionFilter, page, size int) ([]core.Transaction, int, error) {
	where, args := f.where(familyID)

	var total int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	offset := (page - 1) * size
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+
			` ORDER BY trx_date DESC, created_at DESC LIMIT ? OFFSET ?`,
		append(args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	items := make([]core.Transaction, 0, size)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// SumByType totals amount_base per type in [from, to], optionally for one
// category. Nil bounds are open.
func (q *Queries) SumByType(ctx context.Context, familyID string, from, to *time.Time, categoryID *int64) (map[core.TransactionType]decimal.Decimal, error) {
	where, args := TransactionFilter{DateFrom: from, DateTo: to, CategoryID: categoryID}.where(familyID)
	rows, err := q.db.QueryContext(ctx,
		`SELECT type, COALESCE(SUM(amount_base), 0) FROM transactions WHERE `+where+` GROUP BY type`, args...)
	if err != nil {
		return nil, fmt.Errorf("sum by type: %w", err)
	}
	defer rows.Close()

	totals := map[core.TransactionType]decimal.Decimal{
		core.TypeIncome:  decimal.Zero,
		core.TypeExpense: decimal.Zero,
		core.TypeDebt:    decimal.Zero,
		core.TypeSaving:  decimal.Zero,
	}
	for rows.Next() {
		var (
			typ string
			sum int64
		)
		if err := rows.Scan(&typ, &sum); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		totals[core.TransactionType(typ)] = fromMinor(sum)
	}
	return totals, rows.Err()
}

// MemberTotals is one user's INCOME and EXPENSE totals. UserID is empty for
// rows whose user is unknown.
type MemberTotals struct {
	UserID  string
	Name    string
	Email   string
	Income  decimal.Decimal
	Expense decimal.Decimal
	Count   int
}

// SumByMember groups INCOME and EXPENSE rows by user in [from, to].
func (q *Queries) SumByMember(ctx context.Context, familyID string, from, to *time.Time) ([]MemberTotals, error) {
	where, args := TransactionFilter{DateFrom: from, DateTo: to}.where(familyID)
	rows, err := q.db.QueryContext(ctx,
		`SELECT t.user_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
			COALESCE(SUM(CASE WHEN t.type = 'INCOME' THEN t.amount_base ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.type = 'EXPENSE' THEN t.amount_base ELSE 0 END), 0),
			COUNT(*)
		FROM (SELECT * FROM transactions WHERE `+where+` AND type IN ('INCOME', 'EXPENSE')) t
		LEFT JOIN users u ON u.id = t.user_id
		GROUP BY t.user_id
		ORDER BY 5 DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("sum by member: %w", err)
	}
	defer rows.Close()

	var out []MemberTotals
	for rows.Next() {
		var (
			m               MemberTotals
			userID          sql.NullString
			income, expense int64
		)
		if err := rows.Scan(&userID, &m.Name, &m.Email, &income, &expense, &m.Count); err != nil {
			return nil, fmt.Errorf("scan member totals: %w", err)
		}
		m.UserID = userID.String
		m.Income = fromMinor(income)
		m.Expense = fromMinor(expense)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SumExpenses totals EXPENSE amount_base for one category in [from, to].
func (q *Queries) SumExpenses(ctx context.Context, familyID string, categoryID int64, from, to time.Time) (decimal.Decimal, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_base), 0) FROM transactions
		WHERE family_id = ? AND category_id = ? AND type = 'EXPENSE' AND trx_date >= ? AND trx_date <= ?`,
		familyID, categoryID, formatTime(from), formatTime(to)).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return fromMinor(sum), nil
}

func (q *Queries) CountTransactions(ctx context.Context, familyID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE family_id = ?`, familyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (q *Queries) SetAttachment(ctx context.Context, familyID, id, url, thumbURL string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET attachment_url = ?, attachment_thumb_url = ?, updated_at = ?
		WHERE id = ? AND family_id = ?`,
		url, thumbURL, formatTime(q.now()), id, familyID)
	if err != nil {
		return fmt.Errorf("set attachment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrTransactionNotFound
	}
	return nil
}

// ListUnmirrored returns the oldest rows not yet copied to the spreadsheet.
func (q *Queries) ListUnmirrored(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE mirrored_at IS NULL
		ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmirrored: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) MarkMirrored(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE transactions SET mirrored_at = ? WHERE id = ?`, formatTime(q.now()), id)
	if err != nil {
		return fmt.Errorf("mark mirrored: %w", err)
	}
	return nil
}
