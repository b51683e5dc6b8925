package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"famfinance/internal/core"
)

func (q *Queries) CreateFamily(ctx context.Context, f core.Family) (core.Family, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Settings == nil {
		f.Settings = map[string]any{}
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = q.now().UTC().Truncate(1e9)
	}
	settings, err := json.Marshal(f.Settings)
	if err != nil {
		return core.Family{}, fmt.Errorf("encode family settings: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO families (id, name, settings, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, string(settings), formatTime(f.CreatedAt))
	if err != nil {
		return core.Family{}, fmt.Errorf("insert family: %w", err)
	}
	return f, nil
}

func (q *Queries) GetFamily(ctx context.Context, id string) (core.Family, error) {
	var (
		f        core.Family
		settings string
		created  string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, settings, created_at FROM families WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &settings, &created)
	if err != nil {
		return core.Family{}, notFound(err, core.ErrFamilyNotFound)
	}
	if err := json.Unmarshal([]byte(settings), &f.Settings); err != nil {
		return core.Family{}, fmt.Errorf("decode family settings: %w", err)
	}
	if f.Settings == nil {
		f.Settings = map[string]any{}
	}
	f.CreatedAt = parseTime(created)
	return f, nil
}

func (q *Queries) UpdateFamilySettings(ctx context.Context, id string, settings map[string]any) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode family settings: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `UPDATE families SET settings = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return fmt.Errorf("update family settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrFamilyNotFound
	}
	return nil
}

// ListFamilyIDs returns every tenant id, for the background workers.
func (q *Queries) ListFamilyIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM families ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const userColumns = `id, family_id, email, name, password_hash, role, is_active, created_at`

func scanUser(row scanner) (core.User, error) {
	var (
		u       core.User
		role    string
		active  int
		created string
	)
	if err := row.Scan(&u.ID, &u.FamilyID, &u.Email, &u.Name, &u.PasswordHash, &role, &active, &created); err != nil {
		return core.User{}, err
	}
	u.Role = core.Role(role)
	u.IsActive = active == 1
	u.CreatedAt = parseTime(created)
	return u, nil
}

// CreateUser inserts an active user.
func (q *Queries) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = q.now().UTC().Truncate(1e9)
	}
	u.IsActive = true
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		u.ID, u.FamilyID, u.Email, u.Name, u.PasswordHash, string(u.Role), formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrDuplicateEmail
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, notFound(err, core.ErrUserNotFound)
	}
	return u, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email))
	if err != nil {
		return core.User{}, notFound(err, core.ErrUserNotFound)
	}
	return u, nil
}

// UpdateUserProfile rewrites name and email. A taken email returns
// core.ErrDuplicateEmail.
func (q *Queries) UpdateUserProfile(ctx context.Context, u core.User) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET name = ?, email = ? WHERE id = ?`, u.Name, u.Email, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// DeactivateUser soft-deletes an active member of a family.
func (q *Queries) DeactivateUser(ctx context.Context, familyID, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE users SET is_active = 0 WHERE id = ? AND family_id = ? AND is_active = 1`, id, familyID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrMemberNotFound
	}
	return nil
}

// ListUsers returns the active users of a family, oldest first.
func (q *Queries) ListUsers(ctx context.Context, familyID string) ([]core.User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE family_id = ? AND is_active = 1 ORDER BY created_at, rowid`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// FirstAdmin returns the oldest active admin of a family.
func (q *Queries) FirstAdmin(ctx context.Context, familyID string) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE family_id = ? AND role = 'ADMIN' AND is_active = 1 ORDER BY created_at, rowid LIMIT 1`, familyID))
	if err != nil {
		return core.User{}, notFound(err, core.ErrUserNotFound)
	}
	return u, nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, icon, type FROM categories ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c   core.Category
			typ string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	err := q.db.QueryRowContext(ctx, `SELECT id, name, icon, type FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Icon, &typ)
	if err != nil {
		return core.Category{}, notFound(err, core.ErrCategoryNotFound)
	}
	c.Type = core.CategoryType(typ)
	return c, nil
}
