package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
	"famfinance/internal/storage"
)

// testNow is Sunday 2026-03-15, noon UTC.
var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

const groceries int64 = 4

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

type staticRates struct {
	base  string
	rates map[string]decimal.Decimal
}

func (r staticRates) Base() string { return r.base }

func (r staticRates) RateToBase(code string) decimal.Decimal {
	if v, ok := r.rates[code]; ok {
		return v
	}
	return decimal.NewFromInt(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []amqp.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []amqp.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg amqp.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) count(kind amqp.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, msg := range n.sent {
		if msg.Kind == kind {
			c++
		}
	}
	return c
}

type testEnv struct {
	repo      *storage.SQLiteRepository
	rates     staticRates
	publisher *recordingPublisher
	notifier  *recordingNotifier
	family    core.Family
	admin     core.User
	member    core.User

	ledger    *LedgerService
	debts     *DebtService
	goals     *GoalService
	recurring *RecurringService
	budgets   *BudgetService
	settings  *SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	q := repo.Queries()
	family, err := q.CreateFamily(ctx, core.Family{Name: "García"})
	assert.NoError(t, err)
	admin, err := q.CreateUser(ctx, core.User{
		FamilyID: family.ID, Email: "ana@example.com", Name: "Ana", PasswordHash: "x", Role: core.RoleAdmin,
	})
	assert.NoError(t, err)
	member, err := q.CreateUser(ctx, core.User{
		FamilyID: family.ID, Email: "luis@example.com", PasswordHash: "x", Role: core.RoleMember,
	})
	assert.NoError(t, err)

	env := &testEnv{
		repo: repo,
		rates: staticRates{base: "MXN", rates: map[string]decimal.Decimal{
			"USD": dec("17.5"),
			"EUR": dec("19.1234567"),
		}},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		family:    family,
		admin:     admin,
		member:    member,
	}
	opts := []Option{
		WithClock(func() time.Time { return testNow }),
		WithPublisher(env.publisher),
		WithNotifier(env.notifier),
	}
	env.ledger = NewLedgerService(repo, env.rates, opts...)
	env.debts = NewDebtService(repo, env.rates, opts...)
	env.goals = NewGoalService(repo, env.rates, opts...)
	env.recurring = NewRecurringService(repo, env.rates, opts...)
	env.budgets = NewBudgetService(repo, env.rates, opts...)
	env.settings = NewSettingsService(repo, env.rates, opts...)
	return env
}

func (e *testEnv) expense(t *testing.T, amount string, category *int64, at time.Time) core.Transaction {
	t.Helper()
	tx, err := e.ledger.Create(context.Background(), e.family.ID, e.admin.ID, TransactionInput{
		CategoryID:     category,
		AmountOriginal: dec(amount),
		TrxDate:        at,
		Type:           core.TypeExpense,
	})
	assert.NoError(t, err)
	return tx
}

func ptr[T any](v T) *T { return &v }
