package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
	"famfinance/internal/sheets"
	"famfinance/internal/sheets/memory"
	"famfinance/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedTransaction(t *testing.T, repo *storage.SQLiteRepository, amount string) core.Transaction {
	t.Helper()
	ctx := context.Background()
	q := repo.Queries()
	fam, err := q.CreateFamily(ctx, core.Family{Name: "Mirror"})
	if err != nil {
		t.Fatalf("CreateFamily() error = %v", err)
	}
	a := decimal.RequireFromString(amount)
	tx, err := q.CreateTransaction(ctx, core.Transaction{
		FamilyID:       fam.ID,
		AmountOriginal: a,
		CurrencyCode:   "MXN",
		ExchangeRate:   decimal.NewFromInt(1),
		AmountBase:     a,
		TrxDate:        time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
		Type:           core.TypeExpense,
		Description:    "Groceries",
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	return tx
}

type failingWriter struct{}

func (failingWriter) AppendTransaction(context.Context, sheets.Row) (string, error) {
	return "", errors.New("sheets unavailable")
}

func TestDefaultMirrorConfig(t *testing.T) {
	config := DefaultMirrorConfig()

	if config.PollInterval != time.Minute {
		t.Errorf("expected PollInterval 1m, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
}

func TestNewMirrorWorker_FillsDefaults(t *testing.T) {
	w := NewMirrorWorker(nil, nil, nil, MirrorConfig{})
	if w.config != DefaultMirrorConfig() {
		t.Errorf("config = %+v, want defaults", w.config)
	}
}

func TestMirrorWorker_HandleCreatedEvent(t *testing.T) {
	repo := newTestRepo(t)
	tx := seedTransaction(t, repo, "125.50")
	mem := memory.New()
	w := NewMirrorWorker(repo, mem, mem, DefaultMirrorConfig())

	ev := amqp.NewLedgerEvent(amqp.EventCreated, tx.FamilyID, tx.ID, tx.SyncID)
	if err := w.HandleLedgerEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleLedgerEvent() error = %v", err)
	}

	rows := mem.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].SyncID != tx.SyncID || !rows[0].AmountBase.Equal(tx.AmountBase) {
		t.Errorf("row = %+v, want sync id %s amount %s", rows[0], tx.SyncID, tx.AmountBase)
	}

	pending, err := repo.Queries().ListUnmirrored(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListUnmirrored() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected transaction to be marked mirrored, %d pending", len(pending))
	}
}

func TestMirrorWorker_UpdatedEventReplacesRow(t *testing.T) {
	repo := newTestRepo(t)
	tx := seedTransaction(t, repo, "10")
	mem := memory.New()
	w := NewMirrorWorker(repo, mem, mem, DefaultMirrorConfig())
	ctx := context.Background()

	if err := w.HandleLedgerEvent(ctx, amqp.NewLedgerEvent(amqp.EventCreated, tx.FamilyID, tx.ID, tx.SyncID)); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := w.HandleLedgerEvent(ctx, amqp.NewLedgerEvent(amqp.EventUpdated, tx.FamilyID, tx.ID, tx.SyncID)); err != nil {
		t.Fatalf("updated: %v", err)
	}
	if n := len(mem.Rows()); n != 1 {
		t.Errorf("expected a single row after update, got %d", n)
	}
}

func TestMirrorWorker_HandleDeletedEvent(t *testing.T) {
	repo := newTestRepo(t)
	tx := seedTransaction(t, repo, "10")
	mem := memory.New()
	w := NewMirrorWorker(repo, mem, mem, DefaultMirrorConfig())
	ctx := context.Background()

	if err := w.HandleLedgerEvent(ctx, amqp.NewLedgerEvent(amqp.EventCreated, tx.FamilyID, tx.ID, tx.SyncID)); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := w.HandleLedgerEvent(ctx, amqp.NewLedgerEvent(amqp.EventDeleted, tx.FamilyID, tx.ID, tx.SyncID)); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if n := len(mem.Rows()); n != 0 {
		t.Errorf("expected row to be removed, got %d rows", n)
	}
}

func TestMirrorWorker_MissingTransactionIsSkipped(t *testing.T) {
	repo := newTestRepo(t)
	mem := memory.New()
	w := NewMirrorWorker(repo, mem, mem, DefaultMirrorConfig())

	ev := amqp.NewLedgerEvent(amqp.EventCreated, "fam", "does-not-exist", "sync")
	if err := w.HandleLedgerEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleLedgerEvent() error = %v, want nil", err)
	}
	if n := len(mem.Rows()); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}
}

func TestMirrorWorker_DeleteWithoutDeleter(t *testing.T) {
	w := NewMirrorWorker(nil, memory.New(), nil, DefaultMirrorConfig())
	ev := amqp.NewLedgerEvent(amqp.EventDeleted, "fam", "tx", "sync")
	if err := w.HandleLedgerEvent(context.Background(), ev); err != nil {
		t.Errorf("HandleLedgerEvent() error = %v, want nil", err)
	}
}

func TestMirrorWorker_ProcessPending(t *testing.T) {
	repo := newTestRepo(t)
	seedTransaction(t, repo, "1")
	seedTransaction(t, repo, "2")
	mem := memory.New()
	w := NewMirrorWorker(repo, mem, mem, DefaultMirrorConfig())

	if err := w.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n := len(mem.Rows()); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}

	// A second sweep finds nothing left to do.
	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("StartupSyncCheck() error = %v", err)
	}
	if n := len(mem.Rows()); n != 2 {
		t.Errorf("expected 2 rows after second sweep, got %d", n)
	}
}

func TestMirrorWorker_FailedWriteStaysPending(t *testing.T) {
	repo := newTestRepo(t)
	seedTransaction(t, repo, "1")
	w := NewMirrorWorker(repo, failingWriter{}, nil, DefaultMirrorConfig())

	if err := w.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	pending, err := repo.Queries().ListUnmirrored(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListUnmirrored() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected failed row to stay pending, got %d", len(pending))
	}
}

func TestMirrorWorker_IsRunning(t *testing.T) {
	w := NewMirrorWorker(nil, nil, nil, DefaultMirrorConfig())
	if w.IsRunning() {
		t.Error("worker should not be running initially")
	}
}

func TestMirrorWorker_StartTwice(t *testing.T) {
	repo := newTestRepo(t)
	mem := memory.New()
	w := NewMirrorWorker(repo, mem, mem, MirrorConfig{PollInterval: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start() should return error")
	}
	if !w.IsRunning() {
		t.Error("worker should be running after Start")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Error("worker should not be running after Stop")
	}
}

func TestMirrorWorker_StopNotRunning(t *testing.T) {
	w := NewMirrorWorker(nil, nil, nil, DefaultMirrorConfig())
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle worker error = %v", err)
	}
}

func TestMirrorWorker_LoopSweepsPending(t *testing.T) {
	repo := newTestRepo(t)
	seedTransaction(t, repo, "3")
	mem := memory.New()
	w := NewMirrorWorker(repo, mem, mem, MirrorConfig{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deadline := time.After(2 * time.Second)
	for len(mem.Rows()) == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep loop never mirrored the pending row")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
