package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
	"famfinance/internal/sheets"
	"famfinance/internal/storage"
)

// Store gives the worker access to the ledger.
type Store interface {
	Queries() *storage.Queries
}

// MirrorConfig holds configuration for the mirror worker.
type MirrorConfig struct {
	// PollInterval is how often unmirrored rows are swept (default: 1m).
	PollInterval time.Duration

	// BatchSize is the max number of rows per sweep (default: 10).
	BatchSize int
}

// DefaultMirrorConfig returns sensible defaults
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		PollInterval: time.Minute,
		BatchSize:    10,
	}
}

// MirrorWorker copies the transaction log to a spreadsheet. Ledger events
// from AMQP are the fast path; a periodic sweep of rows never marked as
// mirrored catches anything the events missed.
type MirrorWorker struct {
	store   Store
	writer  sheets.LedgerWriter
	deleter sheets.LedgerDeleter
	config  MirrorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorWorker(store Store, writer sheets.LedgerWriter, deleter sheets.LedgerDeleter, config MirrorConfig) *MirrorWorker {
	def := DefaultMirrorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &MirrorWorker{
		store:   store,
		writer:  writer,
		deleter: deleter,
		config:  config,
	}
}

// HandleLedgerEvent applies one ledger event to the spreadsheet.
func (w *MirrorWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"kind", ev.Kind,
		"transaction_id", ev.TransactionID,
		"family_id", ev.FamilyID)

	if ev.Kind == amqp.EventDeleted {
		if w.deleter == nil {
			slog.WarnContext(ctx, "No deleter configured, skipping deletion", "sync_id", ev.SyncID)
			return nil
		}
		if err := w.deleter.DeleteTransaction(ctx, ev.SyncID); err != nil {
			return fmt.Errorf("delete row %s: %w", ev.SyncID, err)
		}
		slog.InfoContext(ctx, "Deleted transaction from sheet", "sync_id", ev.SyncID)
		return nil
	}

	t, err := w.store.Queries().GetTransactionByID(ctx, ev.TransactionID)
	if errors.Is(err, core.ErrTransactionNotFound) {
		// Deleted after the event was published; the delete event follows.
		slog.InfoContext(ctx, "Transaction no longer exists, skipping", "transaction_id", ev.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	return w.mirror(ctx, t)
}

// ProcessPending mirrors one batch of rows that were never mirrored.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	return w.sweep(ctx, w.config.BatchSize)
}

// StartupSyncCheck runs a larger sweep, to recover from worker downtime.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	return w.sweep(ctx, w.config.BatchSize*5)
}

func (w *MirrorWorker) sweep(ctx context.Context, limit int) error {
	pending, err := w.store.Queries().ListUnmirrored(ctx, limit)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	var synced, failed int
	for _, t := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.mirror(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction", "transaction_id", t.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Pending sweep completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *MirrorWorker) mirror(ctx context.Context, t core.Transaction) error {
	ref, err := w.writer.AppendTransaction(ctx, sheets.RowFromTransaction(t))
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.store.Queries().MarkMirrored(ctx, t.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as mirrored", "transaction_id", t.ID, "error", err)
		// The row is written; the next sweep rewrites it in place.
	}

	slog.InfoContext(ctx, "Mirrored transaction",
		"transaction_id", t.ID,
		"sheets_ref", ref,
		"amount_base", t.AmountBase.String())
	return nil
}

// Start begins the sweep loop. Returns an error if already running.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("mirror worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Mirror worker started",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop gracefully stops the sweep loop and waits for completion.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning returns whether the sweep loop is running
func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}
