package sheets

import (
	"context"
)

// Ports for outbound adapters.
type (
	// LedgerWriter mirrors a transaction as one spreadsheet row. Writing the
	// same sync id twice replaces the earlier row.
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, row Row) (rowRef string, err error)
	}

	// LedgerDeleter removes the row of a transaction by sync id. A missing
	// row is not an error.
	LedgerDeleter interface {
		DeleteTransaction(ctx context.Context, syncID string) error
	}

	// LedgerMirror is implemented by adapters that support both.
	LedgerMirror interface {
		LedgerWriter
		LedgerDeleter
	}
)
