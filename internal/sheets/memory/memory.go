package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"famfinance/internal/sheets"
)

// Store is an in-process ledger mirror, used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var _ sheets.LedgerMirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendTransaction stores the row, replacing a row with the same sync id,
// and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, r sheets.Row) (string, error) {
	if r.SyncID == "" {
		return "", errors.New("row has no sync id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].SyncID == r.SyncID {
			s.rows[i] = r
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) DeleteTransaction(_ context.Context, syncID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].SyncID == syncID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Rows returns a copy of the mirrored rows in insertion order.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}
