// Package backend picks the spreadsheet mirror the ledger-worker writes to.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"famfinance/internal/config"
	"famfinance/internal/sheets"
	gsheet "famfinance/internal/sheets/google"
	"famfinance/internal/sheets/memory"
)

// MirrorType names a sheets.LedgerMirror implementation.
type MirrorType string

const (
	SheetsMirror MirrorType = "sheets"
	MemoryMirror MirrorType = "memory"
)

func (t MirrorType) String() string {
	return string(t)
}

func (t MirrorType) IsValid() bool {
	switch t {
	case SheetsMirror, MemoryMirror:
		return true
	default:
		return false
	}
}

// Config holds what the factory needs to build a mirror.
type Config struct {
	Type                MirrorType
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// FromAppConfig resolves the mirror type. An empty MIRROR_BACKEND means
// sheets when a spreadsheet ID is set, memory otherwise.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	t := MirrorType(app.MirrorBackend)
	if t == "" {
		t = MemoryMirror
		if app.GoogleSpreadsheetID != "" {
			t = SheetsMirror
		}
	}
	cfg := Config{
		Type:                t,
		GoogleSpreadsheetID: app.GoogleSpreadsheetID,
		GoogleSheetName:     app.GoogleSheetName,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid mirror backend: %s", c.Type)
	}
	if c.Type == SheetsMirror && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("spreadsheet ID is required for the sheets mirror")
	}
	return nil
}

// NewMirror builds the configured mirror.
func NewMirror(ctx context.Context, cfg Config, logger *slog.Logger) (sheets.LedgerMirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case SheetsMirror:
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			return nil, fmt.Errorf("google sheets mirror: %w", err)
		}
		logger.Info("Initialized Google Sheets mirror",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
		return client, nil
	default:
		logger.Info("Initialized in-memory mirror")
		return memory.New(), nil
	}
}
