// Package backend builds the ledger store and the spreadsheet exporter from
// configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"conti/internal/sheets"
	gsheet "conti/internal/sheets/google"
	sheetsmem "conti/internal/sheets/memory"
	"conti/internal/storage"
	"conti/internal/storage/memory"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// StoreResult is the opened store with its readiness probe.
type StoreResult struct {
	Store   storage.Store
	Ready   func(context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateStore opens the configured ledger store.
func (f *Factory) CreateStore(config Config) (*StoreResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &StoreResult{Store: store, Ready: store.Ping, Cleanup: store.Close}, nil
	case MemoryBackend:
		store := memory.New()
		f.logger.Warn("Initialized memory backend, data is lost on restart")
		return &StoreResult{Store: store, Cleanup: store.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreateExporter returns the Google Sheets exporter when a spreadsheet is
// configured and an in-memory one otherwise.
func (f *Factory) CreateExporter(ctx context.Context, config Config) (sheets.Exporter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Info("No spreadsheet configured, exporting to memory")
		return sheetsmem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets exporter", "spreadsheet_id", config.GoogleSpreadsheetID)
	return client, nil
}
