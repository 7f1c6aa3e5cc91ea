package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "conti/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// Ensure interface conformance
var (
	_ ports.Exporter  = (*Client)(nil)
	_ ports.RowLister = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
// SheetName defaults to "Transactions".
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Transactions"
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheet: sheet}, nil
}

// newSheetsService falls back to GOOGLE_APPLICATION_CREDENTIALS when the
// config names no credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	file := strings.TrimSpace(cfg.CredentialsFile)
	if cfg.CredentialsJSON == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case cfg.CredentialsJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) ready() error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	return nil
}

func (c *Client) idColumn(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) Upsert(ctx context.Context, r ports.Row) (string, error) {
	if strings.TrimSpace(r.TransactionID) == "" {
		return "", errors.New("row without transaction id")
	}
	if err := c.ready(); err != nil {
		return "", err
	}

	ids, err := c.idColumn(ctx)
	if err != nil {
		return "", err
	}
	row := findRow(ids, r.TransactionID)
	if row == 0 {
		row = nextRow(ids)
	}

	rng := fmt.Sprintf("%s!A%d:G%d", c.sheet, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(r)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}
	return rng, nil
}

func (c *Client) Delete(ctx context.Context, transactionID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	ids, err := c.idColumn(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, transactionID)
	if row == 0 {
		slog.DebugContext(ctx, "No sheet row for transaction", "transaction_id", transactionID)
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:G%d", c.sheet, row, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]ports.Row, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("%s!A:G", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []ports.Row
	for _, values := range resp.Values {
		if r, ok := parseRow(toStrings(values)); ok {
			out = append(out, r)
		}
	}
	return out, nil
}
