package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ports "conti/internal/sheets"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "sheet"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{
		SpreadsheetID:   "sheet",
		CredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got: %v", err)
	}
}

func TestNew_InvalidCredentialsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), Config{SpreadsheetID: "sheet", CredentialsFile: path}); err == nil {
		t.Fatal("expected error for invalid credentials")
	}
}

func TestClient_UninitializedService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheet: "Transactions"}
	ctx := context.Background()

	if _, err := c.Upsert(ctx, ports.Row{TransactionID: "t1"}); err == nil {
		t.Error("Upsert() should fail without a service")
	}
	if err := c.Delete(ctx, "t1"); err == nil {
		t.Error("Delete() should fail without a service")
	}
	if _, err := c.List(ctx); err == nil {
		t.Error("List() should fail without a service")
	}
}

func TestClient_UpsertRequiresID(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheet: "Transactions"}
	_, err := c.Upsert(context.Background(), ports.Row{Description: "x"})
	if err == nil || !strings.Contains(err.Error(), "transaction id") {
		t.Errorf("Upsert() error = %v, want missing id", err)
	}
}
