package google

import (
	"fmt"
	"strings"

	"conti/internal/core"
	ports "conti/internal/sheets"

	"github.com/shopspring/decimal"
)

// Sheet columns: A id, B date, C description, D amount, E account,
// F category, G kind. Row 1 is a header.

func formatRow(r ports.Row) []any {
	return []any{
		r.TransactionID,
		r.Date.String(),
		r.Description,
		r.Amount.StringFixed(2),
		r.AccountID,
		r.CategoryID,
		r.Kind,
	}
}

// parseRow reads a row written by formatRow. Headers, blank and malformed
// rows are skipped.
func parseRow(cols []string) (ports.Row, bool) {
	if len(cols) < 4 || cols[0] == "" || strings.EqualFold(cols[0], "id") {
		return ports.Row{}, false
	}
	date, err := core.ParseDate(cols[1])
	if err != nil {
		return ports.Row{}, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(cols[3], ",", "."))
	if err != nil {
		return ports.Row{}, false
	}
	return ports.Row{
		TransactionID: cols[0],
		Date:          date,
		Description:   cols[2],
		Amount:        amount,
		AccountID:     safeGet(cols, 4),
		CategoryID:    safeGet(cols, 5),
		Kind:          safeGet(cols, 6),
	}, true
}

// findRow returns the 1-based row holding id in column A, or 0.
func findRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

// nextRow returns the row after the last one in use, reusing a cleared row
// when one exists. Row 1 is kept for the header.
func nextRow(values [][]any) int {
	for i, row := range values {
		if i > 0 && (len(row) == 0 || strings.TrimSpace(fmt.Sprint(row[0])) == "") {
			return i + 1
		}
	}
	return max(len(values)+1, 2)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
