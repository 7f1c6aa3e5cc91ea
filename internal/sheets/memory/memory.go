package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"conti/internal/sheets"
)

// Store keeps exported rows in insertion order, like a sheet would.
type Store struct {
	mu    sync.Mutex
	index map[string]int
	rows  []sheets.Row
}

var (
	_ sheets.Exporter  = (*Store)(nil)
	_ sheets.RowLister = (*Store)(nil)
)

func New() *Store {
	return &Store{index: map[string]int{}}
}

func (s *Store) Upsert(_ context.Context, r sheets.Row) (string, error) {
	if strings.TrimSpace(r.TransactionID) == "" {
		return "", errors.New("row without transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[r.TransactionID]; ok {
		s.rows[i] = r
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, r)
	s.index[r.TransactionID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Delete blanks the row in place so later row references stay valid.
func (s *Store) Delete(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[transactionID]
	if !ok {
		return nil
	}
	s.rows[i] = sheets.Row{}
	delete(s.index, transactionID)
	return nil
}

// List returns the non-blank rows.
func (s *Store) List(_ context.Context) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.Row, 0, len(s.index))
	for _, r := range s.rows {
		if r.TransactionID != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns the row of transactionID.
func (s *Store) Get(transactionID string) (sheets.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[transactionID]
	if !ok {
		return sheets.Row{}, false
	}
	return s.rows[i], true
}
