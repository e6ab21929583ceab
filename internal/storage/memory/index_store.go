package memory

import (
	"context"
	"fmt"
	"sync"
)

// IndexStore is an in-memory posting index with row semantics matching the
// spreadsheet backend.
type IndexStore struct {
	mu   sync.RWMutex
	rows []string
}

// NewIndexStore seeds the index with rows.
func NewIndexStore(rows ...string) *IndexStore {
	return &IndexStore{rows: append([]string(nil), rows...)}
}

// LoadIdentifiers returns a copy of every row.
func (s *IndexStore) LoadIdentifiers(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rows...), nil
}

// AppendIdentifiers writes ids starting at row offset+1, padding any gap with
// blank rows and overwriting rows already there.
func (s *IndexStore) AppendIdentifiers(_ context.Context, offset int, ids []string) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.rows) < offset+len(ids) {
		s.rows = append(s.rows, "")
	}
	copy(s.rows[offset:], ids)
	return nil
}
