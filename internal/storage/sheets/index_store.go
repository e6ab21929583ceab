// Package sheets keeps the posting index in column A of a Google Sheet.
package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// lastRow bounds the write range; the API trims it to the values sent.
const lastRow = 10000000

// Config identifies the spreadsheet holding the index.
type Config struct {
	SpreadsheetID string
	// Sheet is the tab name. Empty means the first tab.
	Sheet string
}

// IndexStore reads and writes identifiers in column A, one per row.
type IndexStore struct {
	values *sheets.SpreadsheetsValuesService
	cfg    Config
}

// NewIndexStore builds a Sheets client from opts.
func NewIndexStore(ctx context.Context, cfg Config, opts ...option.ClientOption) (*IndexStore, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("index.sheets.spreadsheet_id is required")
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &IndexStore{values: svc.Spreadsheets.Values, cfg: cfg}, nil
}

func (s *IndexStore) cellRange(a1 string) string {
	if s.cfg.Sheet == "" {
		return a1
	}
	return fmt.Sprintf("'%s'!%s", s.cfg.Sheet, a1)
}

// LoadIdentifiers returns column A. Blank cells inside the column come back
// as empty strings so the row count stays exact.
func (s *IndexStore) LoadIdentifiers(ctx context.Context) ([]string, error) {
	resp, err := s.values.Get(s.cfg.SpreadsheetID, s.cellRange("A:A")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read index column: %w", err)
	}
	ids := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 || row[0] == nil {
			ids = append(ids, "")
			continue
		}
		ids = append(ids, fmt.Sprint(row[0]))
	}
	return ids, nil
}

// AppendIdentifiers writes ids into A{offset+1} downward.
func (s *IndexStore) AppendIdentifiers(ctx context.Context, offset int, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([][]any, len(ids))
	for i, id := range ids {
		rows[i] = []any{id}
	}
	a1 := s.cellRange(fmt.Sprintf("A%d:A%d", offset+1, lastRow))
	_, err := s.values.Update(s.cfg.SpreadsheetID, a1, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write index rows at %s: %w", a1, err)
	}
	return nil
}
