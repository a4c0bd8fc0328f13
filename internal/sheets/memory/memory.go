package memory

import (
	"context"
	"slices"
	"sync"

	ports "orcamento/internal/sheets"
)

// Store keeps written report tabs in memory. It stands in for a spreadsheet
// in local runs and tests.
type Store struct {
	mu   sync.Mutex
	base string
	tabs map[string][][]any
}

var _ ports.ReportWriter = (*Store)(nil)

func New(base string) *Store {
	if base == "" {
		base = ports.DefaultTabBase
	}
	return &Store{base: base, tabs: map[string][][]any{}}
}

// WriteReport replaces the tab of fiscalYear with a copy of values.
func (s *Store) WriteReport(_ context.Context, fiscalYear int, values [][]any) (string, error) {
	tab := ports.TabName(s.base, fiscalYear)
	rows := make([][]any, len(values))
	width := 0
	for i, row := range values {
		rows[i] = slices.Clone(row)
		width = max(width, len(row))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[tab] = rows
	return ports.A1Range(tab, len(rows), width), nil
}

// Tab returns the values last written to tab.
func (s *Store) Tab(tab string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tabs[tab]
	return rows, ok
}

// Tabs lists the written tab names, sorted.
func (s *Store) Tabs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tabs))
	for name := range s.tabs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
