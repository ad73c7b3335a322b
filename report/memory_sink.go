package report

import (
	"context"
	"errors"
	"sync"
)

// MemorySink keeps committed tables in memory. Staged rows are invisible
// until Commit.
type MemorySink struct {
	mu        sync.RWMutex
	committed map[string]Table
	writes    int

	// FailOn makes WriteBatch fail for the named table.
	FailOn string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{committed: make(map[string]Table)}
}

func (s *MemorySink) Begin(_ context.Context, table string, header []string) (Staging, error) {
	return &memoryStaging{sink: s, table: Table{Name: table, Header: append([]string(nil), header...)}}, nil
}

// Table returns the committed version of a table.
func (s *MemorySink) Table(name string) (Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.committed[name]
	return t, ok
}

// Writes returns the number of batches written across all tables.
func (s *MemorySink) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

type memoryStaging struct {
	sink  *MemorySink
	table Table
	done  bool
}

func (m *memoryStaging) WriteBatch(_ context.Context, rows [][]string) error {
	if m.done {
		return errors.New("report: staging already closed")
	}
	if m.sink.FailOn == m.table.Name {
		return errors.New("report: write rejected")
	}
	for _, r := range rows {
		m.table.Rows = append(m.table.Rows, append([]string(nil), r...))
	}
	m.sink.mu.Lock()
	m.sink.writes++
	m.sink.mu.Unlock()
	return nil
}

func (m *memoryStaging) Commit(_ context.Context) error {
	if m.done {
		return errors.New("report: staging already closed")
	}
	m.done = true
	m.sink.mu.Lock()
	m.sink.committed[m.table.Name] = m.table
	m.sink.mu.Unlock()
	return nil
}

func (m *memoryStaging) Abort(_ context.Context) error {
	m.done = true
	return nil
}
