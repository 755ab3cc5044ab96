// Package memstore is an in-memory store.Store for tests.
package memstore

import (
	"context"
	"sync"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
)

// Store keeps rows and the index snapshot in memory.
type Store struct {
	mu      sync.RWMutex
	rows    []dataset.Row
	snap    index.Snapshot
	hasSnap bool
	labels  map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{labels: make(map[string]string)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveRows replaces the stored rows.
func (s *Store) SaveRows(ctx context.Context, rows []dataset.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = copyRows(rows)
	return nil
}

// LoadRows returns the stored rows.
func (s *Store) LoadRows(ctx context.Context) ([]dataset.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRows(s.rows), nil
}

// SaveIndex replaces the stored snapshot.
func (s *Store) SaveIndex(ctx context.Context, snap index.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.hasSnap = true
	return nil
}

// LoadIndex returns the stored snapshot if one was saved.
func (s *Store) LoadIndex(ctx context.Context) (index.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.hasSnap, nil
}

// GetLabel implements store.LabelCache.
func (s *Store) GetLabel(ctx context.Context, prompt string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	label, ok := s.labels[prompt]
	return label, ok, nil
}

// PutLabel implements store.LabelCache.
func (s *Store) PutLabel(ctx context.Context, prompt, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[prompt] = label
	return nil
}

func copyRows(rows []dataset.Row) []dataset.Row {
	out := make([]dataset.Row, len(rows))
	for i, row := range rows {
		entities := make([]string, len(row.Entities))
		copy(entities, row.Entities)
		row.Entities = entities
		out[i] = row
	}
	return out
}
