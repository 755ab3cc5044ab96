// Package jsondir persists a session as a plain directory: the annotated
// rows as data.csv and the index snapshot as histograms.json. This is the
// interchange format the viewer serves and the pipeline writes.
package jsondir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
)

const (
	// DataFile is the annotated dataset file name.
	DataFile = "data.csv"
	// HistogramsFile is the index snapshot file name.
	HistogramsFile = "histograms.json"
)

// Store reads and writes one session directory.
type Store struct {
	dir string
}

// Open creates a store over the given directory, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Dir returns the session directory.
func (s *Store) Dir() string { return s.dir }

// SaveRows writes the annotated dataset to data.csv.
func (s *Store) SaveRows(ctx context.Context, rows []dataset.Row) error {
	f, err := os.Create(filepath.Join(s.dir, DataFile))
	if err != nil {
		return err
	}
	if err := dataset.WriteRows(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadRows reads the annotated dataset from data.csv.
func (s *Store) LoadRows(ctx context.Context) ([]dataset.Row, error) {
	f, err := os.Open(filepath.Join(s.dir, DataFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.ReadAnnotated(f)
}

// histogramsDoc is the on-disk JSON shape. Histograms and ids_by_entity are
// what the viewer consumes; the remaining fields carry the ordering state a
// faithful snapshot restore needs.
type histogramsDoc struct {
	Histograms     map[string][]string `json:"histograms"`
	IDsByEntity    map[string][]int    `json:"ids_by_entity"`
	CategoryOrder  []string            `json:"category_order"`
	UserCategories []string            `json:"user_categories,omitempty"`
	EntityOrder    []string            `json:"entity_order"`
}

// SaveIndex writes the snapshot to histograms.json.
func (s *Store) SaveIndex(ctx context.Context, snap index.Snapshot) error {
	doc := histogramsDoc{
		Histograms:  make(map[string][]string, len(snap.Categories)),
		IDsByEntity: make(map[string][]int, len(snap.Entities)),
	}
	for _, ev := range snap.Entities {
		doc.IDsByEntity[ev.Entity] = ev.Rows
		doc.EntityOrder = append(doc.EntityOrder, ev.Entity)
	}
	for _, cat := range snap.Categories {
		doc.Histograms[cat.Key] = cat.Entities
		doc.CategoryOrder = append(doc.CategoryOrder, cat.Key)
		if cat.UserCreated {
			doc.UserCategories = append(doc.UserCategories, cat.Key)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, HistogramsFile), data, 0o644)
}

// LoadIndex reads the snapshot from histograms.json. A missing file means no
// snapshot, not an error.
func (s *Store) LoadIndex(ctx context.Context) (index.Snapshot, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, HistogramsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return index.Snapshot{}, false, nil
	}
	if err != nil {
		return index.Snapshot{}, false, err
	}

	var doc histogramsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return index.Snapshot{}, false, fmt.Errorf("parse %s: %w", HistogramsFile, err)
	}

	var snap index.Snapshot
	for _, e := range doc.EntityOrder {
		snap.Entities = append(snap.Entities, index.EntityEvidence{Entity: e, Rows: doc.IDsByEntity[e]})
	}
	userMade := make(map[string]struct{}, len(doc.UserCategories))
	for _, key := range doc.UserCategories {
		userMade[key] = struct{}{}
	}
	for _, key := range doc.CategoryOrder {
		_, isUser := userMade[key]
		snap.Categories = append(snap.Categories, index.CategorySnapshot{
			Key:         key,
			Entities:    doc.Histograms[key],
			UserCreated: isUser,
		})
	}
	return snap, true, nil
}
