// Package histoscope is the engine facade: one Session per dataset
// directory, wiring the entity index, category synthesis, the pending
// category workflow, and search projection over explicitly injected
// collaborators.
package histoscope

import (
	"context"
	"fmt"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
	"github.com/cognicore/histoscope/pkg/histoscope/pending"
	"github.com/cognicore/histoscope/pkg/histoscope/projection"
	"github.com/cognicore/histoscope/pkg/histoscope/search"
	"github.com/cognicore/histoscope/pkg/histoscope/store"
	"github.com/cognicore/histoscope/pkg/histoscope/synth"
)

// Options configures a Session. Store is required. Extractor and Searcher
// are optional: without an extractor searches only match existing
// categories, and without a searcher projections skip collaborator search.
type Options struct {
	Store     store.Store
	Extractor synth.Extractor
	Searcher  projection.Searcher
}

// Session is one viewing session over an annotated dataset.
type Session struct {
	st   store.Store
	idx  *index.Index
	rows []dataset.Row

	synth    *synth.Synthesizer
	workflow *pending.Workflow
	proj     *projection.Projection
}

// Open loads the rows and index snapshot from the store and wires the
// session components.
func Open(ctx context.Context, opts Options) (*Session, error) {
	rows, err := opts.Store.LoadRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}

	idx := index.New()
	if snap, ok, err := opts.Store.LoadIndex(ctx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	} else if ok {
		idx, err = index.FromSnapshot(snap)
		if err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
	}

	s := &Session{
		st:   opts.Store,
		idx:  idx,
		rows: rows,
	}
	s.synth = synth.New(idx, rows, opts.Extractor)
	s.workflow = pending.New(idx, s.synth)
	s.proj = projection.New(idx, opts.Searcher)
	return s, nil
}

// Close releases the underlying store.
func (s *Session) Close() error {
	return s.st.Close()
}

// Index exposes the session's entity index.
func (s *Session) Index() *index.Index { return s.idx }

// Rows returns the session's dataset.
func (s *Session) Rows() []dataset.Row { return s.rows }

// Histograms returns every category with its entities in display order,
// the get_histograms payload.
func (s *Session) Histograms() map[string][]string {
	out := make(map[string][]string)
	for _, key := range s.idx.Categories() {
		entities, err := s.idx.EntitiesInCategory(key)
		if err != nil {
			// A key listed by Categories always resolves; a miss here is
			// index corruption.
			continue
		}
		out[key] = entities
	}
	return out
}

// IDsByEntity returns the row ids for every entity any category references.
func (s *Session) IDsByEntity() map[string][]int {
	out := make(map[string][]int)
	for _, key := range s.idx.Categories() {
		entities, err := s.idx.EntitiesInCategory(key)
		if err != nil {
			continue
		}
		for _, e := range entities {
			if _, done := out[e]; !done {
				out[e] = s.idx.RowsForEntity(e)
			}
		}
	}
	return out
}

// RowsForEntity returns the rows mentioning an entity.
func (s *Session) RowsForEntity(entity string) []int {
	return s.idx.RowsForEntity(entity)
}

// Project computes the categories to display for a search string.
func (s *Session) Project(ctx context.Context, searchString string) ([]string, error) {
	return s.proj.Project(ctx, searchString)
}

// NewDispatcher builds a debounced dispatcher running this session's
// projection. Remaining Options fields (Apply, Fail, Stale, Debounce) come
// from the caller.
func (s *Session) NewDispatcher(opts search.Options) *search.Dispatcher {
	opts.Run = s.Project
	return search.New(opts)
}

// StartSearch begins curating a new category synthesized for the query.
func (s *Session) StartSearch(ctx context.Context, query string) (synth.Category, error) {
	return s.workflow.StartSearch(ctx, query)
}

// Pending returns the workflow for candidate inspection and toggling.
func (s *Session) Pending() *pending.Workflow { return s.workflow }

// Commit promotes the curated pending category.
func (s *Session) Commit() error { return s.workflow.Commit() }

// Cancel discards the pending category.
func (s *Session) Cancel() { s.workflow.Cancel() }

// Save persists the rows and the current index snapshot.
func (s *Session) Save(ctx context.Context) error {
	if err := s.st.SaveRows(ctx, s.rows); err != nil {
		return fmt.Errorf("save rows: %w", err)
	}
	if err := s.st.SaveIndex(ctx, s.idx.Export()); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}
