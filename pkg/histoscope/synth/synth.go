// Package synth derives categories from free-text queries by calling the
// extraction collaborator and folding the results into the entity index.
package synth

import (
	"context"
	"fmt"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
	"github.com/cognicore/histoscope/pkg/histoscope/internalerr"
)

// Extraction is a single entity occurrence reported by the extractor: the
// entity span, the row it was found in, and the extractor's internal label.
type Extraction struct {
	Entity string
	Row    int
	Label  string
}

// Extractor is the language-model-backed collaborator. Relevance filtering
// against the query is the extractor's job; the synthesizer never re-implements
// text matching. Implementations may be slow or rate-limited and are called at
// most once per Synthesize.
type Extractor interface {
	ExtractAndLabel(ctx context.Context, query string, rows []dataset.Row) ([]Extraction, error)
}

// Category is a synthesized category. Key is the literal query string the
// user typed; Entities are ordered by descending row count.
type Category struct {
	Key      string
	Entities []string
}

// Empty reports whether synthesis found no entities. An empty category is a
// valid, displayable result, distinct from a failed synthesis.
func (c Category) Empty() bool { return len(c.Entities) == 0 }

// Synthesizer turns one query into one category. Whatever labels the
// extractor invents internally, the result is collapsed into a single
// category keyed by the query itself.
type Synthesizer struct {
	idx       *index.Index
	rows      []dataset.Row
	extractor Extractor
}

// New creates a synthesizer over the given corpus.
func New(idx *index.Index, rows []dataset.Row, extractor Extractor) *Synthesizer {
	return &Synthesizer{idx: idx, rows: rows, extractor: extractor}
}

// Synthesize runs the extractor over the corpus and returns the resulting
// category. New entity evidence is registered in the index before returning;
// on extractor failure the index is left untouched. Synthesizing the same
// query twice over an unchanged corpus yields the same entity set.
func (s *Synthesizer) Synthesize(ctx context.Context, query string) (Category, error) {
	if s.extractor == nil {
		return Category{}, fmt.Errorf("synthesize %q: %w: no extractor configured", query, internalerr.ErrExtractionFailure)
	}
	results, err := s.extractor.ExtractAndLabel(ctx, query, s.rows)
	if err != nil {
		return Category{}, fmt.Errorf("synthesize %q: %w: %v", query, internalerr.ErrExtractionFailure, err)
	}

	// Group evidence per entity first, then register: the index only admits
	// entities that carry rows.
	evidence := make(map[string][]int)
	var order []string
	for _, res := range results {
		key := index.Normalize(res.Entity)
		if key == "" {
			continue
		}
		if _, seen := evidence[key]; !seen {
			order = append(order, key)
		}
		evidence[key] = append(evidence[key], res.Row)
	}

	for _, key := range order {
		s.idx.AddEvidence(key, evidence[key])
	}

	// Augment rather than replace when the query names an existing category.
	if members, err := s.idx.EntitiesInCategory(query); err == nil {
		for _, e := range members {
			if _, seen := evidence[e]; !seen {
				evidence[e] = nil
				order = append(order, e)
			}
		}
	}

	if len(order) == 0 {
		return Category{Key: query}, nil
	}
	return Category{Key: query, Entities: s.idx.OrderByCount(order)}, nil
}
