// Package projection computes the ordered, deduplicated list of categories
// to display for a search string.
package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognicore/histoscope/pkg/histoscope/index"
)

// Searcher is the collaborator answering free-text category search, distinct
// from plain substring matching over keys the index already holds.
type Searcher interface {
	SearchCategories(ctx context.Context, query string) ([]string, error)
}

// Projection derives display lists from the index plus an optional searcher.
type Projection struct {
	idx      *index.Index
	searcher Searcher
}

// New creates a projection. searcher may be nil, in which case only
// substring matches are projected.
func New(idx *index.Index, searcher Searcher) *Projection {
	return &Projection{idx: idx, searcher: searcher}
}

// Project returns the category keys to display for the search string:
// substring matches over existing keys in natural display order, followed by
// searcher results not already listed. Matching is a case-sensitive literal
// substring test. The empty search string projects every category and never
// invokes the searcher.
func (p *Projection) Project(ctx context.Context, search string) ([]string, error) {
	all := p.idx.Categories()
	if search == "" {
		return all, nil
	}

	var keys []string
	for _, key := range all {
		if strings.Contains(key, search) {
			keys = append(keys, key)
		}
	}

	if p.searcher != nil {
		found, err := p.searcher.SearchCategories(ctx, search)
		if err != nil {
			return nil, fmt.Errorf("search categories %q: %w", search, err)
		}
		keys = append(keys, found...)
	}

	return dedupe(keys), nil
}

// dedupe removes exact duplicates preserving first occurrence. The combined
// list is never re-sorted: substring matches keep their natural order and
// searcher results keep theirs.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
