package annotate

import (
	"context"
	"fmt"
	"sort"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
	"github.com/cognicore/histoscope/pkg/histoscope/internalerr"
)

// NoLabel is the sentinel a labeler returns when no sensible label exists
// for a group of entities.
const NoLabel = "none"

// Labeler names a group of entities, or returns NoLabel.
type Labeler interface {
	Label(ctx context.Context, entities []string) (string, error)
}

const (
	defaultTopK      = 2000
	defaultBatchSize = 10
)

// Builder turns annotated rows into a populated index: every entity gets its
// row evidence, and the most frequent entities are grouped into labeled
// categories. Batches that receive the same label are merged into one
// category.
type Builder struct {
	Labeler   Labeler
	TopK      int // cap on distinct entities considered, default 2000
	BatchSize int // entities per labeling call, default 10
}

// Build constructs the index from rows previously run through an Annotator.
func (b *Builder) Build(ctx context.Context, rows []dataset.Row) (*index.Index, error) {
	idx := index.New()

	counts := make(map[string]int)
	var order []string
	for _, row := range rows {
		for _, e := range row.Entities {
			idx.AddEvidence(e, []int{row.ID})
			key := index.Normalize(e)
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
	}

	topK := b.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	// Most frequent first, discovery order on ties.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topK {
		order = order[:topK]
	}

	batchSize := b.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	byLabel := make(map[string][]string)
	var labelOrder []string
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		batch := order[start:end]

		label, err := b.Labeler.Label(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("label batch: %w: %v", internalerr.ErrExtractionFailure, err)
		}
		label = index.Normalize(label)
		if label == "" || label == NoLabel {
			continue
		}
		if _, seen := byLabel[label]; !seen {
			labelOrder = append(labelOrder, label)
		}
		byLabel[label] = append(byLabel[label], batch...)
	}

	for _, label := range labelOrder {
		members := make([]index.Member, 0, len(byLabel[label]))
		for _, e := range byLabel[label] {
			members = append(members, index.Member{Entity: e})
		}
		if err := idx.UpsertCategory(label, members); err != nil {
			return nil, fmt.Errorf("category %q: %w", label, err)
		}
	}

	return idx, nil
}
