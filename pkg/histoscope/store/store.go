// Package store defines persistence for a dataset session: the annotated
// rows and a snapshot of the entity index, reloadable at view time.
package store

import (
	"context"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
)

// Store persists one dataset session.
type Store interface {
	Close() error

	SaveRows(ctx context.Context, rows []dataset.Row) error
	LoadRows(ctx context.Context) ([]dataset.Row, error)

	SaveIndex(ctx context.Context, snap index.Snapshot) error
	// LoadIndex returns the stored snapshot; the bool is false when no
	// snapshot has been saved yet.
	LoadIndex(ctx context.Context) (index.Snapshot, bool, error)
}

// LabelCache remembers language-model labeling answers so pipeline reruns
// do not repeat paid calls.
type LabelCache interface {
	GetLabel(ctx context.Context, prompt string) (string, bool, error)
	PutLabel(ctx context.Context, prompt, label string) error
}
