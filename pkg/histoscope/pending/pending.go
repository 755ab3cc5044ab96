// Package pending tracks the single in-flight, user-curated category: the
// entities a search synthesized, which of them the user has checked, and the
// commit/cancel transitions back to the committed index.
package pending

import (
	"context"
	"fmt"
	"sync"

	"github.com/cognicore/histoscope/pkg/histoscope/index"
	"github.com/cognicore/histoscope/pkg/histoscope/internalerr"
	"github.com/cognicore/histoscope/pkg/histoscope/synth"
)

// State is the workflow state.
type State int

const (
	// Idle means no category is being curated.
	Idle State = iota
	// Pending means a synthesized category awaits commit or cancel.
	Pending
)

// Candidate is one offered entity and its selection state.
type Candidate struct {
	Entity   string
	Selected bool
}

// Workflow is the Idle/Pending state machine. At most one pending category
// exists per session; starting a new search first cancels the current one.
//
// A freshly synthesized category starts with nothing selected: the user
// checks entities in before committing, matching the "select entities to
// create a category" interaction.
type Workflow struct {
	mu    sync.Mutex
	idx   *index.Index
	synth *synth.Synthesizer

	state    State
	name     string
	offered  []string
	selected map[string]bool
	inserted bool // the speculative category was added by this workflow
}

// New creates an idle workflow.
func New(idx *index.Index, s *synth.Synthesizer) *Workflow {
	return &Workflow{idx: idx, synth: s}
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Name returns the pending category name, or "" when idle.
func (w *Workflow) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name
}

// Candidates returns the offered entities with their selection state, in the
// order synthesis produced them.
func (w *Workflow) Candidates() []Candidate {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Candidate, len(w.offered))
	for i, e := range w.offered {
		out[i] = Candidate{Entity: e, Selected: w.selected[e]}
	}
	return out
}

// StartSearch synthesizes a category for the query and transitions to
// Pending. Any category already pending is canceled first, so a superseded
// speculative category never survives. The synthesized category is inserted
// into the index speculatively so projections can show it while the user
// curates.
func (w *Workflow) StartSearch(ctx context.Context, query string) (synth.Category, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == Pending {
		w.cancelLocked()
	}

	cat, err := w.synth.Synthesize(ctx, query)
	if err != nil {
		return synth.Category{}, err
	}

	existed := w.idx.HasCategory(cat.Key)
	members := make([]index.Member, len(cat.Entities))
	for i, e := range cat.Entities {
		members[i] = index.Member{Entity: e}
	}
	if err := w.idx.UpsertCategory(cat.Key, members); err != nil {
		return synth.Category{}, fmt.Errorf("stage category %q: %w", cat.Key, err)
	}

	w.state = Pending
	w.name = cat.Key
	w.offered = cat.Entities
	w.selected = make(map[string]bool, len(cat.Entities))
	w.inserted = !existed
	return cat, nil
}

// Toggle flips an entity's selection and reports whether anything changed.
// Entities outside the synthesized set are ignored.
func (w *Workflow) Toggle(entity string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Pending {
		return false
	}
	key := index.Normalize(entity)
	for _, offered := range w.offered {
		if offered == key {
			w.selected[key] = !w.selected[key]
			return true
		}
	}
	return false
}

// Commit promotes the curated selection into the index as a user-created
// category and returns to Idle. An empty selection is rejected and leaves
// both the workflow and the index unchanged.
func (w *Workflow) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Pending {
		return fmt.Errorf("no pending category: %w", internalerr.ErrNotFound)
	}

	var chosen []string
	for _, e := range w.offered {
		if w.selected[e] {
			chosen = append(chosen, e)
		}
	}
	if len(chosen) == 0 {
		return fmt.Errorf("commit %q: %w", w.name, internalerr.ErrEmptySelection)
	}

	members := make([]index.Member, 0, len(chosen))
	for _, e := range w.idx.OrderByCount(chosen) {
		members = append(members, index.Member{Entity: e})
	}
	if err := w.idx.UpsertCategory(w.name, members); err != nil {
		return fmt.Errorf("commit %q: %w", w.name, err)
	}
	w.idx.MarkUserCreated(w.name)

	w.reset()
	return nil
}

// Cancel discards the pending category and returns to Idle. The speculative
// index entry is removed only if StartSearch created it.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
}

func (w *Workflow) cancelLocked() {
	if w.state != Pending {
		return
	}
	if w.inserted {
		w.idx.RemoveCategory(w.name)
	}
	w.reset()
}

func (w *Workflow) reset() {
	w.state = Idle
	w.name = ""
	w.offered = nil
	w.selected = nil
	w.inserted = false
}
