package index

import (
	"fmt"
	"sort"

	"github.com/cognicore/histoscope/pkg/histoscope/internalerr"
)

// Snapshot is the serializable form of an index. Entities appear in
// first-discovery order so a restored index reproduces the original
// tie-breaking; categories appear in creation order.
type Snapshot struct {
	Entities   []EntityEvidence   `json:"entities"`
	Categories []CategorySnapshot `json:"categories"`
}

// EntityEvidence pairs an entity with its row ids.
type EntityEvidence struct {
	Entity string `json:"entity"`
	Rows   []int  `json:"rows"`
}

// CategorySnapshot is one category with its member entities.
type CategorySnapshot struct {
	Key         string   `json:"key"`
	Entities    []string `json:"entities"`
	UserCreated bool     `json:"user_created,omitempty"`
}

// Export captures the full index state.
func (x *Index) Export() Snapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var snap Snapshot

	ordered := make([]string, 0, len(x.rows))
	for e := range x.rows {
		ordered = append(ordered, e)
	}
	// Discovery order, so restore re-discovers entities in the same sequence.
	sortByDiscovery(ordered, x.discovery)
	for _, e := range ordered {
		rows := make([]int, len(x.rows[e]))
		copy(rows, x.rows[e])
		snap.Entities = append(snap.Entities, EntityEvidence{Entity: e, Rows: rows})
	}

	for _, key := range x.order {
		members := make([]string, len(x.cats[key]))
		copy(members, x.cats[key])
		_, userMade := x.user[key]
		snap.Categories = append(snap.Categories, CategorySnapshot{
			Key:         key,
			Entities:    members,
			UserCreated: userMade,
		})
	}

	return snap
}

// FromSnapshot reconstructs an index. A category member without entity
// evidence means the snapshot is corrupt and fails the whole restore.
func FromSnapshot(snap Snapshot) (*Index, error) {
	x := New()
	for _, ev := range snap.Entities {
		x.AddEvidence(ev.Entity, ev.Rows)
	}
	for _, cat := range snap.Categories {
		members := make([]Member, len(cat.Entities))
		for i, e := range cat.Entities {
			members[i] = Member{Entity: e}
		}
		if err := x.UpsertCategory(cat.Key, members); err != nil {
			return nil, fmt.Errorf("restore category %q: %w", cat.Key, err)
		}
		if cat.UserCreated {
			x.MarkUserCreated(cat.Key)
		}
	}
	if err := x.validate(); err != nil {
		return nil, err
	}
	return x, nil
}

// validate checks the structural invariants: no dangling category members
// and no evidence-free entities.
func (x *Index) validate() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	for key, members := range x.cats {
		for _, e := range members {
			if _, ok := x.rows[e]; !ok {
				return fmt.Errorf("category %q references unknown entity %q: %w",
					key, e, internalerr.ErrInvalidEntity)
			}
		}
	}
	for e, rows := range x.rows {
		if len(rows) == 0 {
			return fmt.Errorf("entity %q has no evidence: %w", e, internalerr.ErrInvalidEntity)
		}
	}
	return nil
}

func sortByDiscovery(entities []string, discovery map[string]int) {
	sort.SliceStable(entities, func(i, j int) bool {
		return discovery[entities[i]] < discovery[entities[j]]
	})
}
