// Package index holds the entity index: the bidirectional mapping between
// discovered entities, the rows that mention them, and the named categories
// that group them. It is the aggregate root all other components read and
// mutate, one instance per dataset session.
package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/histoscope/pkg/histoscope/internalerr"
)

// Member is an entity reference carried into UpsertCategory, with optional
// row evidence for entities the index has not seen yet.
type Member struct {
	Entity string
	Rows   []int
}

// Index maps entity → row ids and category → member entities. Categories are
// non-exclusive: an entity may belong to any number of them. All mutation is
// serialized behind a single mutex; ordering reads are recomputed from live
// counts on every call, never cached.
type Index struct {
	mu        sync.RWMutex
	rows      map[string][]int    // entity → sorted row ids, never empty
	discovery map[string]int      // entity → first-discovery sequence
	nextSeq   int
	cats      map[string][]string // category key → member entities
	order     []string            // category creation order
	user      map[string]struct{} // user-created category keys

	onChange []func()
}

// New creates an empty index.
func New() *Index {
	return &Index{
		rows:      make(map[string][]int),
		discovery: make(map[string]int),
		cats:      make(map[string][]string),
		user:      make(map[string]struct{}),
	}
}

// Normalize maps an entity or category token to its index key: NFKC form,
// trimmed, lower-cased. Extractors report the same entity under varying
// casing and whitespace; keying through Normalize makes those collide.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

// OnChange registers a callback invoked after every structural mutation.
// Callbacks run outside the index lock and may read the index.
func (x *Index) OnChange(fn func()) {
	x.mu.Lock()
	x.onChange = append(x.onChange, fn)
	x.mu.Unlock()
}

func (x *Index) notify() {
	x.mu.RLock()
	subs := make([]func(), len(x.onChange))
	copy(subs, x.onChange)
	x.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// AddEvidence unions row ids into an entity's evidence set and returns the
// normalized entity key. Insertion order never matters: the stored set is
// sorted and deduplicated. Calling with no row ids registers nothing, so an
// entity present in the index always carries evidence.
func (x *Index) AddEvidence(entity string, rowIDs []int) string {
	key := Normalize(entity)
	if key == "" || len(rowIDs) == 0 {
		return key
	}

	x.mu.Lock()
	x.addEvidenceLocked(key, rowIDs)
	x.mu.Unlock()
	x.notify()
	return key
}

func (x *Index) addEvidenceLocked(key string, rowIDs []int) {
	if _, known := x.discovery[key]; !known {
		x.discovery[key] = x.nextSeq
		x.nextSeq++
	}
	x.rows[key] = unionSorted(x.rows[key], rowIDs)
}

// RowsForEntity returns the row ids mentioning the entity. Unknown entities
// yield an empty set, never an error: zero occurrences is a valid answer.
func (x *Index) RowsForEntity(entity string) []int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := x.rows[Normalize(entity)]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// RowCount returns the number of rows mentioning the entity.
func (x *Index) RowCount(entity string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.rows[Normalize(entity)])
}

// EntitiesInCategory returns the category's members ordered by descending
// row count, ties broken by first-discovery order. The ordering is derived
// from live counts at call time.
func (x *Index) EntitiesInCategory(key string) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	members, ok := x.cats[Normalize(key)]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", key, internalerr.ErrNotFound)
	}

	out := make([]string, len(members))
	copy(out, members)
	x.sortByCountLocked(out)
	return out, nil
}

func (x *Index) sortByCountLocked(entities []string) {
	sort.SliceStable(entities, func(i, j int) bool {
		ci, cj := len(x.rows[entities[i]]), len(x.rows[entities[j]])
		if ci != cj {
			return ci > cj
		}
		return x.discovery[entities[i]] < x.discovery[entities[j]]
	})
}

// UpsertCategory inserts or fully replaces a category's member list. Members
// unknown to the index are auto-registered only when they carry row evidence;
// a memberless unknown entity fails the whole upsert with ErrInvalidEntity
// and leaves the index untouched.
func (x *Index) UpsertCategory(key string, members []Member) error {
	ckey := Normalize(key)
	if ckey == "" {
		return fmt.Errorf("empty category key: %w", internalerr.ErrNotFound)
	}

	x.mu.Lock()

	// Validate before mutating anything.
	for _, m := range members {
		ekey := Normalize(m.Entity)
		if ekey == "" {
			x.mu.Unlock()
			return fmt.Errorf("empty entity in category %q: %w", key, internalerr.ErrInvalidEntity)
		}
		if _, known := x.rows[ekey]; !known && len(m.Rows) == 0 {
			x.mu.Unlock()
			return fmt.Errorf("entity %q: %w", m.Entity, internalerr.ErrInvalidEntity)
		}
	}

	seen := make(map[string]struct{}, len(members))
	list := make([]string, 0, len(members))
	for _, m := range members {
		ekey := Normalize(m.Entity)
		if len(m.Rows) > 0 {
			x.addEvidenceLocked(ekey, m.Rows)
		}
		if _, dup := seen[ekey]; dup {
			continue
		}
		seen[ekey] = struct{}{}
		list = append(list, ekey)
	}

	if _, exists := x.cats[ckey]; !exists {
		x.order = append(x.order, ckey)
	}
	x.cats[ckey] = list

	x.mu.Unlock()
	x.notify()
	return nil
}

// RemoveCategory deletes the category and reports whether it existed. The
// underlying entities stay: other categories may still reference them.
func (x *Index) RemoveCategory(key string) bool {
	ckey := Normalize(key)

	x.mu.Lock()
	_, existed := x.cats[ckey]
	if existed {
		delete(x.cats, ckey)
		delete(x.user, ckey)
		for i, k := range x.order {
			if k == ckey {
				x.order = append(x.order[:i], x.order[i+1:]...)
				break
			}
		}
	}
	x.mu.Unlock()

	if existed {
		x.notify()
	}
	return existed
}

// HasCategory reports whether the category key exists.
func (x *Index) HasCategory(key string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.cats[Normalize(key)]
	return ok
}

// MarkUserCreated flags a category as user-made. User-made categories sort
// ahead of discovered ones in the natural display order.
func (x *Index) MarkUserCreated(key string) {
	x.mu.Lock()
	ckey := Normalize(key)
	if _, ok := x.cats[ckey]; ok {
		x.user[ckey] = struct{}{}
	}
	x.mu.Unlock()
	x.notify()
}

// Categories returns all category keys in natural display order: user-created
// categories first in creation order, then the rest sorted by descending row
// count of their top entity, creation order on ties.
func (x *Index) Categories() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var users, rest []string
	for _, key := range x.order {
		if _, ok := x.user[key]; ok {
			users = append(users, key)
		} else {
			rest = append(rest, key)
		}
	}

	top := func(key string) int {
		best := 0
		for _, e := range x.cats[key] {
			if n := len(x.rows[e]); n > best {
				best = n
			}
		}
		return best
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return top(rest[i]) > top(rest[j])
	})

	return append(users, rest...)
}

// OrderByCount returns the given entities (normalized) sorted by descending
// row count with first-discovery tie-break, the same ordering category reads
// use.
func (x *Index) OrderByCount(entities []string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, Normalize(e))
	}
	x.sortByCountLocked(out)
	return out
}

func unionSorted(existing, add []int) []int {
	seen := make(map[int]struct{}, len(existing)+len(add))
	out := make([]int, 0, len(existing)+len(add))
	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range add {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
