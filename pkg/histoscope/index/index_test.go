package index

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cognicore/histoscope/pkg/histoscope/internalerr"
)

func TestAddEvidenceUnionIsOrderIndependent(t *testing.T) {
	a := New()
	a.AddEvidence("covid", []int{3, 1})
	a.AddEvidence("covid", []int{1, 7})

	b := New()
	b.AddEvidence("covid", []int{7})
	b.AddEvidence("covid", []int{1, 3, 3})

	want := []int{1, 3, 7}
	if got := a.RowsForEntity("covid"); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	if got := b.RowsForEntity("covid"); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows after reordered inserts = %v, want %v", got, want)
	}
}

func TestNormalizationMergesCasingAndWhitespace(t *testing.T) {
	x := New()
	x.AddEvidence("Covid", []int{1})
	x.AddEvidence("  covid ", []int{2})
	x.AddEvidence("COVID", []int{2})

	if got := x.RowsForEntity("covid"); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("merged rows = %v, want [1 2]", got)
	}
}

func TestRowsForEntityUnknownIsEmpty(t *testing.T) {
	x := New()
	if got := x.RowsForEntity("ghost"); len(got) != 0 {
		t.Fatalf("unknown entity rows = %v, want empty", got)
	}
}

func TestAddEvidenceWithoutRowsRegistersNothing(t *testing.T) {
	x := New()
	x.AddEvidence("empty", nil)
	if err := x.UpsertCategory("cat", []Member{{Entity: "empty"}}); !errors.Is(err, internalerr.ErrInvalidEntity) {
		t.Fatalf("err = %v, want ErrInvalidEntity", err)
	}
}

func TestEntitiesInCategoryOrdering(t *testing.T) {
	x := New()
	x.AddEvidence("flu", []int{2})
	x.AddEvidence("covid", []int{1, 3})
	x.AddEvidence("cold", []int{5})

	if err := x.UpsertCategory("diseases", []Member{
		{Entity: "flu"}, {Entity: "covid"}, {Entity: "cold"},
	}); err != nil {
		t.Fatalf("UpsertCategory: %v", err)
	}

	// covid has two rows; flu and cold tie at one and fall back to
	// first-discovery order (flu before cold).
	assertEntities(t, x, "diseases", []string{"covid", "flu", "cold"})

	// New evidence must be visible on the next read, not stale-cached.
	x.AddEvidence("cold", []int{6, 7})
	assertEntities(t, x, "diseases", []string{"cold", "covid", "flu"})
}

func TestEntitiesInCategoryNotFound(t *testing.T) {
	x := New()
	if _, err := x.EntitiesInCategory("missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertCategoryAutoRegistersWithEvidence(t *testing.T) {
	x := New()
	err := x.UpsertCategory("musicians", []Member{{Entity: "Dylan", Rows: []int{4, 2}}})
	if err != nil {
		t.Fatalf("UpsertCategory: %v", err)
	}
	if got := x.RowsForEntity("dylan"); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Fatalf("auto-registered rows = %v, want [2 4]", got)
	}
}

func TestUpsertCategoryRejectsUnknownWithoutEvidence(t *testing.T) {
	x := New()
	x.AddEvidence("known", []int{1})

	err := x.UpsertCategory("mixed", []Member{{Entity: "known"}, {Entity: "unknown"}})
	if !errors.Is(err, internalerr.ErrInvalidEntity) {
		t.Fatalf("err = %v, want ErrInvalidEntity", err)
	}
	// Failed upsert must not leave a partial category behind.
	if x.HasCategory("mixed") {
		t.Fatal("category inserted despite invalid member")
	}
}

func TestUpsertCategoryReplacesMembers(t *testing.T) {
	x := New()
	x.AddEvidence("a", []int{1})
	x.AddEvidence("b", []int{2})

	mustUpsert(t, x, "cat", "a", "b")
	mustUpsert(t, x, "cat", "b")
	assertEntities(t, x, "cat", []string{"b"})
}

func TestRemoveCategoryKeepsEntities(t *testing.T) {
	x := New()
	x.AddEvidence("covid", []int{1})
	mustUpsert(t, x, "diseases", "covid")
	mustUpsert(t, x, "pandemics", "covid")

	if !x.RemoveCategory("diseases") {
		t.Fatal("RemoveCategory returned false for existing category")
	}
	if x.RemoveCategory("diseases") {
		t.Fatal("RemoveCategory returned true for removed category")
	}
	if got := x.RowsForEntity("covid"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("entity lost with category: rows = %v", got)
	}
	assertEntities(t, x, "pandemics", []string{"covid"})
}

func TestCategoriesNaturalOrder(t *testing.T) {
	x := New()
	x.AddEvidence("rare", []int{1})
	x.AddEvidence("common", []int{1, 2, 3})
	x.AddEvidence("dylan", []int{5})

	mustUpsert(t, x, "small", "rare")
	mustUpsert(t, x, "big", "common")
	mustUpsert(t, x, "musicians", "dylan")
	x.MarkUserCreated("musicians")

	// User-created first, then discovered categories by top-entity count.
	want := []string{"musicians", "big", "small"}
	if got := x.Categories(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Categories() = %v, want %v", got, want)
	}
}

func TestOnChangeFiresAfterMutation(t *testing.T) {
	x := New()
	var events int
	x.OnChange(func() { events++ })

	x.AddEvidence("e", []int{1})
	mustUpsert(t, x, "cat", "e")
	x.RemoveCategory("cat")
	x.RemoveCategory("cat") // no-op remove must not fire

	if events != 3 {
		t.Fatalf("change events = %d, want 3", events)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	x := New()
	x.AddEvidence("flu", []int{2})
	x.AddEvidence("covid", []int{1, 3})
	mustUpsert(t, x, "diseases", "covid", "flu")
	mustUpsert(t, x, "virals", "covid")
	x.MarkUserCreated("virals")

	restored, err := FromSnapshot(x.Export())
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	if got, want := restored.Categories(), x.Categories(); !reflect.DeepEqual(got, want) {
		t.Fatalf("restored categories = %v, want %v", got, want)
	}
	assertEntities(t, restored, "diseases", []string{"covid", "flu"})
	if got := restored.RowsForEntity("covid"); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Fatalf("restored rows = %v, want [1 3]", got)
	}
}

func TestFromSnapshotRejectsDanglingMember(t *testing.T) {
	snap := Snapshot{
		Categories: []CategorySnapshot{{Key: "broken", Entities: []string{"ghost"}}},
	}
	if _, err := FromSnapshot(snap); !errors.Is(err, internalerr.ErrInvalidEntity) {
		t.Fatalf("err = %v, want ErrInvalidEntity", err)
	}
}

func mustUpsert(t *testing.T, x *Index, key string, entities ...string) {
	t.Helper()
	members := make([]Member, len(entities))
	for i, e := range entities {
		members[i] = Member{Entity: e}
	}
	if err := x.UpsertCategory(key, members); err != nil {
		t.Fatalf("UpsertCategory(%s): %v", key, err)
	}
}

func assertEntities(t *testing.T, x *Index, key string, want []string) {
	t.Helper()
	got, err := x.EntitiesInCategory(key)
	if err != nil {
		t.Fatalf("EntitiesInCategory(%s): %v", key, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("EntitiesInCategory(%s) = %v, want %v", key, got, want)
	}
}
