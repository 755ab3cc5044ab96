package projection

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/cognicore/histoscope/pkg/histoscope/index"
)

type stubSearcher struct {
	results []string
	err     error
	calls   int
}

func (s *stubSearcher) SearchCategories(ctx context.Context, query string) ([]string, error) {
	s.calls++
	return s.results, s.err
}

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	idx := index.New()
	idx.AddEvidence("covid", []int{1, 3})
	idx.AddEvidence("flu", []int{2})
	idx.AddEvidence("dylan", []int{4})
	for key, members := range map[string][]index.Member{
		"diseases":  {{Entity: "covid"}, {Entity: "flu"}},
		"disorders": {{Entity: "flu"}},
		"musicians": {{Entity: "dylan"}},
	} {
		if err := idx.UpsertCategory(key, members); err != nil {
			t.Fatalf("UpsertCategory(%s): %v", key, err)
		}
	}
	return idx
}

func TestProjectEmptySearchReturnsAllOnce(t *testing.T) {
	idx := buildIndex(t)
	searcher := &stubSearcher{results: []string{"should not be called"}}

	got, err := New(idx, searcher).Project(context.Background(), "")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if searcher.calls != 0 {
		t.Fatal("empty search must not invoke the searcher")
	}
	if want := idx.Categories(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Project(\"\") = %v, want %v", got, want)
	}
	seen := make(map[string]int)
	for _, key := range got {
		seen[key]++
	}
	for key, n := range seen {
		if n != 1 {
			t.Fatalf("category %q listed %d times", key, n)
		}
	}
}

func TestProjectSubstringMatch(t *testing.T) {
	idx := buildIndex(t)
	got, err := New(idx, &stubSearcher{}).Project(context.Background(), "dis")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	// diseases has the bigger top entity (covid, 2 rows) so it leads.
	if want := []string{"diseases", "disorders"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Project(dis) = %v, want %v", got, want)
	}
}

func TestProjectSubstringIsCaseSensitive(t *testing.T) {
	idx := buildIndex(t)
	got, err := New(idx, &stubSearcher{}).Project(context.Background(), "Dis")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Project(Dis) = %v, want no case-insensitive matches", got)
	}
}

func TestProjectMergesSearcherResultsWithoutDuplicates(t *testing.T) {
	idx := buildIndex(t)
	searcher := &stubSearcher{results: []string{"disorders", "maladies", "diseases"}}

	got, err := New(idx, searcher).Project(context.Background(), "dis")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	// Substring matches first, then searcher-only results, first occurrence wins.
	if want := []string{"diseases", "disorders", "maladies"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Project = %v, want %v", got, want)
	}
}

func TestProjectSearcherFailure(t *testing.T) {
	idx := buildIndex(t)
	searcher := &stubSearcher{err: errors.New("backend down")}
	if _, err := New(idx, searcher).Project(context.Background(), "dis"); err == nil {
		t.Fatal("expected searcher error to propagate")
	}
}

func TestProjectNilSearcher(t *testing.T) {
	idx := buildIndex(t)
	got, err := New(idx, nil).Project(context.Background(), "music")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if want := []string{"musicians"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Project = %v, want %v", got, want)
	}
}
