package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/store/memstore"
)

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func fakeClient(t *testing.T, handle func(user string) string) *Client {
	t.Helper()
	return &Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "test-model",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				body, _ := io.ReadAll(req.Body)
				var payload struct {
					Messages []struct {
						Role    string `json:"role"`
						Content string `json:"content"`
					} `json:"messages"`
				}
				if err := json.Unmarshal(body, &payload); err != nil {
					t.Fatalf("decode request: %v", err)
				}
				content := payload.Messages[len(payload.Messages)-1].Content
				return &http.Response{
					StatusCode: 200,
					Body: io.NopCloser(strings.NewReader(
						`{"choices":[{"message":{"role":"assistant","content":` +
							quote(handle(content)) + `}}]}`)),
					Header: make(http.Header),
				}
			}),
		},
	}
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func TestLabelUsesFewShotPromptAndLowercases(t *testing.T) {
	var prompt string
	client := fakeClient(t, func(user string) string {
		prompt = user
		return " Diseases "
	})

	label, err := client.Label(context.Background(), []string{"covid", "flu"})
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if label != "diseases" {
		t.Fatalf("label = %q, want diseases", label)
	}
	if !strings.Contains(prompt, "entities: covid, flu") {
		t.Fatalf("prompt missing entity list:\n%s", prompt)
	}
	if !strings.Contains(prompt, "label: none") {
		t.Fatalf("prompt missing the none example:\n%s", prompt)
	}
}

func TestLabelCacheAvoidsSecondCall(t *testing.T) {
	calls := 0
	client := fakeClient(t, func(string) string {
		calls++
		return "diseases"
	})
	client.Cache = memstore.New()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Label(ctx, []string{"covid", "flu"}); err != nil {
			t.Fatalf("Label: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("model calls = %d, want 1 (second should hit cache)", calls)
	}
}

func TestExamplesOfLabelSplitsAnswer(t *testing.T) {
	client := fakeClient(t, func(string) string {
		return "dylan, mozart, nina simone"
	})

	examples, err := client.ExamplesOfLabel(context.Background(), "musicians")
	if err != nil {
		t.Fatalf("ExamplesOfLabel: %v", err)
	}
	if len(examples) != 3 || examples[2] != "nina simone" {
		t.Fatalf("examples = %v", examples)
	}
}

func TestChatErrorPayload(t *testing.T) {
	client := &Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "test-model",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(*http.Request) *http.Response {
				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"quota"}}`)),
					Header:     make(http.Header),
				}
			}),
		},
	}
	if _, err := client.Chat(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractorGroundsExamplesInRows(t *testing.T) {
	client := fakeClient(t, func(string) string {
		return "Dylan, mozart, unheard-of"
	})

	rows := []dataset.Row{
		{ID: 0, Text: "Dylan played last night"},
		{ID: 1, Text: "a mozart concerto, then dylan again"},
	}
	extractions, err := (&Extractor{Client: client}).ExtractAndLabel(context.Background(), "musicians", rows)
	if err != nil {
		t.Fatalf("ExtractAndLabel: %v", err)
	}

	got := make(map[string][]int)
	for _, ex := range extractions {
		got[ex.Entity] = append(got[ex.Entity], ex.Row)
	}
	if rows := got["dylan"]; len(rows) != 2 {
		t.Fatalf("dylan rows = %v, want both", rows)
	}
	if rows := got["mozart"]; len(rows) != 1 || rows[0] != 1 {
		t.Fatalf("mozart rows = %v, want [1]", rows)
	}
	// Exemplars absent from the corpus are dropped.
	if _, ok := got["unheard-of"]; ok {
		t.Fatal("ungrounded exemplar survived")
	}
}

func TestSearcherFiltersToKnownCategories(t *testing.T) {
	client := fakeClient(t, func(string) string {
		return "diseases, made-up-category"
	})
	s := &Searcher{
		Client:     client,
		Categories: func() []string { return []string{"diseases", "musicians"} },
	}

	got, err := s.SearchCategories(context.Background(), "illness")
	if err != nil {
		t.Fatalf("SearchCategories: %v", err)
	}
	if len(got) != 1 || got[0] != "diseases" {
		t.Fatalf("results = %v, want [diseases]", got)
	}
}

func TestSearcherNoneAnswer(t *testing.T) {
	client := fakeClient(t, func(string) string { return "none" })
	s := &Searcher{
		Client:     client,
		Categories: func() []string { return []string{"diseases"} },
	}
	got, err := s.SearchCategories(context.Background(), "quarks")
	if err != nil {
		t.Fatalf("SearchCategories: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("results = %v, want none", got)
	}
}
