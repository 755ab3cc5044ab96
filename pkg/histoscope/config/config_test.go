package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadPipeline(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", `
input_csv: data/reviews.csv
column: review_text
output_dir: data/reviews/review_text
cache_db: /tmp/labels.db
stoplist: configs/stoplist.yaml
top_k: 500
batch_size: 8
llm:
  base_url: https://api.test/v1/chat/completions
  model: test-model
  api_key: secret
`)

	cfg, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	if cfg.Column != "review_text" || cfg.TopK != 500 || cfg.BatchSize != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LLM.Model != "test-model" {
		t.Fatalf("llm model = %q", cfg.LLM.Model)
	}
}

func TestLoadPipelineMissingRequired(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", "input_csv: only.csv\n")
	if _, err := LoadPipeline(path); err == nil {
		t.Fatal("expected error for missing required fields")
	}
}

func TestLoadServerDefaults(t *testing.T) {
	path := writeFile(t, "server.yaml", "data_root: /var/data\n")
	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Addr != ":5432" {
		t.Fatalf("default addr = %q", cfg.Addr)
	}
}

func TestLoadStoplist(t *testing.T) {
	path := writeFile(t, "stoplist.yaml", "terms:\n  - the\n  - in\n")
	sl, err := LoadStoplist(path)
	if err != nil {
		t.Fatalf("LoadStoplist: %v", err)
	}
	if want := []string{"the", "in"}; !reflect.DeepEqual(sl.Terms, want) {
		t.Fatalf("terms = %v, want %v", sl.Terms, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadServer(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
