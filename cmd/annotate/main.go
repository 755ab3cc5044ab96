package main

import (
	"context"
	"flag"
	"log"

	"github.com/cognicore/histoscope/internal/llm"
	"github.com/cognicore/histoscope/pkg/histoscope/annotate"
	"github.com/cognicore/histoscope/pkg/histoscope/config"
	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/store/jsondir"
	"github.com/cognicore/histoscope/pkg/histoscope/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Pipeline config YAML (required)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("--config required")
	}

	ctx := context.Background()

	cfg, err := config.LoadPipeline(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	var stopwords []string
	if cfg.Stoplist != "" {
		sl, err := config.LoadStoplist(cfg.Stoplist)
		if err != nil {
			log.Fatal("Failed to load stoplist:", err)
		}
		stopwords = sl.Terms
	}

	rows, err := dataset.LoadCSV(cfg.InputCSV, cfg.Column)
	if err != nil {
		log.Fatal("Failed to load dataset:", err)
	}
	log.Printf("Loaded %d rows from %s", len(rows), cfg.InputCSV)

	annotate.NewAnnotator(stopwords).AnnotateRows(rows)

	client := &llm.Client{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
	}
	if cfg.CacheDB != "" {
		cache, err := sqlite.Open(ctx, cfg.CacheDB)
		if err != nil {
			log.Fatal("Failed to open label cache:", err)
		}
		defer cache.Close()
		client.Cache = cache
	}

	builder := annotate.Builder{
		Labeler:   client,
		TopK:      cfg.TopK,
		BatchSize: cfg.BatchSize,
	}
	idx, err := builder.Build(ctx, rows)
	if err != nil {
		log.Fatal("Failed to build index:", err)
	}
	log.Printf("Built %d categories", len(idx.Categories()))

	out, err := jsondir.Open(cfg.OutputDir)
	if err != nil {
		log.Fatal("Failed to open output dir:", err)
	}
	defer out.Close()
	if err := out.SaveRows(ctx, rows); err != nil {
		log.Fatal("Failed to save rows:", err)
	}
	if err := out.SaveIndex(ctx, idx.Export()); err != nil {
		log.Fatal("Failed to save index:", err)
	}

	log.Printf("Annotation complete: %s", cfg.OutputDir)
}
