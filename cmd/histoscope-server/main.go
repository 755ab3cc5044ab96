package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/cognicore/histoscope/internal/llm"
	"github.com/cognicore/histoscope/internal/server"
	"github.com/cognicore/histoscope/pkg/histoscope/config"
)

func main() {
	configPath := flag.String("config", "", "Server config YAML (required)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("--config required")
	}

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	var client *llm.Client
	if cfg.LLM.BaseURL != "" {
		client = &llm.Client{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			APIKey:  cfg.LLM.APIKey,
		}
	}

	srv, err := server.New(server.Options{
		DataRoot: cfg.DataRoot,
		Client:   client,
	})
	if err != nil {
		log.Fatal("Failed to create server:", err)
	}
	defer srv.Close()

	log.Printf("Histoscope server listening on %s (data root %s)", cfg.Addr, cfg.DataRoot)
	log.Fatal(http.ListenAndServe(cfg.Addr, srv.Handler()))
}
