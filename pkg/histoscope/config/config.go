// Package config loads the YAML configuration files for the annotation
// pipeline and the viewer server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LLM holds the connection settings for the language-model endpoint.
type LLM struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// Pipeline configures one offline annotation run.
type Pipeline struct {
	InputCSV  string `yaml:"input_csv"`
	Column    string `yaml:"column"`
	OutputDir string `yaml:"output_dir"`
	CacheDB   string `yaml:"cache_db"`
	Stoplist  string `yaml:"stoplist"`
	TopK      int    `yaml:"top_k"`
	BatchSize int    `yaml:"batch_size"`
	LLM       LLM    `yaml:"llm"`
}

// LoadPipeline loads a pipeline configuration from a YAML file.
func LoadPipeline(path string) (*Pipeline, error) {
	var cfg Pipeline
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.InputCSV == "" || cfg.Column == "" || cfg.OutputDir == "" {
		return nil, fmt.Errorf("config %s: input_csv, column and output_dir required", path)
	}
	return &cfg, nil
}

// Server configures the viewer server.
type Server struct {
	Addr     string `yaml:"addr"`
	DataRoot string `yaml:"data_root"`
	LLM      LLM    `yaml:"llm"`
}

// LoadServer loads a server configuration from a YAML file.
func LoadServer(path string) (*Server, error) {
	var cfg Server
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.DataRoot == "" {
		return nil, fmt.Errorf("config %s: data_root required", path)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":5432"
	}
	return &cfg, nil
}

// Stoplist represents the stopword list configuration.
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file.
func LoadStoplist(path string) (*Stoplist, error) {
	var sl Stoplist
	if err := load(path, &sl); err != nil {
		return nil, err
	}
	return &sl, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
