// Package llm talks to an OpenAI-compatible chat endpoint and implements
// the language-model collaborators the engine depends on: entity labeling,
// exemplar generation, query-driven extraction, and category search.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
	"github.com/cognicore/histoscope/pkg/histoscope/store"
	"github.com/cognicore/histoscope/pkg/histoscope/synth"
)

// NoLabel is the answer the model is instructed to give when no sensible
// label exists for a group of entities.
const NoLabel = "none"

// Client calls an OpenAI-compatible chat completion endpoint. Cache, when
// set, short-circuits repeated labeling prompts.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string

	HTTPClient *http.Client
	Cache      store.LabelCache
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends one system+user exchange and returns the reply text.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	if c.BaseURL == "" || c.Model == "" {
		return "", fmt.Errorf("llm: base URL and model required")
	}
	messages := []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}}
	payload, err := c.send(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return strings.TrimSpace(payload.Choices[0].Message.Content), nil
}

func (c *Client) send(ctx context.Context, messages []chatMessage) (*chatResponse, error) {
	reqBody, err := json.Marshal(chatRequest{Model: c.Model, Messages: messages})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("llm error: %s", payload.Error.Message)
	}
	return &payload, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

const labelSystem = "You label groups of related entities. Answer with the label only."

// Label names a group of entities, or NoLabel if none fits. Implements
// annotate.Labeler. Answers are cached by prompt when a cache is configured.
func (c *Client) Label(ctx context.Context, entities []string) (string, error) {
	prompt := labelPrompt(strings.Join(entities, ", "))

	if c.Cache != nil {
		if label, ok, err := c.Cache.GetLabel(ctx, prompt); err == nil && ok {
			return label, nil
		}
	}

	label, err := c.Chat(ctx, labelSystem, prompt)
	if err != nil {
		return "", err
	}
	label = strings.ToLower(strings.TrimSpace(label))

	if c.Cache != nil {
		if err := c.Cache.PutLabel(ctx, prompt, label); err != nil {
			return "", fmt.Errorf("cache label: %w", err)
		}
	}
	return label, nil
}

// ExamplesOfLabel returns example entities for a label, e.g. "musicians" →
// ["dylan", "mozart", ...].
func (c *Client) ExamplesOfLabel(ctx context.Context, label string) ([]string, error) {
	answer, err := c.Chat(ctx, labelSystem, examplesPrompt(label))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, part := range strings.Split(answer, ", ") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

func labelPrompt(entitiesStr string) string {
	return strings.ToLower(fmt.Sprintf(`
Entities: rollouts, releases/rollouts, link-outs, rollout, rollouts/releases, deliverables/dependencies
Label: release-related

Entities: unclear, 1265, good, expected, UpToDate, hot, difficult, tomorrow, Russia
Label: none

Entities: Sleep, Making out, Shower, Morning, Funeral, Driving, Eating
Label: activities

Entities: Man, Woman, Nonconforming
Label: genders

Entities: fabulous, outstanding, interesting, delicious, beautiful, interesting, fascinating, awesome, wonderful
Label: positive adjectives

Entities: 1990s, 1970s, Early 2000s, 2000s, 1980s, 1920s, 1980, 1950s, Roaring Twenties
Label: decades

Entities: %s
Label: `, entitiesStr))
}

func examplesPrompt(label string) string {
	return strings.ToLower(fmt.Sprintf(`
Label: activities
Entities: Sleep, Making out, Shower, Morning, Funeral, Driving, Eating

Label: decades
Entities: 1990s, 1970s, Early 2000s, 1980, 1950s, Roaring Twenties

Label: subjects
Entities: English, Post-modernism, Calculous, Robotics, Early french literature

Label: genders
Entities: Man, Woman, Nonconforming

Label: %s
Entities:`, label))
}

// Extractor implements synth.Extractor: it asks the model for exemplar
// entities of the query and grounds each exemplar in the rows that mention
// it. Exemplars absent from the corpus are dropped. One model call per
// extraction request.
type Extractor struct {
	Client *Client
}

// ExtractAndLabel implements synth.Extractor.
func (e *Extractor) ExtractAndLabel(ctx context.Context, query string, rows []dataset.Row) ([]synth.Extraction, error) {
	examples, err := e.Client.ExamplesOfLabel(ctx, query)
	if err != nil {
		return nil, err
	}

	var out []synth.Extraction
	for _, example := range examples {
		entity := index.Normalize(example)
		if entity == "" {
			continue
		}
		for _, row := range rows {
			if strings.Contains(strings.ToLower(row.Text), entity) {
				out = append(out, synth.Extraction{Entity: entity, Row: row.ID, Label: query})
			}
		}
	}
	return out, nil
}

// Searcher implements projection.Searcher: given the currently known
// category keys, it asks the model which are relevant to the query.
type Searcher struct {
	Client     *Client
	Categories func() []string
}

// SearchCategories implements projection.Searcher.
func (s *Searcher) SearchCategories(ctx context.Context, query string) ([]string, error) {
	known := s.Categories()
	if len(known) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(
		"Categories: %s\nQuery: %s\nAnswer with the comma-separated categories relevant to the query, or %s.",
		strings.Join(known, ", "), query, NoLabel)
	answer, err := s.Client.Chat(ctx, labelSystem, prompt)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(answer), NoLabel) {
		return nil, nil
	}

	knownSet := make(map[string]struct{}, len(known))
	for _, key := range known {
		knownSet[key] = struct{}{}
	}
	var out []string
	for _, part := range strings.Split(answer, ",") {
		key := index.Normalize(part)
		// Models pad answers with inventions; only keys the index holds
		// pass through.
		if _, ok := knownSet[key]; ok {
			out = append(out, key)
		}
	}
	return out, nil
}
