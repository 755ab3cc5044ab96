// Package annotate implements the offline half of the system: per-row entity
// annotation and LLM-assisted grouping of those entities into labeled
// categories.
package annotate

import (
	"strings"
	"unicode"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
)

// Annotator extracts normalized entity candidates from row text, filtering
// stopwords, single characters, and purely numeric tokens.
type Annotator struct {
	stopwords map[string]struct{}
}

// NewAnnotator creates an annotator with the given stopword list.
func NewAnnotator(stopwords []string) *Annotator {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Annotator{stopwords: stops}
}

// Entities returns the entities found in one text, deduplicated preserving
// first occurrence.
func (a *Annotator) Entities(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := a.processToken(current.String())
		current.Reset()
		if word == "" {
			return
		}
		if _, dup := seen[word]; dup {
			return
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return out
}

// AnnotateRows fills in the Entities field of every row.
func (a *Annotator) AnnotateRows(rows []dataset.Row) {
	for i := range rows {
		rows[i].Entities = a.Entities(rows[i].Text)
	}
}

// processToken applies cleaning, normalization, and stopword filtering.
func (a *Annotator) processToken(token string) string {
	word := cleanToken(token)
	if word == "" || len(word) <= 1 {
		return ""
	}
	if isNumericOnly(word) {
		return ""
	}
	word = index.Normalize(word)
	if _, stop := a.stopwords[word]; stop {
		return ""
	}
	return word
}

// cleanToken strips leading/trailing hyphens and collapses runs of hyphens.
func cleanToken(token string) string {
	token = strings.Trim(token, "-")
	for strings.Contains(token, "--") {
		token = strings.ReplaceAll(token, "--", "-")
	}
	return token
}

// isNumericOnly returns true if the token contains only digits and hyphens.
// Mixed tokens like "1990s" or "utf-8" are kept.
func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}
