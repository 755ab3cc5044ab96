// Package server exposes dataset sessions over HTTP for the histogram viewer.
// Each ?dir= query parameter names a dataset directory under the data root;
// the server keeps one open session per directory.
package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cognicore/histoscope/internal/llm"
	"github.com/cognicore/histoscope/pkg/histoscope"
	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/internalerr"
	"github.com/cognicore/histoscope/pkg/histoscope/store/jsondir"
)

// Options configure a viewer server. Client may be nil, in which case the
// synthesis endpoints report failure instead of calling a model.
type Options struct {
	DataRoot string
	Client   *llm.Client
}

// Server serves histogram data for the datasets under Options.DataRoot.
type Server struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*histoscope.Session
}

func New(opts Options) (*Server, error) {
	if opts.DataRoot == "" {
		return nil, errors.New("server: missing data root")
	}
	return &Server{
		opts:     opts,
		sessions: make(map[string]*histoscope.Session),
	}, nil
}

// Close closes every open session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for dir, sess := range s.sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.sessions, dir)
	}
	return firstErr
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /get_histograms", s.handleHistograms)
	mux.HandleFunc("GET /get_data", s.handleData)
	mux.HandleFunc("GET /search_histograms", s.handleSearch)
	mux.HandleFunc("GET /make_new_histogram", s.handleMakeHistogram)
	return mux
}

// session returns the open session for dir, opening it on first use.
func (s *Server) session(ctx context.Context, dir string) (*histoscope.Session, error) {
	if dir == "" || dir == ".." || strings.ContainsAny(dir, `/\`) {
		return nil, fmt.Errorf("invalid dir %q", dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[dir]; ok {
		return sess, nil
	}

	path := filepath.Join(s.opts.DataRoot, dir)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", dir, internalerr.ErrNotFound)
	}
	st, err := jsondir.Open(path)
	if err != nil {
		return nil, err
	}

	opts := histoscope.Options{Store: st}
	var searcher *llm.Searcher
	if s.opts.Client != nil {
		opts.Extractor = &llm.Extractor{Client: s.opts.Client}
		searcher = &llm.Searcher{Client: s.opts.Client}
		opts.Searcher = searcher
	}
	sess, err := histoscope.Open(ctx, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	if searcher != nil {
		searcher.Categories = sess.Index().Categories
	}
	s.sessions[dir] = sess
	return sess, nil
}

func (s *Server) handleHistograms(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOr4xx(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"histograms":    sess.Histograms(),
		"ids_by_entity": sess.IDsByEntity(),
	})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOr4xx(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	cw := csv.NewWriter(w)
	cw.Write([]string{dataset.TextColumn})
	for _, row := range sess.Rows() {
		cw.Write([]string{row.Text})
	}
	cw.Flush()
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOr4xx(w, r)
	if !ok {
		return
	}
	keys, err := sess.Project(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, map[string]any{"search_results": keys})
}

// handleMakeHistogram synthesizes a category for the given name and commits
// it with every synthesized entity selected, matching the original viewer
// behavior of persisting a new histogram as soon as it is made.
func (s *Server) handleMakeHistogram(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOr4xx(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("new_histogram_name")
	if name == "" {
		http.Error(w, "missing new_histogram_name", http.StatusBadRequest)
		return
	}

	cat, err := sess.StartSearch(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if len(cat.Entities) == 0 {
		sess.Cancel()
		writeJSON(w, map[string]any{cat.Key: []string{}})
		return
	}
	for _, entity := range cat.Entities {
		sess.Pending().Toggle(entity)
	}
	if err := sess.Commit(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := sess.Save(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{cat.Key: cat.Entities})
}

func (s *Server) sessionOr4xx(w http.ResponseWriter, r *http.Request) (*histoscope.Session, bool) {
	sess, err := s.session(r.Context(), r.URL.Query().Get("dir"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, internalerr.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
