// Package handler exposes the match engine, the index store and the result
// cache over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goleaf/newsblog-search/internal/indexer"
	"github.com/goleaf/newsblog-search/internal/searcher"
	apperrors "github.com/goleaf/newsblog-search/pkg/errors"
	"github.com/goleaf/newsblog-search/pkg/logger"
)

type Searcher interface {
	Search(ctx context.Context, query string, opts searcher.Options) ([]searcher.Result, error)
	MultiFieldSearch(ctx context.Context, query string, fields []string, opts searcher.Options) ([]searcher.Result, error)
	GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, error)
}

type IndexManager interface {
	BuildAll(ctx context.Context) (int, error)
	Rebuild(ctx context.Context, t indexer.Type) (int, error)
	ClearIndex(ctx context.Context) error
	GetStats(ctx context.Context) (map[indexer.Type]indexer.Stats, error)
}

type ResultCache interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
	SupportsInvalidation() bool
}

type Handler struct {
	searcher Searcher
	index    IndexManager
	cache    ResultCache
	logger   *slog.Logger
}

// New builds a Handler. A nil cache reports caching as disabled.
func New(s Searcher, idx IndexManager, rc ResultCache) *Handler {
	return &Handler{
		searcher: s,
		index:    idx,
		cache:    rc,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/multi", h.MultiSearch)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.RebuildIndex)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("DELETE /api/v1/index", h.ClearIndex)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchResponse struct {
	Query     string            `json:"query"`
	Type      indexer.Type      `json:"type"`
	Total     int               `json:"total"`
	Results   []searcher.Result `json:"results"`
	LatencyMs int64             `json:"latency_ms"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.searcher.Search(r.Context(), query, opts)
	if err != nil {
		h.writeSearchError(w, r, query, err)
		return
	}
	if opts.Type == "" {
		opts.Type = indexer.Posts
	}
	h.respond(w, r, query, opts.Type, results, start)
}

func (h *Handler) MultiSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}

	results, err := h.searcher.MultiFieldSearch(r.Context(), query, fields, opts)
	if err != nil {
		h.writeSearchError(w, r, query, err)
		return
	}
	h.respond(w, r, query, indexer.Posts, results, start)
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("q")
	limit, err := intParam(r, "limit")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	suggestions, err := h.searcher.GetSuggestions(r.Context(), prefix, int(limit))
	if err != nil {
		h.writeSearchError(w, r, prefix, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":       prefix,
		"suggestions": suggestions,
	})
}

// RebuildIndex rebuilds one index type when ?type= is given, otherwise all
// of them.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var (
		count int
		err   error
		scope = "all"
	)
	if raw := r.URL.Query().Get("type"); raw != "" {
		scope = raw
		count, err = h.index.Rebuild(ctx, indexer.Type(raw))
	} else {
		count, err = h.index.BuildAll(ctx)
	}
	if err != nil {
		log.Error("index rebuild failed", "scope", scope, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	log.Info("index rebuilt", "scope", scope, "entries", count)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "rebuilt",
		"scope":   scope,
		"entries": count,
	})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.GetStats(r.Context())
	if err != nil {
		h.logger.Error("index stats failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "index stats unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ClearIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.index.ClearIndex(r.Context()); err != nil {
		h.logger.Error("index clear failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "index clear failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":                  hits,
		"misses":                misses,
		"total":                 total,
		"hit_rate":              fmt.Sprintf("%.1f%%", hitRate),
		"supports_invalidation": h.cache.SupportsInvalidation(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, query string, t indexer.Type, results []searcher.Result, start time.Time) {
	latency := time.Since(start).Milliseconds()
	logger.FromContext(r.Context()).Info("search completed",
		"query", query,
		"type", t,
		"returned", len(results),
		"latency_ms", latency,
	)
	if results == nil {
		results = []searcher.Result{}
	}
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:     query,
		Type:      t,
		Total:     len(results),
		Results:   results,
		LatencyMs: latency,
	})
}

// writeSearchError maps engine errors. Only malformed input is expected
// here; anything else is reported as an internal failure.
func (h *Handler) writeSearchError(w http.ResponseWriter, r *http.Request, query string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("search failed", "query", query, "error", err)
		h.writeError(w, status, "search failed")
		return
	}
	h.writeError(w, status, err.Error())
}

func parseOptions(r *http.Request) (searcher.Options, error) {
	q := r.URL.Query()
	opts := searcher.Options{Type: indexer.Type(q.Get("type"))}

	var err error
	if opts.CategoryID, err = intParam(r, "category"); err != nil {
		return opts, err
	}
	if opts.AuthorID, err = intParam(r, "author"); err != nil {
		return opts, err
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		return opts, err
	}
	opts.Limit = int(limit)
	if opts.From, err = timeParam(r, "from"); err != nil {
		return opts, err
	}
	if opts.To, err = timeParam(r, "to"); err != nil {
		return opts, err
	}
	if raw := q.Get("highlight"); raw != "" {
		if opts.Highlight, err = strconv.ParseBool(raw); err != nil {
			return opts, fmt.Errorf("highlight must be a boolean")
		}
	}
	return opts, nil
}

func intParam(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

// timeParam accepts RFC 3339 timestamps or plain dates.
func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s must be an RFC 3339 timestamp or a YYYY-MM-DD date", name)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
