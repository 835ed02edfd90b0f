package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"promptvector/internal/index"
	"promptvector/pkg/logging"
)

var (
	errInputRequired  = errors.New("input is required")
	errInputMalformed = errors.New("input must be a string or an array of strings")
)

// SearchHandler serves /v1/index and /v1/search: embedding-backed upsert
// and k-nearest-neighbour lookup over prompt descriptions.
type SearchHandler struct {
	Service Embedder
	Index   *index.Index
}

func NewSearchHandler(service Embedder, ix *index.Index) *SearchHandler {
	return &SearchHandler{Service: service, Index: ix}
}

type indexRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Upsert handles POST /v1/index: embeds the text and stores it under id.
func (h *SearchHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" || req.Text == "" {
		http.Error(w, "id and text are required", http.StatusBadRequest)
		return
	}

	vec, err := h.Service.Generate(ctx, req.Text)
	if err != nil {
		writeGenerationError(w, logger, err)
		return
	}

	if err := h.Index.Add(req.ID, vec); err != nil {
		logger.Error("index_add_failed", zap.String("id", req.ID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	logger.Info("indexed",
		zap.String("id", req.ID),
		zap.Int("dimension", len(vec)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, map[string]any{"id": req.ID, "dimension": len(vec)})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []index.Result `json:"results"`
}

// Search handles POST /v1/search: embeds the query and returns the top-k
// nearest indexed ids with similarity scores.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	vec, err := h.Service.Generate(ctx, req.Query)
	if err != nil {
		writeGenerationError(w, logger, err)
		return
	}

	results, err := h.Index.Search(vec, req.Limit)
	if err != nil {
		logger.Error("search_failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	logger.Info("search_served",
		zap.Int("limit", req.Limit),
		zap.Int("results", len(results)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, searchResponse{Results: results})
}
