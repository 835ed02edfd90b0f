package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"promptvector/internal/embedding"
	"promptvector/pkg/logging"
)

// Embedder is the slice of the embedding service the handlers need.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension(ctx context.Context) (int, error)
}

// EmbedHandler serves /v1/embeddings and /v1/dimension.
type EmbedHandler struct {
	Service Embedder
}

func NewEmbedHandler(service Embedder) *EmbedHandler {
	return &EmbedHandler{Service: service}
}

// embedRequest accepts "input" as either a single string or an array.
type embedRequest struct {
	Input json.RawMessage `json:"input"`
}

type embedResponse struct {
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

// Embeddings handles POST /v1/embeddings.
func (h *EmbedHandler) Embeddings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	texts, err := parseInput(req.Input)
	if err != nil {
		logger.Warn("invalid input field", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vectors, err := h.Service.GenerateBatch(ctx, texts)
	if err != nil {
		writeGenerationError(w, logger, err)
		return
	}

	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}

	logger.Info("embeddings_generated",
		zap.Int("inputs", len(texts)),
		zap.Int("dimension", dimension),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, embedResponse{
		Dimension: dimension,
		Vectors:   vectors,
	})
}

// GetDimension handles GET /v1/dimension.
func (h *EmbedHandler) GetDimension(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	dim, err := h.Service.Dimension(ctx)
	if err != nil {
		writeGenerationError(w, logger, err)
		return
	}

	writeJSON(w, map[string]int{"dimension": dim})
}

// parseInput accepts "abc" or ["abc", "def"]. Empty inputs are rejected so
// a malformed caller fails loudly instead of embedding nothing.
func parseInput(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, errInputRequired
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, errInputRequired
		}
		return []string{single}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errInputMalformed
	}
	if len(many) == 0 {
		return nil, errInputRequired
	}
	return many, nil
}

func writeGenerationError(w http.ResponseWriter, logger *zap.Logger, err error) {
	logger.Error("embedding_failed", zap.Error(err))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": embedding.ErrGenerationFailed.Error(),
	})
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
