package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loading an on-device model is costly and must happen at most once per
// process per model id, no matter how many Local instances or goroutines
// race for it. The registry records the native dimension observed by the
// warm-up call; the singleflight group collapses concurrent warm-ups. A
// failed or cancelled warm-up is not recorded, so a later caller retries.
var (
	warmMu       sync.Mutex
	warmDims     = map[string]int{}
	warmInflight singleflight.Group
)

// ResetWarmRegistry clears the process-wide warm state. For tests.
func ResetWarmRegistry() {
	warmMu.Lock()
	warmDims = map[string]int{}
	warmMu.Unlock()
}

const warmProbeText = "warmup"

// Local wraps an on-device model served over an Ollama-compatible API.
// The model is loaded lazily: the first encode or dimension query issues a
// warm-up call that pulls the model into memory on the serving side.
type Local struct {
	modelID    string
	baseURL    string
	maxLength  int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLocal creates the local provider. The returned provider performs no
// I/O until first use.
func NewLocal(cfg Config, logger *zap.Logger) *Local {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: defaultTransport(cfg)}
	}

	return &Local{
		modelID:    cfg.LocalModelID,
		baseURL:    cfg.LocalBaseURL,
		maxLength:  cfg.MaxLength,
		httpClient: httpClient,
		logger:     logger.Named("local_embedding"),
	}
}

func (p *Local) Name() string { return "local" }

// Available reports whether a model id and serving URL are configured.
func (p *Local) Available() bool {
	return p.modelID != "" && p.baseURL != ""
}

// Encode embeds the texts through the local model, one request per text.
// The serving API takes a single prompt per call; order is preserved by
// construction. Any failure fails the whole batch.
func (p *Local) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.Available() {
		return nil, fmt.Errorf("%w: local model id or URL missing", ErrNotConfigured)
	}
	if _, err := p.warm(ctx); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := p.encodeOne(ctx, truncate(text, p.maxLength))
		if err != nil {
			return nil, fmt.Errorf("local encode [%d/%d]: %w", i+1, len(texts), err)
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimension returns the model's native output width, warming the model if
// needed.
func (p *Local) Dimension(ctx context.Context) (int, error) {
	if !p.Available() {
		return 0, fmt.Errorf("%w: local model id or URL missing", ErrNotConfigured)
	}
	return p.warm(ctx)
}

// KnownDimension reports the native width only once the model has been
// warmed; before that the width is unknown without I/O.
func (p *Local) KnownDimension() (int, bool) {
	warmMu.Lock()
	defer warmMu.Unlock()
	dim, ok := warmDims[p.modelID]
	return dim, ok
}

// warm loads the model at most once per process per model id. Concurrent
// callers wait on the same in-flight load.
func (p *Local) warm(ctx context.Context) (int, error) {
	warmMu.Lock()
	if dim, ok := warmDims[p.modelID]; ok {
		warmMu.Unlock()
		return dim, nil
	}
	warmMu.Unlock()

	res, err, _ := warmInflight.Do(p.modelID, func() (interface{}, error) {
		start := time.Now()
		vec, err := p.encodeOne(ctx, warmProbeText)
		if err != nil {
			return 0, fmt.Errorf("%w: local model %s warm-up: %v", ErrProviderUnavailable, p.modelID, err)
		}

		warmMu.Lock()
		warmDims[p.modelID] = len(vec)
		warmMu.Unlock()

		p.logger.Info("local model warmed",
			zap.String("model_id", p.modelID),
			zap.Int("dimension", len(vec)),
			zap.Duration("took", time.Since(start)),
		)
		return len(vec), nil
	})
	if err != nil {
		p.logger.Error("local model warm-up failed",
			zap.String("model_id", p.modelID),
			zap.Error(err),
		)
		return 0, err
	}
	return res.(int), nil
}

type localEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *Local) encodeOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(localEmbedRequest{
		Model:  p.modelID,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: local model status %d: %s",
			ErrProviderUnavailable, resp.StatusCode, bytes.TrimSpace(payload))
	}

	var parsed localEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("%w: local model returned empty vector", ErrProviderUnavailable)
	}

	return parsed.Embedding, nil
}
