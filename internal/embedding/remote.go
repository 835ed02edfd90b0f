package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// knownModelDims maps recognized remote model names to their published
// output widths, so the dimension can be resolved without a network call.
var knownModelDims = []struct {
	substr string
	dim    int
}{
	{"text-embedding-3-large", 3072},
	{"text-embedding-3-small", 1536},
	{"ada-002", 1536},
}

// Remote wraps an OpenAI-compatible embeddings API. Dimension is
// model-dependent and not always known a priori.
type Remote struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRemote creates the remote provider.
func NewRemote(cfg Config, logger *zap.Logger) *Remote {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: defaultTransport(cfg)}
	}

	return &Remote{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("remote_embedding"),
	}
}

func (p *Remote) Name() string { return "remote" }

// Available reports whether the remote path is permitted and has a
// credential. Checked before any call is attempted.
func (p *Remote) Available() bool {
	return p.cfg.Enabled && p.cfg.APIKey != "" && p.cfg.Model != ""
}

// Encode embeds the texts through the remote API, batching up to BatchSize
// inputs per call. Output is positionally aligned with the input. Any chunk
// failure fails the whole batch; no partial result is returned.
func (p *Remote) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.Available() {
		return nil, fmt.Errorf("%w: remote provider disabled or missing credential", ErrNotConfigured)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		chunk := make([]string, 0, end-start)
		for _, text := range texts[start:end] {
			chunk = append(chunk, truncate(text, p.cfg.MaxLength))
		}

		vecs, err := p.encodeChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimension returns the model's output width: the published width when the
// model is recognized, otherwise the width of a single probe call.
func (p *Remote) Dimension(ctx context.Context) (int, error) {
	if dim, ok := p.KnownDimension(); ok {
		return dim, nil
	}
	vecs, err := p.Encode(ctx, []string{warmProbeText})
	if err != nil {
		return 0, err
	}
	return len(vecs[0]), nil
}

// KnownDimension reports the published width for recognized models without
// any network call.
func (p *Remote) KnownDimension() (int, bool) {
	model := strings.ToLower(p.cfg.Model)
	for _, known := range knownModelDims {
		if strings.Contains(model, known.substr) {
			return known.dim, true
		}
	}
	return 0, false
}

type remoteEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type remoteEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// encodeChunk issues one API call for up to BatchSize inputs, retrying
// transient failures with exponential backoff and jitter. Context errors
// and non-retryable statuses stop the retry loop immediately.
func (p *Remote) encodeChunk(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.UpstreamTimeout)
	defer cancel()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackoff(p.cfg.BaseBackoff), uint64(p.cfg.MaxRetries)),
		callCtx,
	)

	var vecs [][]float32
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		result, err := p.callOnce(callCtx, texts)
		if err != nil {
			p.logger.Debug("remote embeddings attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("batch", len(texts)),
				zap.Error(err),
			)
			return err
		}
		vecs = result
		return nil
	}, policy)
	if err != nil {
		p.logger.Warn("remote embeddings request exhausted retries",
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return nil, err
	}
	return vecs, nil
}

func newBackoff(base time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries and the call context
	return b
}

// callOnce performs a single API call. Retryable failures come back as
// plain errors; non-retryable ones are wrapped in backoff.Permanent so the
// retry loop stops.
func (p *Remote) callOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(remoteEmbedRequest{
		Model: p.cfg.Model,
		Input: texts,
	})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Context errors never retry.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, backoff.Permanent(err)
		}
		if isTransientNetError(err) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrProviderUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := fmt.Errorf("%w: remote status %d: %s",
			ErrProviderUnavailable, resp.StatusCode, bytes.TrimSpace(payload))
		if shouldRetryStatus(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	var parsed remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: remote error: %s",
			ErrProviderUnavailable, parsed.Error.Message))
	}
	if len(parsed.Data) != len(texts) {
		return nil, backoff.Permanent(fmt.Errorf("%w: remote returned %d vectors for %d inputs",
			ErrProviderUnavailable, len(parsed.Data), len(texts)))
	}

	// The API documents positional order but also carries indices; sort by
	// index so a permuted response still aligns with the input.
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// isTransientNetError determines whether a network error is worth retrying.
func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial", "read", "write":
			return true
		}
	}

	// Last resort for wrapped errors that lose their type.
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"temporary failure",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// shouldRetryStatus returns true for statuses that indicate a transient
// upstream condition.
func shouldRetryStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status == http.StatusRequestTimeout:
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		return false
	}
}
