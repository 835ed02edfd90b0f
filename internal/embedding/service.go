package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"promptvector/internal/cache"
	"promptvector/internal/metrics"
)

// probeText is the fixed input for dimension-probe generation calls.
const probeText = "test"

// Decision records which provider serviced the most recent generation and
// why. Diagnostics only; never persisted.
type Decision struct {
	Provider string
	Reason   string // "priority" or "fallback"
	At       time.Time
}

// Service orchestrates provider selection, dynamic dimension resolution,
// and single/batch generation. Safe for concurrent use.
type Service struct {
	cfg    Config
	local  Provider // nil when no local path is configured
	remote Provider // nil when no remote path is configured
	store  cache.Store
	logger *zap.Logger

	mu       sync.Mutex
	dim      int // resolved width; 0 until resolution succeeds
	decision Decision

	dimFlight singleflight.Group
}

// NewService wires the service. Pass nil for an absent provider, and nil
// store to disable the result cache.
func NewService(cfg Config, local, remote Provider, store cache.Store, logger *zap.Logger) (*Service, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cfg:    cfg,
		local:  local,
		remote: remote,
		store:  store,
		logger: logger.Named("embedding"),
	}, nil
}

// Generate returns one vector for the text, consulting the result cache
// first when one is configured.
func (s *Service) Generate(ctx context.Context, text string) ([]float32, error) {
	if vec, hit := s.cacheGet(ctx, text); hit {
		return vec, nil
	}

	vecs, err := s.encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	s.cachePut(ctx, text, vecs[0])
	return vecs[0], nil
}

// GenerateBatch returns one vector per input text, positionally aligned.
// The batch is all-or-nothing: a provider either returns every vector or
// the whole batch moves to the fallback provider (or fails); a partial
// result is never returned. In dynamic-dimension mode vector widths may
// differ across the output.
func (s *Service) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs, err := s.encode(ctx, texts)
	if err != nil {
		return nil, err
	}

	for i, text := range texts {
		s.cachePut(ctx, text, vecs[i])
	}
	return vecs, nil
}

// Dimension resolves the output vector width once per service instance and
// reuses it. Precedence: explicit configuration, then the local provider's
// native width under local-first priority, then a recognized remote model's
// published width, then one probe generation. Concurrent resolutions share
// a single flight; only success is memoized, so a cancelled resolver leaves
// retry possible.
func (s *Service) Dimension(ctx context.Context) (int, error) {
	if s.cfg.Dimension > 0 {
		return s.cfg.Dimension, nil
	}

	s.mu.Lock()
	if s.dim > 0 {
		dim := s.dim
		s.mu.Unlock()
		return dim, nil
	}
	s.mu.Unlock()

	res, err, _ := s.dimFlight.Do("dimension", func() (interface{}, error) {
		return s.resolveDimension(ctx)
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

func (s *Service) resolveDimension(ctx context.Context) (int, error) {
	// Local-first priority asks the local model for its native width even
	// when the remote model name is recognized: a local fallback is
	// intended, so no network call should be needed.
	if s.cfg.Priority == LocalFirst && s.local != nil && s.local.Available() {
		dim, err := s.local.Dimension(ctx)
		if err == nil {
			s.memoizeDim(dim)
			return dim, nil
		}
		if ctx.Err() != nil {
			return 0, err
		}
		s.logger.Warn("local dimension query failed, trying next rule", zap.Error(err))
	}

	// Recognized remote model: published width, no network call.
	if s.remote != nil {
		if dim, ok := s.remote.KnownDimension(); ok {
			s.memoizeDim(dim)
			return dim, nil
		}
	}

	// Probe: one real generation call; the vector length is the width.
	vecs, err := s.encode(ctx, []string{probeText})
	if err != nil {
		return 0, fmt.Errorf("dimension probe: %w", err)
	}
	dim := len(vecs[0])
	s.memoizeDim(dim)
	return dim, nil
}

func (s *Service) memoizeDim(dim int) {
	s.mu.Lock()
	s.dim = dim
	s.mu.Unlock()
}

// LastDecision returns provider/reason for the most recent generation.
func (s *Service) LastDecision() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision
}

// encode runs the configured providers in priority order. The primary is
// attempted when available; on failure the secondary is tried. Context
// cancellation stops the chain immediately.
func (s *Service) encode(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for i, p := range s.providers() {
		if p == nil || !p.Available() {
			continue
		}

		start := time.Now()
		vecs, err := p.Encode(ctx, texts)
		metrics.ProviderLatencySeconds.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			s.logger.Warn("provider failed, falling back",
				zap.String("provider", p.Name()),
				zap.Int("batch", len(texts)),
				zap.Error(err),
			)
			continue
		}

		if len(vecs) != len(texts) {
			lastErr = fmt.Errorf("%w: provider %s returned %d vectors for %d inputs",
				ErrProviderUnavailable, p.Name(), len(vecs), len(texts))
			s.logger.Warn("provider returned misaligned batch, falling back",
				zap.String("provider", p.Name()),
				zap.Error(lastErr),
			)
			continue
		}

		reason := "priority"
		if i > 0 {
			reason = "fallback"
		}
		s.recordDecision(p.Name(), reason)
		metrics.EmbeddingsGeneratedTotal.WithLabelValues(p.Name()).Add(float64(len(vecs)))
		return vecs, nil
	}

	if lastErr == nil {
		lastErr = ErrNotConfigured
	}
	return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, lastErr)
}

// providers returns the attempt order for the configured priority.
func (s *Service) providers() []Provider {
	if s.cfg.Priority == LocalFirst {
		return []Provider{s.local, s.remote}
	}
	return []Provider{s.remote, s.local}
}

func (s *Service) recordDecision(provider, reason string) {
	s.mu.Lock()
	s.decision = Decision{Provider: provider, Reason: reason, At: time.Now()}
	s.mu.Unlock()
}

func (s *Service) cacheGet(ctx context.Context, text string) ([]float32, bool) {
	if s.store == nil {
		return nil, false
	}

	key := cache.FingerprintKey(s.cfg.Model, text)
	payload, hit, err := s.store.Get(ctx, key)
	if err != nil || !hit {
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(payload, &vec); err != nil {
		s.logger.Warn("corrupt cached vector, regenerating",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false
	}
	return vec, true
}

func (s *Service) cachePut(ctx context.Context, text string, vec []float32) {
	if s.store == nil {
		return
	}

	payload, err := json.Marshal(vec)
	if err != nil {
		return
	}

	key := cache.FingerprintKey(s.cfg.Model, text)
	if err := s.store.Set(ctx, key, payload); err != nil {
		s.logger.Warn("result cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
