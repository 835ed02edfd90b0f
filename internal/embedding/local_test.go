package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// newLocalTestServer serves an Ollama-style embeddings endpoint and counts
// total and warm-up requests.
func newLocalTestServer(t *testing.T, dim int, total, warmups *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req localEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		total.Add(1)
		if req.Prompt == warmProbeText {
			warmups.Add(1)
		}

		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = 0.1
		}
		_ = json.NewEncoder(w).Encode(localEmbedResponse{Embedding: vec})
	}))
}

func newLocalProvider(srvURL, modelID string) *Local {
	return NewLocal(Config{
		LocalModelID: modelID,
		LocalBaseURL: srvURL,
		Enabled:      true,
		APIKey:       "unused",
	}, nil)
}

func TestLocalWarmsExactlyOnce(t *testing.T) {
	t.Cleanup(ResetWarmRegistry)

	var total, warmups atomic.Int32
	srv := newLocalTestServer(t, 8, &total, &warmups)
	defer srv.Close()

	p := newLocalProvider(srv.URL, "warm-once-model")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecs, err := p.Encode(ctx, []string{"hello"})
			if err != nil {
				t.Errorf("Encode failed: %v", err)
				return
			}
			if len(vecs) != 1 || len(vecs[0]) != 8 {
				t.Errorf("unexpected shape %dx%d", len(vecs), len(vecs[0]))
			}
		}()
	}
	wg.Wait()

	if warmups.Load() != 1 {
		t.Fatalf("expected exactly one warm-up call, got %d", warmups.Load())
	}
	if total.Load() != 21 {
		t.Fatalf("expected 1 warm-up + 20 encodes, got %d requests", total.Load())
	}
}

func TestLocalDimensionFromWarmup(t *testing.T) {
	t.Cleanup(ResetWarmRegistry)

	var total, warmups atomic.Int32
	srv := newLocalTestServer(t, 1024, &total, &warmups)
	defer srv.Close()

	p := newLocalProvider(srv.URL, "dim-model")
	ctx := context.Background()

	dim, err := p.Dimension(ctx)
	if err != nil {
		t.Fatalf("Dimension failed: %v", err)
	}
	if dim != 1024 {
		t.Fatalf("expected 1024, got %d", dim)
	}

	// Second query answers from the warm registry.
	if _, err := p.Dimension(ctx); err != nil {
		t.Fatalf("second Dimension failed: %v", err)
	}
	if total.Load() != 1 {
		t.Fatalf("expected one request total, got %d", total.Load())
	}

	if known, ok := p.KnownDimension(); !ok || known != 1024 {
		t.Fatalf("expected warm registry to expose 1024, got %d ok=%v", known, ok)
	}
}

func TestLocalFailedWarmupRetries(t *testing.T) {
	t.Cleanup(ResetWarmRegistry)

	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "model loading", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(localEmbedResponse{Embedding: []float32{1, 2, 3}})
	}))
	defer srv.Close()

	p := newLocalProvider(srv.URL, "retry-model")
	ctx := context.Background()

	if _, err := p.Dimension(ctx); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	// A failed warm-up is not memoized; the next caller succeeds.
	fail.Store(false)
	dim, err := p.Dimension(ctx)
	if err != nil {
		t.Fatalf("Dimension after recovery failed: %v", err)
	}
	if dim != 3 {
		t.Fatalf("expected 3, got %d", dim)
	}
}

func TestLocalUnconfigured(t *testing.T) {
	p := &Local{} // no model id, no URL
	if p.Available() {
		t.Fatalf("expected unconfigured provider to be unavailable")
	}
	if _, err := p.Encode(context.Background(), []string{"x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
