package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func remoteTestConfig(srvURL, model string) Config {
	return Config{
		Enabled:     true,
		Model:       model,
		APIKey:      "test-key",
		BaseURL:     srvURL,
		BatchSize:   2,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
	}
}

func writeRemoteVectors(w http.ResponseWriter, n, dim int, reversed bool) {
	var resp remoteEmbedResponse
	for i := 0; i < n; i++ {
		idx := i
		if reversed {
			idx = n - 1 - i
		}
		vec := make([]float32, dim)
		vec[0] = float32(idx + 1)
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: idx, Embedding: vec})
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestRemoteEncodeBatchesAndOrders(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}

		var req remoteEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		calls.Add(1)
		// Answer out of order; the client must realign by index.
		writeRemoteVectors(w, len(req.Input), 4, true)
	}))
	defer srv.Close()

	p := NewRemote(remoteTestConfig(srv.URL, "mystery-model"), nil)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := p.Encode(context.Background(), texts)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, vec := range vecs {
		// 5 inputs at BatchSize 2 → chunks of 2, 2, 1; markers restart per chunk.
		expected := float32(i%2 + 1)
		if vec[0] != expected {
			t.Fatalf("vector %d misordered: marker %v, expected %v", i, vec[0], expected)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 chunked calls for 5 inputs at batch size 2, got %d", calls.Load())
	}
}

func TestRemoteRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		writeRemoteVectors(w, 1, 4, false)
	}))
	defer srv.Close()

	p := NewRemote(remoteTestConfig(srv.URL, "mystery-model"), nil)

	vecs, err := p.Encode(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Encode failed after retry: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 4 {
		t.Fatalf("unexpected shape")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestRemoteDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewRemote(remoteTestConfig(srv.URL, "mystery-model"), nil)

	_, err := p.Encode(context.Background(), []string{"hello"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("auth failure retried: %d attempts", calls.Load())
	}
}

func TestRemoteKnownDimensions(t *testing.T) {
	cases := []struct {
		model string
		dim   int
		known bool
	}{
		{"text-embedding-3-large", 3072, true},
		{"text-embedding-3-small", 1536, true},
		{"text-embedding-ada-002", 1536, true},
		{"Text-Embedding-3-Small", 1536, true}, // case-insensitive
		{"mystery-model", 0, false},
	}

	for _, tc := range cases {
		p := NewRemote(remoteTestConfig("http://unused", tc.model), nil)
		dim, ok := p.KnownDimension()
		if ok != tc.known || dim != tc.dim {
			t.Fatalf("%s: got dim=%d ok=%v, expected dim=%d ok=%v", tc.model, dim, ok, tc.dim, tc.known)
		}
	}
}

func TestRemoteUnavailableWithoutKey(t *testing.T) {
	cfg := remoteTestConfig("http://unused", "text-embedding-3-small")
	cfg.APIKey = ""
	p := NewRemote(cfg, nil)

	if p.Available() {
		t.Fatalf("expected provider without credential to be unavailable")
	}
	if _, err := p.Encode(context.Background(), []string{"x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
