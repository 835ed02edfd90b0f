package cache

import (
	"strings"
	"testing"
)

func TestGenerateKeyContract(t *testing.T) {
	// Optional fields keep their segment: empty version, defaulted limit.
	got := GenerateKey("python", "requests", "latest", "", 0)
	if got != "python:requests:latest::1" {
		t.Fatalf("expected python:requests:latest::1, got %q", got)
	}
}

func TestGenerateKeyDeterministic(t *testing.T) {
	a := GenerateKey("ns", "subj", "op", "v2", 10)
	b := GenerateKey("ns", "subj", "op", "v2", 10)
	if a != b {
		t.Fatalf("identical arguments produced different keys: %q vs %q", a, b)
	}
	if a != "ns:subj:op:v2:10" {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestFingerprintKeyStable(t *testing.T) {
	a := FingerprintKey("text-embedding-3-small", "hello world")
	b := FingerprintKey("text-embedding-3-small", "hello world")
	if a != b {
		t.Fatalf("fingerprint not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "emb:text-embedding-3-small:") {
		t.Fatalf("unexpected prefix in %q", a)
	}
	if c := FingerprintKey("text-embedding-3-small", "hello worlds"); c == a {
		t.Fatalf("different texts produced the same key")
	}
}
