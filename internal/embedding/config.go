package embedding

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Priority decides which provider is attempted first.
type Priority string

const (
	LocalFirst  Priority = "local_first"
	RemoteFirst Priority = "remote_first"
)

// Config holds the embedding engine settings.
type Config struct {
	// Dimension is the static vector width. Zero means the width is
	// resolved dynamically (see Service.Dimension).
	Dimension int

	// Remote provider settings (OpenAI-compatible).
	Enabled bool   // whether the remote path is permitted at all
	Model   string // remote model name, e.g. text-embedding-3-small
	APIKey  string
	BaseURL string

	// Local provider settings (Ollama-compatible).
	LocalModelID string
	LocalBaseURL string

	Priority Priority

	MaxLength int // truncation bound per input text, in runes
	BatchSize int // max items per remote provider call

	UpstreamTimeout time.Duration // per-request timeout (default: 30s)
	MaxRetries      int           // remote retry attempts (default: 2)
	BaseBackoff     time.Duration // initial backoff (default: 100ms)

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks that at least one provider path is usable.
func (c *Config) Validate() error {
	remoteOK := c.Enabled && c.APIKey != "" && c.Model != ""
	localOK := c.LocalModelID != "" && c.LocalBaseURL != ""
	if !remoteOK && !localOK {
		return fmt.Errorf("%w: neither local nor remote provider is usable", ErrNotConfigured)
	}
	if c.Priority != LocalFirst && c.Priority != RemoteFirst {
		return fmt.Errorf("invalid provider priority %q", c.Priority)
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	// Normalize base URLs: trim trailing slashes so paths append cleanly.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.LocalBaseURL = strings.TrimRight(cfg.LocalBaseURL, "/")

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Priority == "" {
		cfg.Priority = RemoteFirst
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 8192
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 12
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// defaultTransport creates an HTTP transport with connection pooling and
// reasonable timeouts.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// truncate bounds a text to max runes. Provider payload guard; the callers
// above this core are free to chunk however they like.
func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
