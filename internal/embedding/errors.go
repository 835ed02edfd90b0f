package embedding

import "errors"

var (
	// ErrNotConfigured means the selected path is missing a required
	// credential or model id. Fatal for the call; never retried.
	ErrNotConfigured = errors.New("embedding provider not configured")

	// ErrProviderUnavailable means a provider could not service the call
	// (network failure, non-2xx, local model warm-up failure). The service
	// falls back to the alternate provider when one is configured.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrGenerationFailed means every configured provider was exhausted.
	ErrGenerationFailed = errors.New("embedding generation failed")
)
