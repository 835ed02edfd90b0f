package embedding

import "context"

// Provider is the capability contract shared by the local and remote
// embedding backends. Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Available reports whether the provider is configured well enough to
	// attempt a call. It performs no I/O: "no credential" is a
	// configuration state checked here, not an error caught later.
	Available() bool

	// Encode converts texts to vectors, one per input, positionally
	// aligned. It either returns len(texts) vectors or an error; partial
	// results are never returned.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the provider's native output width. This may
	// require I/O (e.g. warming a local model, or one probe call).
	Dimension(ctx context.Context) (int, error)

	// KnownDimension returns the output width when it is known without
	// any I/O, e.g. a published width for a recognized remote model.
	KnownDimension() (int, bool)
}
