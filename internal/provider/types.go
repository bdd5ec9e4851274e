// Package provider implements the Provider Backend: one instance per
// configured upstream, owning an HTTP client, mutable health state, and
// dialect translation. Three concrete dialects live in the openai,
// google, and anthropic subpackages; this package holds the shared
// interface, health record, registry, and null-content/http-client
// helpers every dialect backend is built from.
package provider

import (
	"context"

	"github.com/clawgate/clawgate/internal/chat"
)

// StreamChunk is one re-emitted SSE frame of a streaming completion. Err
// is set, with Data nil, when the upstream stream fails mid-flight; the
// channel is closed after an Err chunk or after the stream completes
// normally.
type StreamChunk struct {
	Data []byte
	Err  error
}

// Provider is the single contract every dialect backend implements.
// Complete returns exactly one of resp or stream non-nil depending on
// req.Stream: a decoded OpenAI-shape response, or a channel of raw SSE
// frames.
type Provider interface {
	Name() string
	Dialect() string

	Complete(ctx context.Context, req *chat.ChatRequest) (resp *chat.ChatResponse, stream <-chan StreamChunk, err error)

	// Health returns a point-in-time copy of the provider's mutable
	// health record, safe to read concurrently with in-flight Complete
	// calls.
	Health() Snapshot

	Close() error
}
