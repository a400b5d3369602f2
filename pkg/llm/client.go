// Package llm streams completions from the Ark OpenAI-compatible API as
// typed chunks. Callers receive a channel of Chunk values (thinking deltas,
// output deltas, web search lifecycle) plus an error channel; both close when
// the stream finishes.
package llm

import (
	"context"
)

// Client is the streaming model interface. The production implementation is
// ArkClient; tests substitute scripted fakes.
type Client interface {
	// GenerateStream opens a streaming completion. Chunks arrive on the
	// first channel until the stream ends; the first failure (missing
	// credentials, transport, HTTP status, mid-stream read) arrives on the
	// second. Both channels are closed when the call finishes. Sends
	// respect ctx cancellation.
	GenerateStream(ctx context.Context, in *GenerateInput) (<-chan Chunk, <-chan error)

	// Close releases idle connections.
	Close() error
}
