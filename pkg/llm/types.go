package llm

import (
	"github.com/weaveai/weaveai/pkg/config"
)

// ChunkKind discriminates the streamed chunk types produced by a model call.
type ChunkKind string

const (
	// ChunkThinking is a provider-native reasoning delta.
	ChunkThinking ChunkKind = "thinking"
	// ChunkContent is an output text delta.
	ChunkContent ChunkKind = "content"
	// ChunkSearchStart marks the provider beginning a web search.
	ChunkSearchStart ChunkKind = "search_start"
	// ChunkSearchProgress marks an in-flight web search.
	ChunkSearchProgress ChunkKind = "search_progress"
	// ChunkSearchComplete carries the source URLs of a finished web search.
	ChunkSearchComplete ChunkKind = "search_complete"
)

// Chunk is one unit of streamed model output.
type Chunk struct {
	Kind    ChunkKind
	Content string
	// Sources is set on ChunkSearchComplete chunks.
	Sources []string
}

// Message roles accepted by the provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// GenerateInput describes one streaming completion request.
type GenerateInput struct {
	// Model overrides the provider default when non-empty.
	Model    string
	Messages []Message

	// Thinking requests provider-native reasoning. Disabled (or empty)
	// omits the option entirely.
	Thinking config.ThinkingMode

	// EnableWebSearch attaches the provider web_search tool.
	// WebSearchLimit caps the number of results; zero lets the provider
	// pick its default.
	EnableWebSearch bool
	WebSearchLimit  int

	// SessionID and AgentName identify the caller in logs only.
	SessionID string
	AgentName string
}
