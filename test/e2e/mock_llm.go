package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/weaveai/weaveai/pkg/llm"
)

// LLMScriptEntry defines a single scripted LLM response.
type LLMScriptEntry struct {
	// Response content (exactly one of Chunks/Text/Err should be set)
	Chunks []llm.Chunk // Pre-built chunks to stream
	Text   string      // Shorthand: streamed as a single content chunk
	Err    error       // Delivered on the error channel after the chunks

	// Test control
	BlockUntilCancelled bool            // Block the stream until ctx is cancelled
	WaitCh              <-chan struct{} // Block the stream until closed, then respond normally
	OnBlock             chan<- struct{} // Notified when the stream enters its blocking path
}

// ScriptedLLMClient implements llm.Client with a dual-dispatch mock:
// agent-aware routing for the parallel gather fan-out where call order is
// non-deterministic, plus a sequential fallback for everything else.
type ScriptedLLMClient struct {
	mu             sync.Mutex
	sequential     []LLMScriptEntry
	seqIndex       int
	routes         map[string][]LLMScriptEntry // agent name → per-agent script
	routeIndex     map[string]int
	capturedInputs []*llm.GenerateInput
}

// NewScriptedLLMClient creates a new ScriptedLLMClient.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{
		routes:     make(map[string][]LLMScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential adds an entry consumed in order by calls with no routed
// script. Used for the challenger, synthesizer, and single-agent stages.
func (c *ScriptedLLMClient) AddSequential(entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, entry)
}

// AddRouted adds an entry for a specific agent name, matched against
// GenerateInput.AgentName. Used for the parallel gather stage where agents
// need differentiated responses.
func (c *ScriptedLLMClient) AddRouted(agentName string, entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[agentName] = append(c.routes[agentName], entry)
}

// GenerateStream implements llm.Client.
func (c *ScriptedLLMClient) GenerateStream(ctx context.Context, in *llm.GenerateInput) (<-chan llm.Chunk, <-chan error) {
	c.mu.Lock()
	c.capturedInputs = append(c.capturedInputs, in)
	entry, err := c.nextEntry(in)
	c.mu.Unlock()

	chunks := make(chan llm.Chunk)
	errs := make(chan error, 1)

	if err != nil {
		errs <- err
		close(chunks)
		close(errs)
		return chunks, errs
	}

	go func() {
		defer close(chunks)
		defer close(errs)

		if entry.BlockUntilCancelled {
			if entry.OnBlock != nil {
				entry.OnBlock <- struct{}{}
			}
			<-ctx.Done()
			errs <- ctx.Err()
			return
		}

		if entry.WaitCh != nil {
			if entry.OnBlock != nil {
				entry.OnBlock <- struct{}{}
			}
			select {
			case <-entry.WaitCh:
				// Released, stream the scripted response.
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		script := entry.Chunks
		if len(script) == 0 && entry.Text != "" {
			script = []llm.Chunk{{Kind: llm.ChunkContent, Content: entry.Text}}
		}
		for _, chunk := range script {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if entry.Err != nil {
			errs <- entry.Err
		}
	}()

	return chunks, errs
}

// Close implements llm.Client.
func (c *ScriptedLLMClient) Close() error { return nil }

// CallCount returns the total number of GenerateStream calls made.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.capturedInputs)
}

// CapturedInputs returns a copy of every GenerateInput seen so far.
func (c *ScriptedLLMClient) CapturedInputs() []*llm.GenerateInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.GenerateInput, len(c.capturedInputs))
	copy(out, c.capturedInputs)
	return out
}

// nextEntry selects the next script entry using dual dispatch.
// Must be called with c.mu held.
func (c *ScriptedLLMClient) nextEntry(in *llm.GenerateInput) (*LLMScriptEntry, error) {
	if in.AgentName != "" {
		if entries, ok := c.routes[in.AgentName]; ok {
			idx := c.routeIndex[in.AgentName]
			if idx < len(entries) {
				c.routeIndex[in.AgentName] = idx + 1
				return &entries[idx], nil
			}
		}
	}

	if c.seqIndex < len(c.sequential) {
		entry := &c.sequential[c.seqIndex]
		c.seqIndex++
		return entry, nil
	}

	return nil, fmt.Errorf("ScriptedLLMClient: no more entries (agent=%q, sequential=%d/%d)",
		in.AgentName, c.seqIndex, len(c.sequential))
}
