// Package agent runs single agent stages: prompt assembly, one streamed LLM
// call, sentinel splitting into thinking and report, and post-processing
// into the fields an AgentResult carries. Retry and lifecycle events belong
// to the callers; a stage runs exactly one attempt.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/llm"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/tools"
)

// Stage kinds, persisted as the context of mediated tool calls.
const (
	StageGather     = "gather"
	StageChallenge  = "challenge"
	StageRespond    = "respond"
	StageFollowup   = "followup"
	StageSynthesize = "synthesize"
)

const webSearchTool = "web_search"

// Publisher fans out workflow events. Implemented by events.Publisher.
type Publisher interface {
	Emit(ctx context.Context, event models.Event)
}

// ToolMediator is the slice of the tool registry a stage needs: mediated
// invocation and the per-session web search switch.
type ToolMediator interface {
	Invoke(ctx context.Context, call *tools.Call) (*tools.Result, error)
	WebSearchEnabled(sessionID string) bool
}

// Stage describes one agent invocation.
type Stage struct {
	SessionID string
	Agent     *config.AgentSpec

	// Kind names the workflow step (gather, challenge, respond, followup,
	// synthesize) for tool accounting.
	Kind string

	System string
	User   string

	// Query is the short task description recorded as the input of a
	// mediated web search call.
	Query string

	DebateRound int

	// EmitChunks streams deltas as chunk events. Debate exchanges run
	// silently and surface only their end events.
	EmitChunks bool

	// RawStream takes the whole output stream as content without sentinel
	// splitting. Debate exchanges use it; their prompts ask for direct
	// prose, not the thinking protocol.
	RawStream bool

	// WebSearch is the session-level switch. The effective decision also
	// requires the agent to have search enabled and the session guardrail
	// to not have tripped.
	WebSearch bool

	// PostProcess applies report normalization (markup stripping, default
	// heading, empty placeholder). Debate exchanges keep raw text.
	PostProcess bool
}

// Output is what one stage attempt produced. On error the partial fields
// are still populated so a degraded result can keep what streamed.
type Output struct {
	AgentName  string
	Content    string
	Thinking   string
	Sources    []string
	Confidence *float64
	DurationMS int64
	CacheHit   bool
}

// Runner executes stages against the LLM client, mediating search-enabled
// generation through the tool registry.
type Runner struct {
	llm    llm.Client
	tools  ToolMediator
	events Publisher
	logger *slog.Logger
}

// NewRunner creates a stage runner. Panics on nil dependencies; wiring them
// is the composition root's job.
func NewRunner(client llm.Client, mediator ToolMediator, publisher Publisher) *Runner {
	if client == nil || mediator == nil || publisher == nil {
		panic("agent.NewRunner: nil dependency")
	}
	return &Runner{
		llm:    client,
		tools:  mediator,
		events: publisher,
		logger: slog.Default().With("component", "agent"),
	}
}

// Run executes one stage attempt. The returned Output always carries the
// agent name and duration; when err is non-nil it additionally holds
// whatever partial content streamed before the failure.
func (r *Runner) Run(ctx context.Context, stage *Stage) (*Output, error) {
	start := time.Now()

	useSearch := stage.WebSearch &&
		stage.Agent.WebSearchEnabled &&
		r.tools.WebSearchEnabled(stage.SessionID)

	var (
		gen      *generation
		cacheHit bool
		err      error
	)
	if useSearch {
		gen, cacheHit, err = r.runMediated(ctx, stage)
	} else {
		gen, err = r.stream(ctx, stage, false)
	}

	out := &Output{
		AgentName:  stage.Agent.Name,
		DurationMS: time.Since(start).Milliseconds(),
		CacheHit:   cacheHit,
	}
	if gen != nil {
		r.finalize(out, stage, gen)
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// finalize fills the content-derived Output fields from a finished (or
// partially streamed) generation.
func (r *Runner) finalize(out *Output, stage *Stage, gen *generation) {
	content := gen.report
	if stage.PostProcess {
		content = FinalizeReport(stage.Agent.Name, content)
	} else {
		content = strings.TrimSpace(StripToolMarkup(content))
	}
	out.Content = content
	out.Thinking = gen.thinking
	out.Sources = MergeSources(gen.sources, ExtractSources(content))
	if c, ok := ExtractConfidence(content); ok {
		out.Confidence = &c
	}
}

// runMediated routes a search-enabled generation through the tool registry.
// A guardrail short-circuit falls back to a plain generation without the
// search tool instead of failing the stage.
func (r *Runner) runMediated(ctx context.Context, stage *Stage) (*generation, bool, error) {
	var gen *generation
	res, err := r.tools.Invoke(ctx, &tools.Call{
		SessionID:       stage.SessionID,
		AgentName:       stage.Agent.Name,
		ToolName:        webSearchTool,
		Context:         stage.Kind,
		Model:           stage.Agent.Model,
		TemplateVersion: PromptTemplateVersion,
		PromptHash:      tools.HashPrompt(stage.System, stage.User),
		DebateRound:     stage.DebateRound,
		EnableWebSearch: true,
		Input:           map[string]any{"query": stage.Query},
		Exec: func(ctx context.Context) (map[string]any, []string, error) {
			g, streamErr := r.stream(ctx, stage, true)
			gen = g
			if streamErr != nil {
				return nil, nil, streamErr
			}
			return map[string]any{
				"content":  g.report,
				"thinking": g.thinking,
			}, g.sources, nil
		},
	})
	if err != nil {
		return gen, false, err
	}
	if res.ShortCircuit {
		r.logger.Info("Web search short-circuited by guardrail, generating without the tool",
			"session_id", stage.SessionID, "agent", stage.Agent.Name)
		g, streamErr := r.stream(ctx, stage, false)
		return g, false, streamErr
	}
	if res.CacheHit {
		return generationFromPayload(res.Output, res.Sources), true, nil
	}
	return gen, false, nil
}

// generation accumulates one streamed model response.
type generation struct {
	thinking string
	report   string
	sources  []string
}

// stream drives one LLM call, splitting content chunks around the sentinels
// and forwarding deltas as chunk events. Partial accumulations are returned
// even when the stream errors.
func (r *Runner) stream(ctx context.Context, stage *Stage, withSearch bool) (*generation, error) {
	chunks, errs := r.llm.GenerateStream(ctx, &llm.GenerateInput{
		Model: stage.Agent.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: stage.System},
			{Role: llm.RoleUser, Content: stage.User},
		},
		Thinking:        stage.Agent.Thinking,
		EnableWebSearch: withSearch,
		WebSearchLimit:  stage.Agent.WebSearchLimit,
		SessionID:       stage.SessionID,
		AgentName:       stage.Agent.Name,
	})

	splitter := NewSplitter()
	var nativeThinking, rawContent strings.Builder
	var sources []string

	for chunk := range chunks {
		switch chunk.Kind {
		case llm.ChunkThinking:
			// Provider-native reasoning streams as thinking regardless of
			// sentinel state.
			nativeThinking.WriteString(chunk.Content)
			r.emitChunk(ctx, stage, models.EventAgentThinkingChunk, chunk.Content)
		case llm.ChunkContent:
			if stage.RawStream {
				rawContent.WriteString(chunk.Content)
				r.emitChunk(ctx, stage, models.EventAgentChunk, chunk.Content)
				continue
			}
			r.emitDeltas(ctx, stage, splitter.Feed(chunk.Content))
		case llm.ChunkSearchComplete:
			// Search lifecycle surfaces through registry mediation; only
			// the source URLs are taken from the stream.
			sources = append(sources, chunk.Sources...)
		}
	}
	r.emitDeltas(ctx, stage, splitter.Flush())

	gen := &generation{
		thinking: joinThinking(nativeThinking.String(), splitter.Thinking()),
		report:   rawContent.String() + splitter.Report(),
		sources:  sources,
	}
	if err := <-errs; err != nil {
		return gen, fmt.Errorf("agent %s stream: %w", stage.Agent.Name, err)
	}
	return gen, nil
}

func (r *Runner) emitDeltas(ctx context.Context, stage *Stage, d Deltas) {
	r.emitChunk(ctx, stage, models.EventAgentThinkingChunk, d.Thinking)
	r.emitChunk(ctx, stage, models.EventAgentChunk, d.Report)
}

func (r *Runner) emitChunk(ctx context.Context, stage *Stage, typ models.EventType, content string) {
	if !stage.EmitChunks || content == "" {
		return
	}
	r.events.Emit(ctx, models.Event{
		Type:      typ,
		SessionID: stage.SessionID,
		Agent:     stage.Agent.Name,
		Content:   content,
	})
}

// generationFromPayload rebuilds a generation from a cached tool payload.
func generationFromPayload(payload map[string]any, sources []string) *generation {
	g := &generation{sources: sources}
	if s, ok := payload["content"].(string); ok {
		g.report = s
	}
	if s, ok := payload["thinking"].(string); ok {
		g.thinking = s
	}
	return g
}

// joinThinking merges provider-native reasoning with sentinel-delimited
// thinking text.
func joinThinking(native, inline string) string {
	switch {
	case native == "":
		return inline
	case inline == "":
		return native
	default:
		return native + "\n\n" + inline
	}
}
