package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
)

func testProviderConfig(baseURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		DefaultModel:   "doubao-seed-1-6-250615",
		Timeout:        5 * time.Second,
		ConnectTimeout: time.Second,
		MaxRetries:     2,
	}
}

// writeSSE emits data frames followed by the [DONE] sentinel.
func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, f := range frames {
		fmt.Fprintf(w, "data: %s\n\n", f)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// drainStream collects every chunk, then returns the stream error (nil when
// the error channel closed empty).
func drainStream(t *testing.T, chunks <-chan Chunk, errs <-chan error) ([]Chunk, error) {
	t.Helper()
	var got []Chunk
	for c := range chunks {
		got = append(got, c)
	}
	return got, <-errs
}

func TestArkClientRequestBody(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeSSE(w, `{"type":"response.output_text.delta","delta":"ok"}`)
	}))
	defer server.Close()

	client := NewArkClient(testProviderConfig(server.URL))
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Model: "kimi-k2-thinking-251104",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "analyze the market"},
		},
		Thinking:        config.ThinkingModeEnabled,
		EnableWebSearch: true,
		WebSearchLimit:  15,
	})
	got, err := drainStream(t, chunks, errs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Chunk{Kind: ChunkContent, Content: "ok"}, got[0])

	assert.Equal(t, "/responses", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "text/event-stream", gotAccept)

	assert.Equal(t, "kimi-k2-thinking-251104", gotBody["model"])
	assert.Equal(t, true, gotBody["stream"])

	input := gotBody["input"].([]any)
	require.Len(t, input, 2)
	first := input[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	parts := first["content"].([]any)
	require.Len(t, parts, 1)
	part := parts[0].(map[string]any)
	assert.Equal(t, "input_text", part["type"])
	assert.Equal(t, "be brief", part["text"])

	tools := gotBody["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "web_search", tool["type"])
	assert.Equal(t, float64(15), tool["limit"])

	thinking := gotBody["thinking"].(map[string]any)
	assert.Equal(t, "enabled", thinking["type"])
}

func TestArkClientOmitsDisabledOptions(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeSSE(w)
	}))
	defer server.Close()

	client := NewArkClient(testProviderConfig(server.URL))
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
		Thinking: config.ThinkingModeDisabled,
	})
	_, err := drainStream(t, chunks, errs)
	require.NoError(t, err)

	// Empty model falls back to the provider default.
	assert.Equal(t, "doubao-seed-1-6-250615", gotBody["model"])

	_, hasThinking := gotBody["thinking"]
	assert.False(t, hasThinking, "disabled thinking must be omitted")
	_, hasTools := gotBody["tools"]
	assert.False(t, hasTools, "tools must be omitted without websearch")
}

func TestArkClientStreamTaxonomy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"type":"response.reasoning_summary_text.delta","delta":"thinking "}`,
			`{"type":"response.reasoning_summary_text.delta","delta":"hard"}`,
			`{"type":"response.web_search_call.searching"}`,
			`{"type":"response.web_search_call.in_progress"}`,
			`{"type":"response.web_search_call.completed","results":[{"url":"https://example.com/a"},{"url":"https://example.com/b"}]}`,
			`{"type":"response.output_text.delta","delta":"final "}`,
			`{"type":"response.output_text.delta","delta":"report"}`,
		)
	}))
	defer server.Close()

	client := NewArkClient(testProviderConfig(server.URL))
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	got, err := drainStream(t, chunks, errs)
	require.NoError(t, err)
	require.Len(t, got, 7)

	assert.Equal(t, Chunk{Kind: ChunkThinking, Content: "thinking "}, got[0])
	assert.Equal(t, Chunk{Kind: ChunkThinking, Content: "hard"}, got[1])
	assert.Equal(t, Chunk{Kind: ChunkSearchStart}, got[2])
	assert.Equal(t, Chunk{Kind: ChunkSearchProgress}, got[3])
	assert.Equal(t, ChunkSearchComplete, got[4].Kind)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, got[4].Sources)
	assert.Equal(t, Chunk{Kind: ChunkContent, Content: "final "}, got[5])
	assert.Equal(t, Chunk{Kind: ChunkContent, Content: "report"}, got[6])
}

func TestArkClientLegacyAndMalformedFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Non-data SSE lines, malformed JSON, structured deltas, and
		// typeless string deltas from older gateways.
		fmt.Fprint(w, "event: response.output_text.delta\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, `data: {"type":"response.completed","delta":{"usage":{"total_tokens":9}}}`+"\n\n")
		fmt.Fprint(w, `data: {"delta":"plain"}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewArkClient(testProviderConfig(server.URL))
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	got, err := drainStream(t, chunks, errs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Chunk{Kind: ChunkContent, Content: "plain"}, got[0])
}

func TestArkClientRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeSSE(w, `{"type":"response.output_text.delta","delta":"ok"}`)
	}))
	defer server.Close()

	client := NewArkClient(testProviderConfig(server.URL))
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	got, err := drainStream(t, chunks, errs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestArkClientStopsAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testProviderConfig(server.URL)
	cfg.MaxRetries = 1
	client := NewArkClient(cfg)
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	got, err := drainStream(t, chunks, errs)
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 503")
	assert.Empty(t, got)
	assert.Equal(t, int32(2), calls.Load(), "initial attempt plus one retry")
}

func TestArkClientNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewArkClient(testProviderConfig(server.URL))
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	got, err := drainStream(t, chunks, errs)
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 401")
	assert.ErrorContains(t, err, "bad key")
	assert.Empty(t, got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestArkClientRequiresAPIKey(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	cfg := testProviderConfig(server.URL)
	cfg.APIKey = ""
	client := NewArkClient(cfg)
	defer client.Close()

	chunks, errs := client.GenerateStream(context.Background(), &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	got, err := drainStream(t, chunks, errs)
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), calls.Load(), "no request without credentials")
}

func TestArkClientContextCancelMidStream(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"response.output_text.delta","delta":"first"}`+"\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewArkClient(testProviderConfig(server.URL))
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunks, errs := client.GenerateStream(ctx, &GenerateInput{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})

	first := <-chunks
	assert.Equal(t, Chunk{Kind: ChunkContent, Content: "first"}, first)

	cancel()
	for range chunks {
	}
	err := <-errs
	require.Error(t, err)
	assert.ErrorContains(t, err, "context canceled")
}

func TestRetryWait(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, retryWait(0, ""))
	assert.Equal(t, 500*time.Millisecond, retryWait(1, ""))
	assert.Equal(t, time.Second, retryWait(2, ""))
	assert.Equal(t, 4*time.Second, retryWait(10, ""), "backoff is capped")
	assert.Equal(t, 2*time.Second, retryWait(0, "2"), "Retry-After wins")
	assert.Equal(t, 250*time.Millisecond, retryWait(0, "junk"))
	assert.Equal(t, 250*time.Millisecond, retryWait(0, "0"))
}
