package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/weaveai/weaveai/pkg/config"
)

// ErrMissingAPIKey is returned on first use when ARK_API_KEY was never set.
// Startup proceeds without the key so health checks can run.
var ErrMissingAPIKey = errors.New("ARK_API_KEY is not configured")

const (
	baseRetryWait = 250 * time.Millisecond
	maxRetryWait  = 4 * time.Second
)

// ArkClient streams completions from the Ark Responses API over HTTP SSE.
type ArkClient struct {
	cfg    *config.ProviderConfig
	http   *http.Client
	logger *slog.Logger
}

var _ Client = (*ArkClient)(nil)

// NewArkClient builds a client from provider settings. cfg.Timeout bounds
// the time to response headers; body streaming is bounded by the caller's
// context.
func NewArkClient(cfg *config.ProviderConfig) *ArkClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &ArkClient{
		cfg:    cfg,
		http:   &http.Client{Transport: transport},
		logger: slog.Default().With("component", "llm"),
	}
}

// Close releases idle connections.
func (c *ArkClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// GenerateStream opens a streaming completion against the Responses API.
func (c *ArkClient) GenerateStream(ctx context.Context, in *GenerateInput) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if c.cfg.APIKey == "" {
			errs <- ErrMissingAPIKey
			return
		}

		req := c.buildRequest(in)
		payload, err := json.Marshal(req)
		if err != nil {
			errs <- fmt.Errorf("marshal ark request: %w", err)
			return
		}

		resp, err := c.send(ctx, payload)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		c.logger.Debug("Ark stream opened",
			"session_id", in.SessionID,
			"agent", in.AgentName,
			"model", req.Model,
			"websearch", in.EnableWebSearch,
			"thinking", string(in.Thinking))

		if err := streamChunks(ctx, resp.Body, chunks); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

// send posts the payload, retrying transport failures and retryable HTTP
// statuses up to cfg.MaxRetries times. Retries happen only before any chunk
// has been delivered; mid-stream failures surface to the caller.
func (c *ArkClient) send(ctx context.Context, payload []byte) (*http.Response, error) {
	url := c.cfg.BaseURL + "/responses"

	var lastErr error
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create ark request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		var retryAfter string
		resp, err := c.http.Do(req)
		switch {
		case err != nil:
			lastErr = fmt.Errorf("ark request: %w", err)
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("ark responses api: status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(body)))
			if !retryableStatus(resp.StatusCode) {
				return nil, lastErr
			}
			retryAfter = resp.Header.Get("Retry-After")
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= c.cfg.MaxRetries {
			return nil, lastErr
		}

		wait := retryWait(attempt, retryAfter)
		c.logger.Warn("Ark request failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"wait", wait.String(),
			"error", lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *ArkClient) buildRequest(in *GenerateInput) *arkRequest {
	model := in.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	input := make([]arkMessage, 0, len(in.Messages))
	for _, m := range in.Messages {
		input = append(input, arkMessage{
			Role:    m.Role,
			Content: []arkContent{{Type: "input_text", Text: m.Content}},
		})
	}

	req := &arkRequest{
		Model:  model,
		Input:  input,
		Stream: true,
	}
	if in.EnableWebSearch {
		req.Tools = []arkTool{{Type: "web_search", Limit: in.WebSearchLimit}}
	}
	if in.Thinking != "" && in.Thinking != config.ThinkingModeDisabled {
		req.Thinking = &arkThinking{Type: string(in.Thinking)}
	}
	return req
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryWait honors a positive Retry-After header, otherwise backs off
// exponentially from baseRetryWait up to maxRetryWait.
func retryWait(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := baseRetryWait << attempt
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}

// streamChunks reads SSE frames from body and forwards typed chunks until
// the [DONE] sentinel, EOF, or ctx cancellation.
func streamChunks(ctx context.Context, body io.Reader, chunks chan<- Chunk) error {
	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	send := func(c Chunk) error {
		select {
		case chunks <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		// SSE lines that carry data start with "data: ".
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			return nil
		}

		var frame arkStreamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Skip malformed frames.
			continue
		}

		switch frame.Type {
		case "response.reasoning_summary_text.delta":
			if delta := frame.deltaText(); delta != "" {
				if err := send(Chunk{Kind: ChunkThinking, Content: delta}); err != nil {
					return err
				}
			}
		case "response.output_text.delta":
			if delta := frame.deltaText(); delta != "" {
				if err := send(Chunk{Kind: ChunkContent, Content: delta}); err != nil {
					return err
				}
			}
		case "response.web_search_call.searching":
			if err := send(Chunk{Kind: ChunkSearchStart}); err != nil {
				return err
			}
		case "response.web_search_call.in_progress":
			if err := send(Chunk{Kind: ChunkSearchProgress}); err != nil {
				return err
			}
		case "response.web_search_call.completed":
			sources := make([]string, 0, len(frame.Results))
			for _, r := range frame.Results {
				if r.URL != "" {
					sources = append(sources, r.URL)
				}
			}
			if err := send(Chunk{Kind: ChunkSearchComplete, Sources: sources}); err != nil {
				return err
			}
		default:
			// Older gateways stream bare string deltas without a type.
			if delta := frame.deltaText(); delta != "" {
				if err := send(Chunk{Kind: ChunkContent, Content: delta}); err != nil {
					return err
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ark stream: %w", err)
	}
	return nil
}

// Wire types for the Responses API.

type arkRequest struct {
	Model    string       `json:"model"`
	Input    []arkMessage `json:"input"`
	Stream   bool         `json:"stream"`
	Tools    []arkTool    `json:"tools,omitempty"`
	Thinking *arkThinking `json:"thinking,omitempty"`
}

type arkMessage struct {
	Role    string       `json:"role"`
	Content []arkContent `json:"content"`
}

type arkContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type arkTool struct {
	Type  string `json:"type"`
	Limit int    `json:"limit,omitempty"`
}

type arkThinking struct {
	Type string `json:"type"`
}

type arkStreamFrame struct {
	Type    string            `json:"type"`
	Delta   json.RawMessage   `json:"delta"`
	Results []arkSearchResult `json:"results"`
}

type arkSearchResult struct {
	URL string `json:"url"`
}

// deltaText decodes the delta field when it is a plain string. Structured
// deltas from other frame types decode to "".
func (f *arkStreamFrame) deltaText() string {
	if len(f.Delta) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Delta, &s); err != nil {
		return ""
	}
	return s
}
