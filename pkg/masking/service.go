// Package masking redacts sensitive data from tool inputs and outputs before
// they are persisted or emitted. Values stored under sensitive JSON keys are
// replaced wholesale; remaining string leaves are swept with regex patterns.
package masking

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/weaveai/weaveai/pkg/config"
)

// RedactedValue replaces values held under sensitive keys.
const RedactedValue = "__REDACTED__"

// failClosedNotice replaces an entire payload that could not be processed.
const failClosedNotice = "[REDACTED: masking failure, tool payload could not be safely processed]"

// Service applies redaction to tool IO. Created once at application startup.
// Thread-safe and stateless aside from compiled patterns.
type Service struct {
	enabled       bool
	patterns      []*CompiledPattern
	sensitiveKeys map[string]struct{}
}

// NewService compiles the builtin patterns plus any configured extras.
// Invalid patterns are logged and skipped.
func NewService(cfg *config.MaskingConfig) *Service {
	s := &Service{
		enabled:       cfg.Enabled,
		patterns:      compilePatterns(cfg.ExtraPatterns),
		sensitiveKeys: make(map[string]struct{}, len(cfg.SensitiveFields)),
	}
	for _, f := range cfg.SensitiveFields {
		s.sensitiveKeys[strings.ToLower(f)] = struct{}{}
	}

	slog.Info("Masking service initialized",
		"enabled", cfg.Enabled,
		"patterns", len(s.patterns),
		"sensitive_fields", len(s.sensitiveKeys))

	return s
}

// MaskText applies the regex sweep to free text.
func (s *Service) MaskText(text string) string {
	if !s.enabled || text == "" {
		return text
	}
	masked := text
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// MaskPayload redacts a tool payload. The input map is never mutated.
//
// Phase 1 is structural: the payload is normalized through a JSON round-trip
// and values under sensitive keys (matched case-insensitively at any depth)
// are replaced wholesale. Phase 2 sweeps the remaining string leaves with the
// regex patterns. A payload that cannot be normalized is replaced entirely
// (fail-closed).
func (s *Service) MaskPayload(payload map[string]any) map[string]any {
	if !s.enabled || payload == nil {
		return payload
	}

	normalized, err := normalize(payload)
	if err != nil {
		slog.Error("Masking failed, redacting payload (fail-closed)", "error", err)
		return map[string]any{"redacted": failClosedNotice}
	}

	return s.maskValue("", normalized).(map[string]any)
}

// normalize round-trips the payload through JSON so the masking walk only
// ever sees plain maps, slices, and scalars.
func normalize(payload map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) maskValue(key string, v any) any {
	if key != "" {
		if _, ok := s.sensitiveKeys[strings.ToLower(key)]; ok {
			return RedactedValue
		}
	}
	switch t := v.(type) {
	case string:
		return s.MaskText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = s.maskValue(k, vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = s.maskValue("", vv)
		}
		return out
	default:
		return v
	}
}
