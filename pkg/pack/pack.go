// Package pack condenses a finished session into two portable artifacts:
// the evidence pack, which ties report claims back to the agents and
// sources behind them, and the memory snapshot, which later sessions warm
// up from. Both builders are pure functions over in-memory session rows;
// the caller decides whether a missing artifact is worth more than a log
// line.
package pack

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weaveai/weaveai/pkg/models"
)

// Inputs collects the session rows both builders read. Results and
// debates arrive in workflow order; that order fixes source ids and
// claim attribution, so callers must not resort them.
type Inputs struct {
	SessionID   string
	Profile     models.UserProfile
	Results     []*models.AgentResult
	Debates     []*models.DebateExchange
	Invocations []*models.ToolInvocation
	FinalReport string
	GeneratedAt time.Time
}

const defaultConfidence = 0.6

// timestamp renders the build time, defaulting a zero value to now so
// tests can pin it and production callers can leave it out.
func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

// clipRunes trims text to at most limit runes, ending an over-long value
// with a single ellipsis rune so the clipped form still fits the limit.
func clipRunes(text string, limit int) string {
	trimmed := strings.TrimSpace(text)
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	return string(runes[:limit-1]) + "…"
}

// normalizeConfidence rounds a reported confidence to three decimals and
// clamps it to [0,1]. Agents that never reported one get the neutral
// default.
func normalizeConfidence(c *float64) float64 {
	if c == nil {
		return defaultConfidence
	}
	v := math.Round(*c*1000) / 1000
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round3 keeps derived scores at the same precision as normalized
// confidences.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
