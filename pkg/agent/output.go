package agent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/weaveai/weaveai/pkg/config"
)

// toolMarkupPattern matches provider function-call markup that some models
// leak into output text.
var toolMarkupPattern = regexp.MustCompile(`<\|FunctionCallBegin\|>(?s:.*?)<\|FunctionCallEnd\|>`)

// StripToolMarkup removes inline tool-call markers from model output.
func StripToolMarkup(text string) string {
	return toolMarkupPattern.ReplaceAllString(text, "")
}

// confidencePattern matches the first explicit confidence marker. Both the
// English and the Chinese label are accepted.
var confidencePattern = regexp.MustCompile(`(?i)(?:confidence|置信度)\s*[:：]\s*([0-9]+(?:\.[0-9]+)?)`)

// ExtractConfidence reads the first confidence marker out of report text,
// clamped to [0, 1]. ok is false when no marker is present.
func ExtractConfidence(text string) (value float64, ok bool) {
	m := confidencePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, true
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>()\[\]{}"']+`)

// ExtractSources pulls URL tokens from report text, deduplicated in
// first-appearance order. Trailing sentence punctuation is trimmed so that
// URLs ending a sentence stay usable.
func ExtractSources(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range urlPattern.FindAllString(text, -1) {
		u := strings.TrimRight(raw, ".,;:!?")
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// MergeSources unions source lists in order, dropping duplicates and empty
// entries. Earlier lists win on ordering.
func MergeSources(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// defaultHeadings supplies the markdown title prepended when a report does
// not open with one. The synthesizer gets a top-level heading.
var defaultHeadings = map[string]string{
	config.AgentTrendScout:        "## Trend Insight Report",
	config.AgentCompetitorAnalyst: "## Competitive Landscape Report",
	config.AgentRegulationChecker: "## Compliance Review Report",
	config.AgentSocialSentinel:    "## Social Listening Report",
	config.AgentSynthesizer:       "# Market Insight Report",
}

const emptyReportNotice = "Not enough material was gathered to produce this analysis. Please retry later."

// FinalizeReport normalizes a finished report body: tool markup is
// stripped, an empty result is replaced with a placeholder notice, and a
// missing leading markdown heading gets the agent's default title.
func FinalizeReport(agentName, text string) string {
	heading, ok := defaultHeadings[agentName]
	if !ok {
		heading = "## " + agentName
	}
	text = strings.TrimSpace(StripToolMarkup(text))
	if text == "" {
		return heading + "\n\n" + emptyReportNotice
	}
	if !strings.HasPrefix(text, "#") {
		return heading + "\n\n" + text
	}
	return text
}

// revisedFooterPattern matches the structured footer a debate responder is
// asked to end with.
var revisedFooterPattern = regexp.MustCompile(`(?im)^[ \t]*REVISED:[ \t]*(yes|no)[ \t]*$`)

// ParseRevisedFooter reads the REVISED footer from a debate response and
// strips the footer line from the text. found is false when the responder
// omitted it; the last footer wins when the model repeats it.
func ParseRevisedFooter(text string) (revised bool, found bool, stripped string) {
	matches := revisedFooterPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return false, false, text
	}
	last := matches[len(matches)-1]
	answer := strings.ToLower(text[last[2]:last[3]])
	stripped = strings.TrimSpace(text[:last[0]] + text[last[1]:])
	return answer == "yes", true, stripped
}

// revisionStatementPattern matches an explicit revision acknowledgement in
// English prose.
var revisionStatementPattern = regexp.MustCompile(`(?i)\b(?:i(?:'ve| have) (?:revised|updated|corrected|amended)|revised (?:my|the|our))\b`)

// StatesRevision reports whether a response explicitly announces a content
// revision. It is the conservative fallback when the REVISED footer is
// missing; Chinese revision verbs are accepted alongside English ones.
func StatesRevision(text string) bool {
	if revisionStatementPattern.MatchString(text) {
		return true
	}
	return strings.Contains(text, "修订") || strings.Contains(text, "修改")
}

// clipRunes returns the first limit runes of s. Prompt builders clip quoted
// context to keep token usage bounded.
func clipRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
