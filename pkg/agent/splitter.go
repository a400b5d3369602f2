package agent

import "strings"

// Sentinel markers some provider models interleave with inline reasoning:
// everything before ThinkingEndsSentinel is reasoning, everything after
// ReportStartsSentinel is the deliverable report.
const (
	ThinkingEndsSentinel = "<<<<THINKING_ENDS>>>>"
	ReportStartsSentinel = "<<<<REPORT_STARTS>>>>"
)

// Models occasionally drop one bracket pair, so matching is anchored on the
// three-bracket core and widened to absorb a fourth bracket on either side.
const (
	thinkingEndsCore = "<<<THINKING_ENDS>>>"
	reportStartsCore = "<<<REPORT_STARTS>>>"
)

type splitPhase int

const (
	phaseThinking splitPhase = iota
	phaseBetween
	phaseReport
)

// Deltas classifies the text released by one Feed call: Thinking streams as
// a thinking delta, Report as a report delta.
type Deltas struct {
	Thinking string
	Report   string
}

// Splitter partitions a streamed model response around the two sentinels.
// Text before THINKING_ENDS accumulates as thinking, text after
// REPORT_STARTS accumulates as report. Text between the sentinels is
// released as a thinking delta but kept out of both accumulators. A
// response that never produces a sentinel is all thinking.
//
// Sentinels can arrive split across chunk boundaries; the splitter holds
// back the longest pending tail that could still complete one.
type Splitter struct {
	phase    splitPhase
	pending  string
	thinking strings.Builder
	report   strings.Builder
}

// NewSplitter returns a splitter positioned in the thinking phase.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Feed consumes one streamed chunk and returns the text safe to surface.
func (s *Splitter) Feed(chunk string) Deltas {
	s.pending += chunk
	return s.advance(false)
}

// Flush releases any held-back tail after the stream has ended.
func (s *Splitter) Flush() Deltas {
	return s.advance(true)
}

// Thinking returns the accumulated reasoning text (before THINKING_ENDS).
func (s *Splitter) Thinking() string {
	return s.thinking.String()
}

// Report returns the accumulated report body (after REPORT_STARTS).
func (s *Splitter) Report() string {
	return s.report.String()
}

func (s *Splitter) advance(atEOF bool) Deltas {
	var d Deltas
	for {
		switch s.phase {
		case phaseThinking:
			emit, matched, rest := cutSentinel(s.pending, thinkingEndsCore, atEOF)
			d.Thinking += emit
			s.thinking.WriteString(emit)
			s.pending = rest
			if !matched {
				return d
			}
			s.phase = phaseBetween
		case phaseBetween:
			emit, matched, rest := cutSentinel(s.pending, reportStartsCore, atEOF)
			d.Thinking += emit
			s.pending = rest
			if !matched {
				return d
			}
			s.phase = phaseReport
		case phaseReport:
			d.Report += s.pending
			s.report.WriteString(s.pending)
			s.pending = ""
			return d
		}
	}
}

// cutSentinel splits text around the first occurrence of the sentinel core,
// widened by one extra bracket on each side when present. When no complete
// sentinel is found it holds back the longest suffix that could still start
// one, unless atEOF releases everything.
func cutSentinel(text, core string, atEOF bool) (emit string, matched bool, rest string) {
	if i := strings.Index(text, core); i >= 0 {
		start, end := i, i+len(core)
		if start > 0 && text[start-1] == '<' {
			start--
		}
		switch {
		case end < len(text):
			if text[end] == '>' {
				end++
			}
		case !atEOF:
			// The fourth closing bracket may still be in flight; hold the
			// whole match until the next chunk decides.
			return text[:start], false, text[start:]
		}
		return text[:start], true, text[end:]
	}
	if atEOF {
		return text, false, ""
	}
	hold := holdbackLen(text, core)
	return text[:len(text)-hold], false, text[len(text)-hold:]
}

// holdbackLen returns the length of the longest text suffix that is a
// prefix of the sentinel in either its three- or four-bracket form.
func holdbackLen(text, core string) int {
	wide := "<" + core + ">"
	max := len(wide) - 1
	if max > len(text) {
		max = len(text)
	}
	for k := max; k > 0; k-- {
		tail := text[len(text)-k:]
		if strings.HasPrefix(wide, tail) || strings.HasPrefix(core, tail) {
			return k
		}
	}
	return 0
}
