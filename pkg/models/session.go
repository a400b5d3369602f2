// Package models defines the domain types shared across the workflow engine,
// persistence gateway, event bus, and HTTP API.
package models

import (
	"strconv"
	"time"
)

// SessionStatus is the lifecycle state of a workflow session.
// Transitions are monotonic: a terminal status is never overwritten.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsValid checks if the session status is a known value.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusPending,
		SessionStatusRunning,
		SessionStatusCompleted,
		SessionStatusFailed,
		SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// SessionPhase is the coarse workflow position of a session.
// Phases only advance; Rank defines the ordering.
type SessionPhase string

const (
	PhaseInit          SessionPhase = "init"
	PhaseGather        SessionPhase = "gather"
	PhaseDebatePeer    SessionPhase = "debate_peer"
	PhaseDebateRedTeam SessionPhase = "debate_redteam"
	PhaseSynthesize    SessionPhase = "synthesize"
	PhaseComplete      SessionPhase = "complete"
	PhaseError         SessionPhase = "error"
)

// IsValid checks if the phase is a known value.
func (p SessionPhase) IsValid() bool {
	return p.Rank() >= 0
}

// Rank returns the position of the phase in the forward ordering,
// or -1 for unknown phases. PhaseError ranks alongside PhaseComplete:
// both are terminal.
func (p SessionPhase) Rank() int {
	switch p {
	case PhaseInit:
		return 0
	case PhaseGather:
		return 1
	case PhaseDebatePeer:
		return 2
	case PhaseDebateRedTeam:
		return 3
	case PhaseSynthesize:
		return 4
	case PhaseComplete, PhaseError:
		return 5
	default:
		return -1
	}
}

// DegradeMode selects how retry exhaustion is routed.
type DegradeMode string

const (
	// DegradeModeSkip records the unit as skipped with empty content.
	DegradeModeSkip DegradeMode = "skip"
	// DegradeModePartial keeps whatever partial content streamed and marks
	// the unit degraded. The default.
	DegradeModePartial DegradeMode = "partial"
	// DegradeModeFail fails the whole session on first exhaustion.
	DegradeModeFail DegradeMode = "fail"
)

// IsValid checks if the degrade mode is a known value.
func (m DegradeMode) IsValid() bool {
	return m == DegradeModeSkip || m == DegradeModePartial || m == DegradeModeFail
}

// UserProfile describes the seller the workflow analyzes.
type UserProfile struct {
	TargetMarket string  `json:"target_market"`
	SupplyChain  string  `json:"supply_chain"`
	SellerType   string  `json:"seller_type"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
}

// PriceRange renders the profile price band as "$min-$max" for prompts
// and summaries.
func (p UserProfile) PriceRange() string {
	return "$" + strconv.FormatFloat(p.MinPrice, 'f', -1, 64) +
		"-$" + strconv.FormatFloat(p.MaxPrice, 'f', -1, 64)
}

// SessionConfig captures the per-run options persisted on the session row.
type SessionConfig struct {
	DebateRounds     int         `json:"debate_rounds"`
	EnableFollowup   bool        `json:"enable_followup"`
	EnableWebSearch  bool        `json:"enable_websearch"`
	RetryMaxAttempts int         `json:"retry_max_attempts"`
	RetryBackoffMS   int         `json:"retry_backoff_ms"`
	DegradeMode      DegradeMode `json:"degrade_mode"`
}

// Session is one workflow run.
type Session struct {
	ID                 string         `json:"id"`
	Status             SessionStatus  `json:"status"`
	Phase              SessionPhase   `json:"phase"`
	CurrentDebateRound int            `json:"current_debate_round"`
	Profile            UserProfile    `json:"profile"`
	Config             SessionConfig  `json:"config"`
	FinalReport        string         `json:"final_report,omitempty"`
	ReportHTMLURL      string         `json:"report_html_url,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	EvidencePack       map[string]any `json:"evidence_pack,omitempty"`
	MemorySnapshot     map[string]any `json:"memory_snapshot,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// SessionFilters contains filtering options for listing sessions.
type SessionFilters struct {
	Status SessionStatus
	Limit  int
	Offset int
}
