package models

import "time"

// DebateType distinguishes the register of a debate round.
type DebateType string

const (
	// DebateTypePeerReview is constructive critique (round 1).
	DebateTypePeerReview DebateType = "peer_review"
	// DebateTypeRedTeam is adversarial stress testing (round 2).
	DebateTypeRedTeam DebateType = "red_team"
)

// IsValid checks if the debate type is a known value.
func (t DebateType) IsValid() bool {
	return t == DebateTypePeerReview || t == DebateTypeRedTeam
}

// DebateTypeForRound maps a 1-based round number to its debate type:
// round 1 is peer review, every later round is red team.
func DebateTypeForRound(round int) DebateType {
	if round <= 1 {
		return DebateTypePeerReview
	}
	return DebateTypeRedTeam
}

// DebateExchange is one completed challenge/response(/followup) between the
// challenger and a responder. Rows are ordered by (round_number, created_at).
type DebateExchange struct {
	ID               int64      `json:"id"`
	SessionID        string     `json:"session_id"`
	RoundNumber      int        `json:"round_number"`
	DebateType       DebateType `json:"debate_type"`
	ChallengerAgent  string     `json:"challenger_agent"`
	ResponderAgent   string     `json:"responder_agent"`
	ChallengeContent string     `json:"challenge_content"`
	ResponseContent  string     `json:"response_content"`
	FollowupContent  string     `json:"followup_content,omitempty"`
	Revised          bool       `json:"revised"`
	CreatedAt        time.Time  `json:"created_at"`
}
