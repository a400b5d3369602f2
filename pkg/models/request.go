package models

// MarketInsightRequest is the wire form accepted by the stream and generate
// endpoints. Pointer fields distinguish "absent" from zero, so a request can
// explicitly ask for debate_rounds 0.
type MarketInsightRequest struct {
	SessionID        string       `json:"session_id,omitempty"`
	Preset           string       `json:"preset,omitempty"`
	Profile          *UserProfile `json:"profile,omitempty"`
	DebateRounds     *int         `json:"debate_rounds,omitempty"`
	EnableFollowup   *bool        `json:"enable_followup,omitempty"`
	EnableWebSearch  *bool        `json:"enable_websearch,omitempty"`
	RetryMaxAttempts *int         `json:"retry_max_attempts,omitempty"`
	RetryBackoffMS   *int         `json:"retry_backoff_ms,omitempty"`
	DegradeMode      DegradeMode  `json:"degrade_mode,omitempty"`
}

// DefaultProfile is used when a request omits the profile entirely.
func DefaultProfile() UserProfile {
	return UserProfile{
		TargetMarket: "United States",
		SupplyChain:  "Consumer Electronics",
		SellerType:   "brand",
		MinPrice:     0,
		MaxPrice:     1000,
	}
}

// ResolveProfile returns the request profile with unset prices defaulted,
// or the default profile when none was provided.
func (r *MarketInsightRequest) ResolveProfile() UserProfile {
	if r.Profile == nil {
		return DefaultProfile()
	}
	p := *r.Profile
	if p.MaxPrice == 0 {
		p.MaxPrice = 1000
	}
	return p
}

// ResolveConfig merges the request over the provided defaults and returns
// the effective per-run configuration.
func (r *MarketInsightRequest) ResolveConfig(def SessionConfig) SessionConfig {
	cfg := def
	if r.DebateRounds != nil {
		cfg.DebateRounds = *r.DebateRounds
	}
	if r.EnableFollowup != nil {
		cfg.EnableFollowup = *r.EnableFollowup
	}
	if r.EnableWebSearch != nil {
		cfg.EnableWebSearch = *r.EnableWebSearch
	}
	if r.RetryMaxAttempts != nil {
		cfg.RetryMaxAttempts = *r.RetryMaxAttempts
	}
	if r.RetryBackoffMS != nil {
		cfg.RetryBackoffMS = *r.RetryBackoffMS
	}
	if r.DegradeMode != "" {
		cfg.DegradeMode = r.DegradeMode
	}
	return cfg
}
