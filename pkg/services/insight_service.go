// Package services holds the application layer between the HTTP API and
// the engine: request intake and validation, read-side aggregation,
// cancellation, artifact assembly, and feedback.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/report"
	"github.com/weaveai/weaveai/pkg/store"
)

// Request caps. The env-tunable engine defaults may exceed these; explicit
// request values may not.
const (
	maxRequestDebateRounds = 2
	maxRetryAttempts       = 5
	maxRetryBackoffMS      = 10000

	defaultSessionsLimit = 20
	maxSessionsLimit     = 100
)

// writeTimeout bounds critical writes that must land even when the HTTP
// request context is already gone.
const writeTimeout = 5 * time.Second

// Store is the slice of the persistence gateway the service layer drives.
// Implemented by store.Store.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) (bool, error)
	FailSession(ctx context.Context, id string, errorMessage string) (bool, error)
	ListAgentResults(ctx context.Context, sessionID string) ([]*models.AgentResult, error)
	ListDebateExchanges(ctx context.Context, sessionID string) ([]*models.DebateExchange, error)
	ListWorkflowEvents(ctx context.Context, sessionID string) ([]*models.WorkflowEvent, error)
	ListToolInvocations(ctx context.Context, sessionID string) ([]*models.ToolInvocation, error)
	CreateFeedback(ctx context.Context, feedback *models.Feedback) error
	GetLatestFeedback(ctx context.Context, sessionID string) (*models.Feedback, error)
}

// Canceller stops live session runs. Implemented by queue.Pool.
type Canceller interface {
	CancelSession(sessionID string) bool
}

// InsightService manages the market-insight session lifecycle around the
// engine: intake, status aggregation, cancellation, artifacts, feedback.
type InsightService struct {
	store     Store
	canceller Canceller
	workflow  *config.WorkflowConfig
	presets   *config.PresetRegistry
	renderer  *report.Renderer
	logger    *slog.Logger
}

// NewInsightService creates a new InsightService.
func NewInsightService(st Store, canceller Canceller, workflow *config.WorkflowConfig, presets *config.PresetRegistry, renderer *report.Renderer) *InsightService {
	if st == nil || canceller == nil || workflow == nil || presets == nil || renderer == nil {
		panic("services.NewInsightService: nil dependency")
	}
	return &InsightService{
		store:     st,
		canceller: canceller,
		workflow:  workflow,
		presets:   presets,
		renderer:  renderer,
		logger:    slog.Default().With("component", "services"),
	}
}

// Prepare validates the request, applies the scenario preset, and creates
// the pending session row. The caller subscribes to the event bus before
// submitting the returned session to the worker pool, so the stream misses
// no events.
func (s *InsightService) Prepare(ctx context.Context, req *models.MarketInsightRequest) (*models.Session, error) {
	if req == nil {
		req = &models.MarketInsightRequest{}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Preset != "" {
		preset, err := s.presets.Get(req.Preset)
		if err != nil {
			return nil, NewValidationError("preset", fmt.Sprintf("unknown scenario preset %q", req.Preset))
		}
		preset.Apply(req)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	if _, err := s.store.GetSession(ctx, sessionID); err == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	session := &models.Session{
		ID:      sessionID,
		Status:  models.SessionStatusPending,
		Phase:   models.PhaseInit,
		Profile: req.ResolveProfile(),
		Config:  req.ResolveConfig(s.workflow.SessionDefaults()),
	}

	// Use background context with timeout for the critical write.
	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.store.CreateSession(wctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session prepared",
		"session_id", session.ID,
		"preset", req.Preset,
		"debate_rounds", session.Config.DebateRounds,
		"degrade_mode", session.Config.DegradeMode)
	return session, nil
}

// AbortStart fails a session that was created but never scheduled, such as
// when the worker pool rejects the submission. Best effort: a row that
// already went terminal stays as it is.
func (s *InsightService) AbortStart(sessionID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.store.FailSession(ctx, sessionID, reason); err != nil {
		s.logger.Warn("failed to abort session start", "session_id", sessionID, "error", err)
	}
}

// validateRequest rejects explicit out-of-range request fields. Absent
// fields fall back to workflow defaults, which carry their own limits.
func validateRequest(req *models.MarketInsightRequest) error {
	if req.DebateRounds != nil && (*req.DebateRounds < 0 || *req.DebateRounds > maxRequestDebateRounds) {
		return NewValidationError("debate_rounds", "must be between 0 and 2")
	}
	if req.RetryMaxAttempts != nil && (*req.RetryMaxAttempts < 1 || *req.RetryMaxAttempts > maxRetryAttempts) {
		return NewValidationError("retry_max_attempts", "must be between 1 and 5")
	}
	if req.RetryBackoffMS != nil && (*req.RetryBackoffMS < 0 || *req.RetryBackoffMS > maxRetryBackoffMS) {
		return NewValidationError("retry_backoff_ms", "must be between 0 and 10000")
	}
	if req.DegradeMode != "" && !req.DegradeMode.IsValid() {
		return NewValidationError("degrade_mode", "must be one of skip, partial, fail")
	}
	if req.Profile != nil {
		if req.Profile.MinPrice < 0 {
			return NewValidationError("profile.min_price", "must not be negative")
		}
		if req.Profile.MaxPrice < 0 {
			return NewValidationError("profile.max_price", "must not be negative")
		}
		if req.Profile.MaxPrice > 0 && req.Profile.MaxPrice < req.Profile.MinPrice {
			return NewValidationError("profile.max_price", "must not be below min_price")
		}
	}
	return nil
}

// getSession loads one session, mapping the store's not-found sentinel to
// the service one.
func (s *InsightService) getSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, err
	}
	return session, nil
}

// sessionRows bundles the persisted child collections for one session.
// Collections stay non-nil so the API marshals [] rather than null.
type sessionRows struct {
	results []*models.AgentResult
	debates []*models.DebateExchange
	events  []*models.WorkflowEvent
	tools   []*models.ToolInvocation
}

func (s *InsightService) loadRows(ctx context.Context, sessionID string) (sessionRows, error) {
	var rows sessionRows
	var err error

	if rows.results, err = s.store.ListAgentResults(ctx, sessionID); err != nil {
		return rows, err
	}
	if rows.debates, err = s.store.ListDebateExchanges(ctx, sessionID); err != nil {
		return rows, err
	}
	if rows.events, err = s.store.ListWorkflowEvents(ctx, sessionID); err != nil {
		return rows, err
	}
	if rows.tools, err = s.store.ListToolInvocations(ctx, sessionID); err != nil {
		return rows, err
	}

	if rows.results == nil {
		rows.results = []*models.AgentResult{}
	}
	if rows.debates == nil {
		rows.debates = []*models.DebateExchange{}
	}
	if rows.events == nil {
		rows.events = []*models.WorkflowEvent{}
	}
	if rows.tools == nil {
		rows.tools = []*models.ToolInvocation{}
	}
	return rows, nil
}
