package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/weaveai/weaveai/pkg/models"
)

const sessionColumns = `id, status, phase, current_debate_round,
	target_market, supply_chain, seller_type, min_price, max_price,
	debate_rounds, enable_followup, enable_websearch,
	retry_max_attempts, retry_backoff_ms, degrade_mode,
	final_report, report_html_url, error_message,
	evidence_pack, memory_snapshot,
	created_at, updated_at, completed_at`

// CreateSession inserts the session row. The insert is idempotent: re-running
// a session id must not clobber an existing row.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, status, phase, current_debate_round,
			target_market, supply_chain, seller_type, min_price, max_price,
			debate_rounds, enable_followup, enable_websearch,
			retry_max_attempts, retry_backoff_ms, degrade_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		session.ID,
		session.Status,
		session.Phase,
		session.CurrentDebateRound,
		session.Profile.TargetMarket,
		session.Profile.SupplyChain,
		session.Profile.SellerType,
		session.Profile.MinPrice,
		session.Profile.MaxPrice,
		session.Config.DebateRounds,
		session.Config.EnableFollowup,
		session.Config.EnableWebSearch,
		session.Config.RetryMaxAttempts,
		session.Config.RetryBackoffMS,
		session.Config.DegradeMode,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions newest first, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		string(filters.Status), filters.Limit, filters.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionStatus moves the session to a new status. Terminal statuses
// are never overwritten; the return value reports whether the update
// applied.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $2, updated_at = now()
		WHERE id = $1 AND `+notTerminal,
		id, status)
	if err != nil {
		return false, fmt.Errorf("failed to update session status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateSessionPhase advances the workflow phase and the active debate
// round. Callers only move forward; terminal sessions are left untouched.
func (s *Store) UpdateSessionPhase(ctx context.Context, id string, phase models.SessionPhase, debateRound int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET phase = $2, current_debate_round = $3, updated_at = now()
		WHERE id = $1 AND `+notTerminal,
		id, phase, debateRound)
	if err != nil {
		return fmt.Errorf("failed to update session phase: %w", err)
	}
	return nil
}

// CompleteSession finalizes a successful run: report, packs, completed_at.
// Returns false if the session already reached a terminal status (for
// example a concurrent cancel won).
func (s *Store) CompleteSession(ctx context.Context, id string, finalReport, reportHTMLURL string, evidencePack, memorySnapshot map[string]any) (bool, error) {
	evidence, err := marshalMap(evidencePack)
	if err != nil {
		return false, err
	}
	memory, err := marshalMap(memorySnapshot)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET
			status = 'completed',
			phase = 'complete',
			final_report = $2,
			report_html_url = $3,
			evidence_pack = $4,
			memory_snapshot = $5,
			completed_at = now(),
			updated_at = now()
		WHERE id = $1 AND `+notTerminal,
		id, finalReport, reportHTMLURL, evidence, memory)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailSession marks the session failed with the fatal error message.
// Returns false if a terminal status already landed.
func (s *Store) FailSession(ctx context.Context, id string, errorMessage string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET
			status = 'failed',
			phase = 'error',
			error_message = $2,
			updated_at = now()
		WHERE id = $1 AND `+notTerminal,
		id, errorMessage)
	if err != nil {
		return false, fmt.Errorf("failed to fail session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteSessionsBefore removes terminal sessions created before the cutoff.
// Child rows cascade. Returns the number of sessions removed.
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE status IN ('completed', 'failed', 'cancelled') AND created_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FailStalePendingBefore fails pending sessions that never started running.
// Returns the number of sessions swept.
func (s *Store) FailStalePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET
			status = 'failed',
			phase = 'error',
			error_message = 'session never started',
			updated_at = now()
		WHERE status = 'pending' AND created_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale pending sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanSession reads one session row in sessionColumns order.
func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		session  models.Session
		evidence []byte
		memory   []byte
	)

	err := row.Scan(
		&session.ID,
		&session.Status,
		&session.Phase,
		&session.CurrentDebateRound,
		&session.Profile.TargetMarket,
		&session.Profile.SupplyChain,
		&session.Profile.SellerType,
		&session.Profile.MinPrice,
		&session.Profile.MaxPrice,
		&session.Config.DebateRounds,
		&session.Config.EnableFollowup,
		&session.Config.EnableWebSearch,
		&session.Config.RetryMaxAttempts,
		&session.Config.RetryBackoffMS,
		&session.Config.DegradeMode,
		&session.FinalReport,
		&session.ReportHTMLURL,
		&session.ErrorMessage,
		&evidence,
		&memory,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if session.EvidencePack, err = unmarshalMap(evidence); err != nil {
		return nil, err
	}
	if session.MemorySnapshot, err = unmarshalMap(memory); err != nil {
		return nil, err
	}
	return &session, nil
}
