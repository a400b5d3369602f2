package store

import (
	"context"
	"fmt"

	"github.com/weaveai/weaveai/pkg/models"
)

// InsertDebateExchange records one challenger/responder exchange.
func (s *Store) InsertDebateExchange(ctx context.Context, exchange *models.DebateExchange) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO debate_exchanges (session_id, round_number, debate_type,
			challenger_agent, responder_agent, challenge_content,
			response_content, followup_content, revised)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		exchange.SessionID,
		exchange.RoundNumber,
		exchange.DebateType,
		exchange.ChallengerAgent,
		exchange.ResponderAgent,
		exchange.ChallengeContent,
		exchange.ResponseContent,
		nullableString(exchange.FollowupContent),
		exchange.Revised,
	)
	if err != nil {
		return fmt.Errorf("failed to insert debate exchange: %w", err)
	}
	return nil
}

// ListDebateExchanges returns the session's exchanges ordered by round, then
// insertion time.
func (s *Store) ListDebateExchanges(ctx context.Context, sessionID string) ([]*models.DebateExchange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, round_number, debate_type, challenger_agent,
			responder_agent, challenge_content, response_content,
			followup_content, revised, created_at
		FROM debate_exchanges
		WHERE session_id = $1
		ORDER BY round_number, created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list debate exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*models.DebateExchange
	for rows.Next() {
		var (
			exchange models.DebateExchange
			followup *string
		)
		err := rows.Scan(
			&exchange.ID,
			&exchange.SessionID,
			&exchange.RoundNumber,
			&exchange.DebateType,
			&exchange.ChallengerAgent,
			&exchange.ResponderAgent,
			&exchange.ChallengeContent,
			&exchange.ResponseContent,
			&followup,
			&exchange.Revised,
			&exchange.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debate exchange: %w", err)
		}
		exchange.FollowupContent = derefString(followup)
		exchanges = append(exchanges, &exchange)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list debate exchanges: %w", err)
	}
	return exchanges, nil
}
