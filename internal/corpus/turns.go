package corpus

import (
	"context"
	"encoding/json"
	"fmt"
)

// CreateTurn appends one question/answer exchange to a meeting's history and
// returns its id. Turns are immutable after creation.
func (s *Store) CreateTurn(ctx context.Context, turn *ConversationTurn) (int64, error) {
	if turn.Question == "" {
		return 0, fmt.Errorf("question is required")
	}
	if turn.Answer == "" {
		return 0, fmt.Errorf("answer is required")
	}

	evidence := turn.EvidenceChunkIDs
	if evidence == nil {
		evidence = []string{}
	}
	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return 0, fmt.Errorf("marshaling evidence ids: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO conversation_turns (meeting_id, user_id, question, answer, evidence_chunk_ids)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		turn.MeetingID, turn.UserID, turn.Question, turn.Answer, evidenceJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting conversation turn: %w", err)
	}
	return id, nil
}

// RecentTurns returns up to limit of the newest turns for a meeting, newest
// first. Callers that need chronological order reverse the slice.
func (s *Store) RecentTurns(ctx context.Context, meetingID int64, limit int) ([]ConversationTurn, error) {
	if limit < 1 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, meeting_id, user_id, question, answer, evidence_chunk_ids, created_at
		 FROM conversation_turns
		 WHERE meeting_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		meetingID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []ConversationTurn
	for rows.Next() {
		var (
			t        ConversationTurn
			evidence []byte
		)
		if err := rows.Scan(&t.ID, &t.MeetingID, &t.UserID, &t.Question, &t.Answer,
			&evidence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation turn: %w", err)
		}
		if err := json.Unmarshal(evidence, &t.EvidenceChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling evidence ids: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
