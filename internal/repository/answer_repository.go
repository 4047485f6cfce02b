package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// AnswerRepository handles durable answer storage.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// UpsertAnswer creates or replaces the answer for (session, question).
// Idempotent: replaying the same edit is safe, and a replay after a newer
// write simply rewrites the same row.
func (r *AnswerRepository) UpsertAnswer(ctx context.Context, sessionID, questionID uuid.UUID, value model.AnswerValue, unsure bool) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal answer value: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (session_id, question_id, value, unsure)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET value = EXCLUDED.value, unsure = EXCLUDED.unsure, updated_at = NOW()`,
		sessionID, questionID, raw, unsure)
	return err
}

// ListBySession returns all persisted answers for a session. Used once at
// resume to hydrate the engine's cache.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, question_id, value, unsure, updated_at
		 FROM attempt_answers
		 WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		var raw []byte
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &raw, &a.Unsure, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &a.Value); err != nil {
			return nil, fmt.Errorf("unmarshal answer value: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
