package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// questionPayload is the jsonb column carrying type-dependent question parts.
type questionPayload struct {
	Options    []string          `json:"options,omitempty"`
	Statements []string          `json:"statements,omitempty"`
	LeftItems  []model.MatchItem `json:"left_items,omitempty"`
	RightItems []model.MatchItem `json:"right_items,omitempty"`
}

// QuestionRepository reads the immutable question set. Authoring is out of
// scope; there are no writers here.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest returns the test's questions in paper order.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_text, question_type, payload, answer_key, weight, order_num
		 FROM questions
		 WHERE test_id = $1
		 ORDER BY order_num`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var rawPayload, rawKey []byte
		if err := rows.Scan(&q.ID, &q.TestID, &q.QuestionText, &q.QuestionType,
			&rawPayload, &rawKey, &q.Weight, &q.OrderNum); err != nil {
			return nil, err
		}

		var p questionPayload
		if err := json.Unmarshal(rawPayload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal question payload %s: %w", q.ID, err)
		}
		q.Options = p.Options
		q.Statements = p.Statements
		q.LeftItems = p.LeftItems
		q.RightItems = p.RightItems

		if err := json.Unmarshal(rawKey, &q.AnswerKey); err != nil {
			return nil, fmt.Errorf("unmarshal answer key %s: %w", q.ID, err)
		}

		questions = append(questions, q)
	}
	return questions, rows.Err()
}
