package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// SessionRepository handles attempt session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, test_id, status, started_at, duration_seconds,
	violation_count, final_score, finished_at, option_order`

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.TestID, &s.Status, &s.StartedAt,
		&s.DurationSeconds, &s.ViolationCount, &s.FinalScore, &s.FinishedAt, &s.OptionOrder)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateOrResume atomically creates a session for (user, test) or returns the
// existing one. Concurrent callers for the same pair collapse to a single
// durable row through the unique constraint; this is never a read-then-write.
// The returned bool reports whether a new row was created.
func (r *SessionRepository) CreateOrResume(ctx context.Context, userID int, testID uuid.UUID, durationSeconds int) (*model.Session, bool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO attempt_sessions (user_id, test_id, status, duration_seconds)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, test_id) DO NOTHING
		 RETURNING `+sessionColumns,
		userID, testID, model.SessionStatusActive, durationSeconds,
	)

	s, err := scanSession(row)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create session: %w", err)
	}

	// Conflict: a session already exists (possibly created by a concurrent
	// tab a moment ago). Resume it.
	s, err = r.GetByUserAndTest(ctx, userID, testID)
	if err != nil {
		return nil, false, fmt.Errorf("resume after conflict: %w", err)
	}
	return s, false, nil
}

// GetByUserAndTest retrieves the session for a user-test pair.
func (r *SessionRepository) GetByUserAndTest(ctx context.Context, userID int, testID uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM attempt_sessions
		 WHERE user_id = $1 AND test_id = $2`, userID, testID))
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM attempt_sessions
		 WHERE id = $1`, id))
}

// UpdateViolationState persists a violation count and status. The ACTIVE
// guard keeps the status machine monotone: a terminal row is never rewritten,
// even by a stale engine.
func (r *SessionRepository) UpdateViolationState(ctx context.Context, id uuid.UUID, count int, status model.SessionStatus) error {
	var finishedAt *time.Time
	if status.Terminal() {
		now := time.Now()
		finishedAt = &now
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE attempt_sessions
		 SET violation_count = $2, status = $3, finished_at = COALESCE($4, finished_at)
		 WHERE id = $1 AND status = $5`,
		id, count, status, finishedAt, model.SessionStatusActive)
	return err
}

// FinalizeSession marks a session SUBMITTED with its score. One-shot: when
// the row is already terminal the update matches nothing and the call is a
// no-op, so a race between manual submit and timeout settles on one winner.
func (r *SessionRepository) FinalizeSession(ctx context.Context, id uuid.UUID, score float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempt_sessions
		 SET status = $2, final_score = $3, finished_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, model.SessionStatusSubmitted, score, model.SessionStatusActive)
	return err
}

// SaveOptionOrder persists the per-question option permutations so a reload
// reuses them instead of reshuffling.
func (r *SessionRepository) SaveOptionOrder(ctx context.Context, id uuid.UUID, order json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempt_sessions SET option_order = $2 WHERE id = $1`,
		id, order)
	return err
}

// ListExpiredActive returns ACTIVE sessions whose deadline passed more than
// grace ago. Used by the expiry reaper to finalize attempts whose engine
// vanished (client gone, process restarted).
func (r *SessionRepository) ListExpiredActive(ctx context.Context, grace time.Duration, limit int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM attempt_sessions
		 WHERE status = $1
		   AND started_at + make_interval(secs => duration_seconds) < NOW() - make_interval(secs => $2)
		 ORDER BY started_at
		 LIMIT $3`,
		model.SessionStatusActive, grace.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
