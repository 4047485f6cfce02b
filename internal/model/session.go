package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates attempt session states.
type SessionStatus string

const (
	SessionStatusActive       SessionStatus = "ACTIVE"
	SessionStatusDisqualified SessionStatus = "DISQUALIFIED"
	SessionStatusSubmitted    SessionStatus = "SUBMITTED"
)

// Terminal reports whether the status can never transition again.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusDisqualified || s == SessionStatusSubmitted
}

// SubmitTrigger records what caused a submission.
type SubmitTrigger string

const (
	TriggerUser    SubmitTrigger = "user"
	TriggerTimeout SubmitTrigger = "timeout"
)

// Session represents one participant's one attempt at one test.
// The durable row is the source of truth on resume; status transitions are
// monotone (ACTIVE -> DISQUALIFIED | SUBMITTED).
type Session struct {
	ID              uuid.UUID       `json:"id"`
	UserID          int             `json:"user_id"`
	TestID          uuid.UUID       `json:"test_id"`
	Status          SessionStatus   `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	DurationSeconds int             `json:"duration_seconds"`
	ViolationCount  int             `json:"violation_count"`
	FinalScore      *float64        `json:"final_score,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	OptionOrder     json.RawMessage `json:"option_order,omitempty"`
}

// Deadline is the wall-clock instant at which the attempt expires.
// Remaining time is always recomputed from this, never from a local counter,
// so reloads and clock-skewed clients cannot stretch the attempt.
func (s *Session) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.DurationSeconds) * time.Second)
}

// RemainingSeconds returns whole seconds left at the given instant, floored at 0.
func (s *Session) RemainingSeconds(now time.Time) int {
	rem := s.Deadline().Sub(now)
	if rem <= 0 {
		return 0
	}
	return int(rem / time.Second)
}
