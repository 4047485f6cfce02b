package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SyncState tracks reconciliation of a locally edited answer with durable storage.
// It lives only in the engine's cache; the durable row has no sync column.
type SyncState string

const (
	SyncStateSaved   SyncState = "SAVED"
	SyncStatePending SyncState = "PENDING"
	SyncStateFailed  SyncState = "FAILED"
)

// ValueKind discriminates the AnswerValue union.
type ValueKind string

const (
	ValueKindChoice   ValueKind = "choice"
	ValueKindChoices  ValueKind = "choices"
	ValueKindMatching ValueKind = "matching"
	ValueKindTruth    ValueKind = "truth"
	ValueKindText     ValueKind = "text"
)

// ErrValueShape is returned when an answer value does not match the shape
// required by its question's type. It signals a caller contract violation.
var ErrValueShape = errors.New("answer value shape does not match question type")

// AnswerValue is a closed tagged union. Exactly the field selected by Kind is
// meaningful; all indices and IDs refer to the question's original ordering,
// never to a display permutation.
type AnswerValue struct {
	Kind ValueKind `json:"kind"`
	// Choice is the selected original option index (SINGLE_CHOICE).
	Choice *int `json:"choice,omitempty"`
	// Choices is the set of selected original option indices (MULTI_CHOICE).
	Choices []int `json:"choices,omitempty"`
	// Matches maps left item ID to right item ID (MATCHING).
	Matches map[string]string `json:"matches,omitempty"`
	// Truth maps statement index to the chosen boolean (TRUE_FALSE_SET).
	Truth map[int]bool `json:"truth,omitempty"`
	// Text is the free-form response (FREE_TEXT).
	Text string `json:"text,omitempty"`
}

// kindFor maps a question type to the value kind it requires.
func kindFor(t QuestionType) ValueKind {
	switch t {
	case QuestionTypeSingleChoice:
		return ValueKindChoice
	case QuestionTypeMultiChoice:
		return ValueKindChoices
	case QuestionTypeMatching:
		return ValueKindMatching
	case QuestionTypeTrueFalseSet:
		return ValueKindTruth
	default:
		return ValueKindText
	}
}

// ValidateFor checks the value against the owning question's type. A mismatch
// is a programmer/shape error: callers log and discard rather than apply.
func (v AnswerValue) ValidateFor(q *Question) error {
	if v.Kind != kindFor(q.QuestionType) {
		return ErrValueShape
	}
	switch v.Kind {
	case ValueKindChoice:
		if v.Choice == nil || *v.Choice < 0 || *v.Choice >= len(q.Options) {
			return ErrValueShape
		}
	case ValueKindChoices:
		for _, idx := range v.Choices {
			if idx < 0 || idx >= len(q.Options) {
				return ErrValueShape
			}
		}
	case ValueKindMatching:
		right := make(map[string]bool, len(q.RightItems))
		for _, it := range q.RightItems {
			right[it.ID] = true
		}
		left := make(map[string]bool, len(q.LeftItems))
		for _, it := range q.LeftItems {
			left[it.ID] = true
		}
		for l, r := range v.Matches {
			if !left[l] || !right[r] {
				return ErrValueShape
			}
		}
	case ValueKindTruth:
		for idx := range v.Truth {
			if idx < 0 || idx >= len(q.Statements) {
				return ErrValueShape
			}
		}
	}
	return nil
}

// Answer is one participant's response to one question within a session.
type Answer struct {
	SessionID  uuid.UUID   `json:"session_id"`
	QuestionID uuid.UUID   `json:"question_id"`
	Value      AnswerValue `json:"value"`
	Unsure     bool        `json:"unsure"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
