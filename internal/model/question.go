package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates supported question shapes.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeMatching     QuestionType = "MATCHING"
	QuestionTypeTrueFalseSet QuestionType = "TRUE_FALSE_SET"
	QuestionTypeFreeText     QuestionType = "FREE_TEXT"
)

// HasOptions reports whether the type carries a shuffleable option list.
func (t QuestionType) HasOptions() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// AutoScored reports whether the type participates in automatic scoring.
// Free text is graded manually and contributes nothing automatically.
func (t QuestionType) AutoScored() bool {
	return t != QuestionTypeFreeText
}

// MatchItem is one side of a matching pair.
type MatchItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Question is immutable within a session.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	TestID       uuid.UUID    `json:"test_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	// Options applies to SINGLE_CHOICE and MULTI_CHOICE. Order here is the
	// original order; answers are always recorded against these indices.
	Options []string `json:"options,omitempty"`
	// Statements applies to TRUE_FALSE_SET.
	Statements []string `json:"statements,omitempty"`
	// LeftItems/RightItems apply to MATCHING.
	LeftItems  []MatchItem `json:"left_items,omitempty"`
	RightItems []MatchItem `json:"right_items,omitempty"`
	AnswerKey  AnswerValue `json:"answer_key"`
	Weight     float64     `json:"weight"`
	OrderNum   int         `json:"order_num"`
}

// QuestionForParticipant is a question stripped of its answer key.
type QuestionForParticipant struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Options      []string     `json:"options,omitempty"`
	Statements   []string     `json:"statements,omitempty"`
	LeftItems    []MatchItem  `json:"left_items,omitempty"`
	RightItems   []MatchItem  `json:"right_items,omitempty"`
	Weight       float64      `json:"weight"`
	OrderNum     int          `json:"order_num"`
}

// ForParticipant strips the answer key for delivery to the client.
func (q *Question) ForParticipant() QuestionForParticipant {
	return QuestionForParticipant{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		QuestionType: q.QuestionType,
		Options:      q.Options,
		Statements:   q.Statements,
		LeftItems:    q.LeftItems,
		RightItems:   q.RightItems,
		Weight:       q.Weight,
		OrderNum:     q.OrderNum,
	}
}
