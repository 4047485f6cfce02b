package engine

import (
	"github.com/google/uuid"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// Correctness returns a value in [0,1] comparing an answer against the
// question's key. All types are all-or-nothing except TRUE_FALSE_SET, which
// averages per-statement equality. Free text always scores 0 automatically;
// manual grading is out of scope.
func Correctness(q *model.Question, v model.AnswerValue) float64 {
	if v.ValidateFor(q) != nil {
		return 0
	}

	key := q.AnswerKey
	switch q.QuestionType {
	case model.QuestionTypeSingleChoice:
		if key.Choice != nil && v.Choice != nil && *key.Choice == *v.Choice {
			return 1
		}
	case model.QuestionTypeMultiChoice:
		if indexSetEqual(key.Choices, v.Choices) {
			return 1
		}
	case model.QuestionTypeMatching:
		// Exact mapping equality over all left items.
		if len(key.Matches) == 0 {
			return 0
		}
		for l, r := range key.Matches {
			if v.Matches[l] != r {
				return 0
			}
		}
		return 1
	case model.QuestionTypeTrueFalseSet:
		total := len(q.Statements)
		if total == 0 {
			return 0
		}
		correct := 0
		for idx, want := range key.Truth {
			if got, ok := v.Truth[idx]; ok && got == want {
				correct++
			}
		}
		return float64(correct) / float64(total)
	}
	return 0
}

// Score computes the final weighted score over the flushed answer set.
// Score = 100 * sum(weight * correctness) / sum(weight), taken over
// auto-scored questions only. Unanswered questions count as 0 correctness but
// their weight stays in the denominator. Pure: no side effects.
func Score(questions []model.Question, answers map[uuid.UUID]model.AnswerValue) float64 {
	var weighted, totalWeight float64

	for i := range questions {
		q := &questions[i]
		if !q.QuestionType.AutoScored() || q.Weight <= 0 {
			continue
		}
		totalWeight += q.Weight
		if v, ok := answers[q.ID]; ok {
			weighted += q.Weight * Correctness(q, v)
		}
	}

	if totalWeight == 0 {
		return 0
	}
	return 100 * weighted / totalWeight
}

// indexSetEqual compares two index slices as sets. Duplicates collapse.
// An empty key never matches: a multi-choice question with no correct options
// is a data error, not a free point.
func indexSetEqual(key, got []int) bool {
	want := make(map[int]bool, len(key))
	for _, idx := range key {
		want[idx] = true
	}
	have := make(map[int]bool, len(got))
	for _, idx := range got {
		have[idx] = true
	}
	if len(want) == 0 || len(want) != len(have) {
		return false
	}
	for idx := range want {
		if !have[idx] {
			return false
		}
	}
	return true
}
