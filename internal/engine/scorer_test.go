package engine

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

func intPtr(v int) *int { return &v }

func singleChoiceQuestion(correct int, weight float64) model.Question {
	return model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeSingleChoice,
		Options:      []string{"a", "b", "c", "d"},
		AnswerKey:    model.AnswerValue{Kind: model.ValueKindChoice, Choice: intPtr(correct)},
		Weight:       weight,
	}
}

func TestCorrectness_SingleChoice(t *testing.T) {
	q := singleChoiceQuestion(2, 10)

	tests := []struct {
		name  string
		value model.AnswerValue
		want  float64
	}{
		{"exact match", model.AnswerValue{Kind: model.ValueKindChoice, Choice: intPtr(2)}, 1},
		{"wrong index", model.AnswerValue{Kind: model.ValueKindChoice, Choice: intPtr(1)}, 0},
		{"wrong shape", model.AnswerValue{Kind: model.ValueKindText, Text: "c"}, 0},
		{"nil choice", model.AnswerValue{Kind: model.ValueKindChoice}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Correctness(&q, tt.value); got != tt.want {
				t.Errorf("Correctness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCorrectness_MultiChoice(t *testing.T) {
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeMultiChoice,
		Options:      []string{"a", "b", "c", "d"},
		AnswerKey:    model.AnswerValue{Kind: model.ValueKindChoices, Choices: []int{0, 2}},
		Weight:       5,
	}

	tests := []struct {
		name    string
		choices []int
		want    float64
	}{
		{"set equality regardless of order", []int{2, 0}, 1},
		{"subset is all-or-nothing", []int{0}, 0},
		{"superset is all-or-nothing", []int{0, 2, 3}, 0},
		{"duplicates collapse", []int{0, 2, 2}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := model.AnswerValue{Kind: model.ValueKindChoices, Choices: tt.choices}
			if got := Correctness(&q, v); got != tt.want {
				t.Errorf("Correctness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCorrectness_Matching(t *testing.T) {
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeMatching,
		LeftItems:    []model.MatchItem{{ID: "l1"}, {ID: "l2"}},
		RightItems:   []model.MatchItem{{ID: "r1"}, {ID: "r2"}},
		AnswerKey: model.AnswerValue{
			Kind:    model.ValueKindMatching,
			Matches: map[string]string{"l1": "r1", "l2": "r2"},
		},
		Weight: 1,
	}

	full := model.AnswerValue{Kind: model.ValueKindMatching, Matches: map[string]string{"l1": "r1", "l2": "r2"}}
	if got := Correctness(&q, full); got != 1 {
		t.Errorf("full mapping = %v, want 1", got)
	}

	partial := model.AnswerValue{Kind: model.ValueKindMatching, Matches: map[string]string{"l1": "r1"}}
	if got := Correctness(&q, partial); got != 0 {
		t.Errorf("partial mapping = %v, want 0 (all-or-nothing)", got)
	}

	swapped := model.AnswerValue{Kind: model.ValueKindMatching, Matches: map[string]string{"l1": "r2", "l2": "r1"}}
	if got := Correctness(&q, swapped); got != 0 {
		t.Errorf("swapped mapping = %v, want 0", got)
	}
}

func TestCorrectness_TrueFalseSet_PartialCredit(t *testing.T) {
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeTrueFalseSet,
		Statements:   []string{"s0", "s1", "s2", "s3"},
		AnswerKey: model.AnswerValue{
			Kind:  model.ValueKindTruth,
			Truth: map[int]bool{0: true, 1: false, 2: true, 3: false},
		},
		Weight: 10,
	}

	// 3 of 4 statements answered correctly.
	v := model.AnswerValue{
		Kind:  model.ValueKindTruth,
		Truth: map[int]bool{0: true, 1: false, 2: true, 3: true},
	}
	if got := Correctness(&q, v); got != 0.75 {
		t.Errorf("Correctness() = %v, want 0.75", got)
	}
}

func TestScore_TrueFalseSetPartialCredit(t *testing.T) {
	// Single TRUE_FALSE_SET question, 4 statements, 3 correct, weight 10:
	// 100 * (0.75*10)/10 = 75.
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeTrueFalseSet,
		Statements:   []string{"s0", "s1", "s2", "s3"},
		AnswerKey: model.AnswerValue{
			Kind:  model.ValueKindTruth,
			Truth: map[int]bool{0: true, 1: true, 2: true, 3: true},
		},
		Weight: 10,
	}
	answers := map[uuid.UUID]model.AnswerValue{
		q.ID: {Kind: model.ValueKindTruth, Truth: map[int]bool{0: true, 1: true, 2: true, 3: false}},
	}

	got := Score([]model.Question{q}, answers)
	if math.Abs(got-75) > 1e-9 {
		t.Errorf("Score() = %v, want 75", got)
	}
}

func TestScore_FreeTextExcluded(t *testing.T) {
	single := singleChoiceQuestion(0, 10)
	freeText := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeFreeText,
		AnswerKey:    model.AnswerValue{Kind: model.ValueKindText},
		Weight:       90,
	}

	answers := map[uuid.UUID]model.AnswerValue{
		single.ID:   {Kind: model.ValueKindChoice, Choice: intPtr(0)},
		freeText.ID: {Kind: model.ValueKindText, Text: "long essay"},
	}

	// Free text contributes to neither numerator nor denominator.
	got := Score([]model.Question{single, freeText}, answers)
	if got != 100 {
		t.Errorf("Score() = %v, want 100", got)
	}
}

func TestScore_WeightedMix(t *testing.T) {
	right := singleChoiceQuestion(1, 30)
	wrong := singleChoiceQuestion(1, 10)

	answers := map[uuid.UUID]model.AnswerValue{
		right.ID: {Kind: model.ValueKindChoice, Choice: intPtr(1)},
		wrong.ID: {Kind: model.ValueKindChoice, Choice: intPtr(0)},
	}

	got := Score([]model.Question{right, wrong}, answers)
	if math.Abs(got-75) > 1e-9 {
		t.Errorf("Score() = %v, want 75", got)
	}
}

func TestScore_NoScorableQuestions(t *testing.T) {
	freeText := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeFreeText,
		Weight:       10,
	}
	if got := Score([]model.Question{freeText}, nil); got != 0 {
		t.Errorf("Score() = %v, want 0", got)
	}
}

func TestScore_UnansweredCountsInDenominator(t *testing.T) {
	answered := singleChoiceQuestion(0, 50)
	skipped := singleChoiceQuestion(0, 50)

	answers := map[uuid.UUID]model.AnswerValue{
		answered.ID: {Kind: model.ValueKindChoice, Choice: intPtr(0)},
	}

	got := Score([]model.Question{answered, skipped}, answers)
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("Score() = %v, want 50", got)
	}
}
