package engine

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

func TestShuffleOptions_ValidPermutations(t *testing.T) {
	questions := []model.Question{
		{ID: uuid.New(), QuestionType: model.QuestionTypeSingleChoice, Options: []string{"a", "b", "c", "d", "e"}},
		{ID: uuid.New(), QuestionType: model.QuestionTypeMultiChoice, Options: []string{"x", "y", "z"}},
		{ID: uuid.New(), QuestionType: model.QuestionTypeFreeText},
		{ID: uuid.New(), QuestionType: model.QuestionTypeTrueFalseSet, Statements: []string{"s1", "s2"}},
	}

	order := ShuffleOptions(questions, rand.New(rand.NewSource(42)))

	// Non-option types get no permutation.
	if len(order) != 2 {
		t.Fatalf("permutation count = %d, want 2", len(order))
	}

	for i := range questions[:2] {
		q := &questions[i]
		perm, ok := order[q.ID]
		if !ok {
			t.Fatalf("missing permutation for question %s", q.ID)
		}
		if len(perm) != len(q.Options) {
			t.Fatalf("permutation length = %d, want %d", len(perm), len(q.Options))
		}
		seen := make(map[int]bool)
		for _, idx := range perm {
			if idx < 0 || idx >= len(q.Options) || seen[idx] {
				t.Fatalf("not a permutation: %v", perm)
			}
			seen[idx] = true
		}
	}
}

func TestShuffleOptions_DeterministicForSeed(t *testing.T) {
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeSingleChoice,
		Options:      []string{"a", "b", "c", "d", "e", "f"},
	}

	a := ShuffleOptions([]model.Question{q}, rand.New(rand.NewSource(7)))
	b := ShuffleOptions([]model.Question{q}, rand.New(rand.NewSource(7)))

	for i := range a[q.ID] {
		if a[q.ID][i] != b[q.ID][i] {
			t.Fatalf("same seed produced different permutations: %v vs %v", a[q.ID], b[q.ID])
		}
	}
}

// Scoring must be invariant to the display permutation: answers are recorded
// in original indices, so shuffling options can never change correctness.
func TestShuffleOptions_ScoringInvariant(t *testing.T) {
	q := singleChoiceQuestion(3, 10)
	order := ShuffleOptions([]model.Question{q}, rand.New(rand.NewSource(99)))

	// The participant clicks whatever display position shows original option
	// 3; the recorded answer is the original index regardless of position.
	perm := order[q.ID]
	displayPos := -1
	for pos, orig := range perm {
		if orig == 3 {
			displayPos = pos
			break
		}
	}
	if displayPos < 0 {
		t.Fatal("original index 3 not present in permutation")
	}

	recorded := model.AnswerValue{Kind: model.ValueKindChoice, Choice: intPtr(perm[displayPos])}
	if got := Correctness(&q, recorded); got != 1 {
		t.Errorf("Correctness() = %v, want 1 (permutation must not affect scoring)", got)
	}
}

func TestIdentityOrder(t *testing.T) {
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeMultiChoice,
		Options:      []string{"a", "b", "c"},
	}
	order := IdentityOrder([]model.Question{q})
	for i, idx := range order[q.ID] {
		if i != idx {
			t.Fatalf("identity order = %v", order[q.ID])
		}
	}
}
