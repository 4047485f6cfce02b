package engine

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// OptionOrder maps question ID to a permutation: display position -> original
// option index. Computed once at session creation, persisted on the session
// row, and reused on every resume so a reload never reshuffles.
type OptionOrder map[uuid.UUID][]int

// ShuffleOptions builds a per-question Fisher-Yates permutation for every
// option-bearing question. The permutation exists purely for rendering;
// answers and scoring stay in original indices.
func ShuffleOptions(questions []model.Question, rnd *rand.Rand) OptionOrder {
	order := make(OptionOrder)
	for i := range questions {
		q := &questions[i]
		if !q.QuestionType.HasOptions() || len(q.Options) == 0 {
			continue
		}
		perm := make([]int, len(q.Options))
		for j := range perm {
			perm[j] = j
		}
		for j := len(perm) - 1; j > 0; j-- {
			k := rnd.Intn(j + 1)
			perm[j], perm[k] = perm[k], perm[j]
		}
		order[q.ID] = perm
	}
	return order
}

// IdentityOrder returns the no-shuffle permutation, used when randomization
// is disabled so the paper payload keeps a uniform shape.
func IdentityOrder(questions []model.Question) OptionOrder {
	order := make(OptionOrder)
	for i := range questions {
		q := &questions[i]
		if !q.QuestionType.HasOptions() || len(q.Options) == 0 {
			continue
		}
		perm := make([]int, len(q.Options))
		for j := range perm {
			perm[j] = j
		}
		order[q.ID] = perm
	}
	return order
}
