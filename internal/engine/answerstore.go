package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

const (
	// FreeTextDebounce coalesces rapid keystrokes on a free-text answer into
	// one durable write. All other answer types persist on every edit.
	FreeTextDebounce = 1500 * time.Millisecond
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase = 500 * time.Millisecond
	// MaxWriteAttempts bounds retries for a single logical write.
	MaxWriteAttempts = 3
)

// AnswerWriter is the durable persistence boundary for answers. Upsert must
// be idempotent under replay of the same (session, question) edit.
type AnswerWriter interface {
	UpsertAnswer(ctx context.Context, sessionID, questionID uuid.UUID, value model.AnswerValue, unsure bool) error
}

// AnswerSnapshot is the caller-visible view of one cached answer.
type AnswerSnapshot struct {
	Value     model.AnswerValue `json:"value"`
	Unsure    bool              `json:"unsure"`
	SyncState model.SyncState   `json:"sync_state"`
}

type answerEntry struct {
	value  model.AnswerValue
	unsure bool
	// seq increases monotonically per edit. A write completion whose seq no
	// longer matches is stale and must not settle the sync state.
	seq      uint64
	state    model.SyncState
	inFlight bool
	debounce *time.Timer
}

// AnswerStore reconciles local answer edits with durable storage under a
// write-behind policy: edits apply to the cache immediately and persist
// asynchronously with bounded retry. The cache is authoritative for display;
// a failed write surfaces as SyncStateFailed but never discards the value.
type AnswerStore struct {
	// Tunables; fixed at construction, overridable before first use in tests.
	Debounce    time.Duration
	RetryBase   time.Duration
	MaxAttempts int

	// OnSync, when set, observes sync-state settlements (Saved/Failed).
	// Called without the store lock held.
	OnSync func(questionID uuid.UUID, state model.SyncState)

	sessionID uuid.UUID
	writer    AnswerWriter
	log       zerolog.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*answerEntry
	frozen  bool
	wg      sync.WaitGroup
}

// NewAnswerStore creates a store for one session.
func NewAnswerStore(sessionID uuid.UUID, writer AnswerWriter, log zerolog.Logger) *AnswerStore {
	return &AnswerStore{
		Debounce:    FreeTextDebounce,
		RetryBase:   RetryBase,
		MaxAttempts: MaxWriteAttempts,
		sessionID:   sessionID,
		writer:      writer,
		log:         log.With().Str("component", "answer_store").Logger(),
		entries:     make(map[uuid.UUID]*answerEntry),
	}
}

// Hydrate loads previously persisted answers, marking them Saved. Called once
// at resume, before any edits; the hydrated cache is authoritative over any
// stale client-local storage.
func (s *AnswerStore) Hydrate(answers []model.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range answers {
		a := &answers[i]
		s.entries[a.QuestionID] = &answerEntry{
			value:  a.Value,
			unsure: a.Unsure,
			state:  model.SyncStateSaved,
		}
	}
}

// Update applies an edit optimistically and schedules persistence. Returns
// false when the store is frozen (terminal session) or the value's shape does
// not match the question; in both cases the cache is left untouched.
func (s *AnswerStore) Update(q *model.Question, value model.AnswerValue, unsure bool) bool {
	if err := value.ValidateFor(q); err != nil {
		s.log.Warn().
			Str("question_id", q.ID.String()).
			Str("question_type", string(q.QuestionType)).
			Str("value_kind", string(value.Kind)).
			Msg("Discarding answer with mismatched shape")
		return false
	}

	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return false
	}

	e := s.entries[q.ID]
	if e == nil {
		e = &answerEntry{}
		s.entries[q.ID] = e
	}
	e.value = value
	e.unsure = unsure
	e.seq++
	e.state = model.SyncStatePending

	if q.QuestionType == model.QuestionTypeFreeText {
		if e.debounce != nil {
			e.debounce.Stop()
		}
		qid := q.ID
		e.debounce = time.AfterFunc(s.Debounce, func() {
			s.mu.Lock()
			s.kickLocked(qid)
			s.mu.Unlock()
		})
	} else {
		s.kickLocked(q.ID)
	}
	s.mu.Unlock()
	return true
}

// kickLocked starts an async writer for the question unless one is already
// running. The single in-flight writer per question guarantees per-question
// write ordering: a slow earlier write can never land after a later one.
func (s *AnswerStore) kickLocked(questionID uuid.UUID) {
	e := s.entries[questionID]
	if e == nil || e.inFlight || e.state == model.SyncStateSaved || s.frozen {
		return
	}
	e.inFlight = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.persist(context.Background(), questionID)

		s.mu.Lock()
		e := s.entries[questionID]
		e.inFlight = false
		// An edit arrived while we were writing; chase it.
		if e.state == model.SyncStatePending && !s.frozen {
			s.kickLocked(questionID)
		}
		s.mu.Unlock()
	}()
}

// persist writes the latest cached value with bounded exponential backoff.
// The snapshot is re-read before every attempt so retries always carry the
// newest edit, and the seq check on completion keeps a stale attempt from
// settling the state a newer edit owns.
func (s *AnswerStore) persist(ctx context.Context, questionID uuid.UUID) {
	backoff := s.RetryBase

	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		s.mu.Lock()
		e := s.entries[questionID]
		if e == nil || e.state == model.SyncStateSaved {
			s.mu.Unlock()
			return
		}
		seq, value, unsure := e.seq, e.value, e.unsure
		s.mu.Unlock()

		err := s.writer.UpsertAnswer(ctx, s.sessionID, questionID, value, unsure)

		s.mu.Lock()
		e = s.entries[questionID]
		if e == nil || e.seq != seq {
			// Stale completion; the newer edit's write settles the state.
			s.mu.Unlock()
			return
		}
		if err == nil {
			e.state = model.SyncStateSaved
			s.mu.Unlock()
			s.notify(questionID, model.SyncStateSaved)
			return
		}
		s.mu.Unlock()

		s.log.Warn().Err(err).
			Str("question_id", questionID.String()).
			Int("attempt", attempt).
			Msg("Answer write failed")

		if attempt < s.MaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	s.mu.Lock()
	e := s.entries[questionID]
	failed := e != nil && e.state == model.SyncStatePending
	if failed {
		e.state = model.SyncStateFailed
	}
	s.mu.Unlock()
	if failed {
		s.notify(questionID, model.SyncStateFailed)
	}
}

// Flush cancels pending debounce timers and synchronously writes every answer
// not yet Saved. Used at submission; a session must never be scored against a
// partially flushed set. Returns the number of answers still unsaved.
func (s *AnswerStore) Flush(ctx context.Context) int {
	s.mu.Lock()
	pending := make([]uuid.UUID, 0)
	for qid, e := range s.entries {
		if e.debounce != nil {
			e.debounce.Stop()
			e.debounce = nil
		}
		if e.state != model.SyncStateSaved {
			// Reset a Failed entry so the flush write may retry it.
			e.state = model.SyncStatePending
			pending = append(pending, qid)
		}
	}
	s.mu.Unlock()

	for _, qid := range pending {
		s.persist(ctx, qid)
	}

	unsaved := 0
	s.mu.Lock()
	for _, e := range s.entries {
		if e.state != model.SyncStateSaved {
			unsaved++
		}
	}
	s.mu.Unlock()
	return unsaved
}

// Freeze permanently blocks further edits. Called when the session reaches a
// terminal state; any subsequent Update is a no-op.
func (s *AnswerStore) Freeze() {
	s.mu.Lock()
	s.frozen = true
	for _, e := range s.entries {
		if e.debounce != nil {
			e.debounce.Stop()
			e.debounce = nil
		}
	}
	s.mu.Unlock()
}

// Values returns the current answer values keyed by question, for scoring
// after a flush.
func (s *AnswerStore) Values() map[uuid.UUID]model.AnswerValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]model.AnswerValue, len(s.entries))
	for qid, e := range s.entries {
		out[qid] = e.value
	}
	return out
}

// Snapshot returns the caller-visible answer map with sync states.
func (s *AnswerStore) Snapshot() map[uuid.UUID]AnswerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]AnswerSnapshot, len(s.entries))
	for qid, e := range s.entries {
		out[qid] = AnswerSnapshot{Value: e.value, Unsure: e.unsure, SyncState: e.state}
	}
	return out
}

// Wait blocks until all outstanding async writers finish. Test helper and
// shutdown aid; not part of the edit path.
func (s *AnswerStore) Wait() {
	s.wg.Wait()
}

func (s *AnswerStore) notify(questionID uuid.UUID, state model.SyncState) {
	if s.OnSync != nil {
		s.OnSync(questionID, state)
	}
}
