package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// fakeWriter records upserts and fails the first failN calls.
type fakeWriter struct {
	mu     sync.Mutex
	failN  int
	calls  int
	last   map[uuid.UUID]model.AnswerValue
	unsure map[uuid.UUID]bool
}

func newFakeWriter(failN int) *fakeWriter {
	return &fakeWriter{
		failN:  failN,
		last:   make(map[uuid.UUID]model.AnswerValue),
		unsure: make(map[uuid.UUID]bool),
	}
}

func (w *fakeWriter) UpsertAnswer(_ context.Context, _, questionID uuid.UUID, value model.AnswerValue, unsure bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failN {
		return errors.New("simulated network drop")
	}
	w.last[questionID] = value
	w.unsure[questionID] = unsure
	return nil
}

func (w *fakeWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func (w *fakeWriter) lastValue(questionID uuid.UUID) (model.AnswerValue, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.last[questionID]
	return v, ok
}

func newTestStore(w AnswerWriter) *AnswerStore {
	s := NewAnswerStore(uuid.New(), w, zerolog.Nop())
	s.Debounce = 10 * time.Millisecond
	s.RetryBase = time.Millisecond
	return s
}

func choiceQuestion() model.Question {
	return model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeSingleChoice,
		Options:      []string{"a", "b", "c"},
	}
}

func freeTextQuestion() model.Question {
	return model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeFreeText}
}

func choice(idx int) model.AnswerValue {
	return model.AnswerValue{Kind: model.ValueKindChoice, Choice: &idx}
}

func text(s string) model.AnswerValue {
	return model.AnswerValue{Kind: model.ValueKindText, Text: s}
}

func waitForState(t *testing.T, s *AnswerStore, questionID uuid.UUID, want model.SyncState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := s.Snapshot()[questionID]; ok && snap.SyncState == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	snap := s.Snapshot()[questionID]
	t.Fatalf("sync state = %s, want %s", snap.SyncState, want)
}

func TestAnswerStore_ImmediateWriteSaves(t *testing.T) {
	w := newFakeWriter(0)
	s := newTestStore(w)
	q := choiceQuestion()

	if !s.Update(&q, choice(1), false) {
		t.Fatal("Update rejected a valid edit")
	}
	waitForState(t, s, q.ID, model.SyncStateSaved)

	got, ok := w.lastValue(q.ID)
	if !ok || *got.Choice != 1 {
		t.Fatalf("persisted value = %+v, want choice 1", got)
	}
}

func TestAnswerStore_RetryThenSave(t *testing.T) {
	// Two consecutive failures, then success: Pending until the third
	// attempt lands, then Saved, and the persisted value is the edit's value.
	w := newFakeWriter(2)
	s := newTestStore(w)
	q := choiceQuestion()

	s.Update(&q, choice(2), true)

	if snap := s.Snapshot()[q.ID]; snap.SyncState != model.SyncStatePending {
		t.Fatalf("state after edit = %s, want PENDING", snap.SyncState)
	}

	waitForState(t, s, q.ID, model.SyncStateSaved)
	if w.callCount() != 3 {
		t.Errorf("write attempts = %d, want 3", w.callCount())
	}
	got, _ := w.lastValue(q.ID)
	if *got.Choice != 2 {
		t.Errorf("persisted choice = %d, want 2", *got.Choice)
	}
}

func TestAnswerStore_FailedAfterExhaustedRetries(t *testing.T) {
	w := newFakeWriter(100) // never succeeds
	s := newTestStore(w)
	q := choiceQuestion()

	s.Update(&q, choice(0), false)
	waitForState(t, s, q.ID, model.SyncStateFailed)

	// The local value is always retained, never discarded.
	snap := s.Snapshot()[q.ID]
	if snap.Value.Choice == nil || *snap.Value.Choice != 0 {
		t.Fatalf("local value lost after failure: %+v", snap.Value)
	}
}

func TestAnswerStore_NewerEditWinsOverRetryingWrite(t *testing.T) {
	// The first edit's write fails once; before the retry lands, a newer
	// edit arrives. The durable value must end up as the newer edit's.
	w := newFakeWriter(1)
	s := newTestStore(w)
	s.RetryBase = 20 * time.Millisecond
	q := choiceQuestion()

	s.Update(&q, choice(0), false)
	time.Sleep(5 * time.Millisecond) // let the first attempt fail
	s.Update(&q, choice(2), false)

	waitForState(t, s, q.ID, model.SyncStateSaved)
	s.Wait()

	got, _ := w.lastValue(q.ID)
	if got.Choice == nil || *got.Choice != 2 {
		t.Fatalf("persisted choice = %+v, want 2 (stale write must not clobber)", got.Choice)
	}
}

func TestAnswerStore_FreeTextDebounceCoalesces(t *testing.T) {
	w := newFakeWriter(0)
	s := newTestStore(w)
	q := freeTextQuestion()

	// Rapid keystrokes within the debounce window collapse into one write.
	s.Update(&q, text("h"), false)
	s.Update(&q, text("he"), false)
	s.Update(&q, text("hel"), false)
	s.Update(&q, text("hello"), false)

	waitForState(t, s, q.ID, model.SyncStateSaved)
	s.Wait()

	if n := w.callCount(); n != 1 {
		t.Errorf("write count = %d, want 1 (debounce must coalesce)", n)
	}
	got, _ := w.lastValue(q.ID)
	if got.Text != "hello" {
		t.Errorf("persisted text = %q, want %q", got.Text, "hello")
	}
}

func TestAnswerStore_FlushCancelsDebounceAndWrites(t *testing.T) {
	w := newFakeWriter(0)
	s := newTestStore(w)
	s.Debounce = time.Hour // would never fire on its own
	q := freeTextQuestion()

	s.Update(&q, text("draft"), true)

	if unsaved := s.Flush(context.Background()); unsaved != 0 {
		t.Fatalf("unsaved after flush = %d, want 0", unsaved)
	}
	got, ok := w.lastValue(q.ID)
	if !ok || got.Text != "draft" {
		t.Fatalf("flush did not persist the debounced answer: %+v", got)
	}
}

func TestAnswerStore_FlushRetriesFailedEntries(t *testing.T) {
	w := newFakeWriter(3) // async attempts all fail, flush's first succeeds
	s := newTestStore(w)
	q := choiceQuestion()

	s.Update(&q, choice(1), false)
	waitForState(t, s, q.ID, model.SyncStateFailed)

	if unsaved := s.Flush(context.Background()); unsaved != 0 {
		t.Fatalf("unsaved after flush = %d, want 0", unsaved)
	}
	waitForState(t, s, q.ID, model.SyncStateSaved)
}

func TestAnswerStore_FrozenStoreRejectsEdits(t *testing.T) {
	w := newFakeWriter(0)
	s := newTestStore(w)
	q := choiceQuestion()

	s.Update(&q, choice(0), false)
	waitForState(t, s, q.ID, model.SyncStateSaved)
	s.Freeze()

	if s.Update(&q, choice(2), false) {
		t.Fatal("Update succeeded on a frozen store")
	}
	snap := s.Snapshot()[q.ID]
	if *snap.Value.Choice != 0 {
		t.Fatalf("frozen value changed: %+v", snap.Value)
	}
}

func TestAnswerStore_ShapeMismatchDiscarded(t *testing.T) {
	w := newFakeWriter(0)
	s := newTestStore(w)
	q := choiceQuestion()

	if s.Update(&q, text("not a choice"), false) {
		t.Fatal("Update accepted a mismatched value shape")
	}
	if _, ok := s.Snapshot()[q.ID]; ok {
		t.Fatal("mismatched value entered the cache")
	}
}

func TestAnswerStore_HydrateMarksSaved(t *testing.T) {
	w := newFakeWriter(0)
	s := newTestStore(w)
	q := choiceQuestion()

	s.Hydrate([]model.Answer{{
		SessionID:  uuid.New(),
		QuestionID: q.ID,
		Value:      choice(1),
		Unsure:     true,
	}})

	snap := s.Snapshot()[q.ID]
	if snap.SyncState != model.SyncStateSaved || !snap.Unsure || *snap.Value.Choice != 1 {
		t.Fatalf("hydrated snapshot = %+v", snap)
	}
	if w.callCount() != 0 {
		t.Errorf("hydration must not write back: %d calls", w.callCount())
	}
}
