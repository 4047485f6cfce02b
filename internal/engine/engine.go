// Package engine implements the per-attempt assessment core: a deadline-
// anchored countdown, a write-behind answer cache with bounded retry, an
// integrity-violation state machine, option randomization, and scoring —
// coordinated so state stays consistent across reloads and flaky networks.
//
// One Engine instance serves one active session. All operations serialize
// through the engine mutex; environment signals, answer edits, timer expiry
// and submission are just method calls, so the whole machine runs against
// fakes in tests.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// SessionStore is the durable persistence boundary for session state. Both
// operations must be safe under replay; FinalizeSession must no-op when the
// session is already finalized.
type SessionStore interface {
	UpdateViolationState(ctx context.Context, sessionID uuid.UUID, count int, status model.SessionStatus) error
	FinalizeSession(ctx context.Context, sessionID uuid.UUID, score float64) error
}

// ViolationSink receives audit records for counted violations. Best effort;
// failures must not affect the session.
type ViolationSink interface {
	RecordViolation(ctx context.Context, ev model.ViolationEvent)
}

// Config wires an Engine for one attempt.
type Config struct {
	Session   *model.Session
	Test      *model.Test
	Questions []model.Question
	// Answers hydrates the cache from durable storage on resume.
	Answers []model.Answer
	Store   SessionStore
	Writer  AnswerWriter
	// Sink is optional.
	Sink ViolationSink
	Log  zerolog.Logger
}

// Engine owns the lifecycle of one attempt. It is the sole writer of the
// session's status and violation count.
type Engine struct {
	mu sync.Mutex

	session   *model.Session
	test      *model.Test
	questions []model.Question
	byID      map[uuid.UUID]*model.Question

	answers *AnswerStore
	monitor *IntegrityMonitor
	timer   *Timer
	store   SessionStore
	sink    ViolationSink

	submitStarted bool

	events *broadcaster
	log    zerolog.Logger
}

// New builds an engine around an existing ACTIVE session. The caller is
// responsible for having obtained the session through the atomic
// create-or-resume primitive; the engine never decides creation itself.
func New(cfg Config) *Engine {
	log := cfg.Log.With().
		Str("component", "engine").
		Str("session_id", cfg.Session.ID.String()).
		Logger()

	// The engine mutates status, violation count and final score from its own
	// goroutines. It owns a private copy; the caller's row never races those
	// writes and reads fresh state through State().
	session := *cfg.Session

	e := &Engine{
		session:   &session,
		test:      cfg.Test,
		questions: cfg.Questions,
		byID:      make(map[uuid.UUID]*model.Question, len(cfg.Questions)),
		store:     cfg.Store,
		sink:      cfg.Sink,
		events:    newBroadcaster(),
		log:       log,
	}
	for i := range e.questions {
		q := &e.questions[i]
		e.byID[q.ID] = q
	}

	e.answers = NewAnswerStore(cfg.Session.ID, cfg.Writer, log)
	e.answers.Hydrate(cfg.Answers)
	e.answers.OnSync = func(qid uuid.UUID, state model.SyncState) {
		e.events.publish(Event{Type: EventSync, QuestionID: qid, SyncState: state})
	}

	e.monitor = NewIntegrityMonitor(cfg.Test.ViolationLimit, cfg.Session.ViolationCount)
	e.timer = NewTimer(cfg.Session.Deadline(), e.onTick, e.onExpire)
	return e
}

// Start begins the countdown. A session resumed past its deadline is
// submitted immediately with a timeout trigger.
func (e *Engine) Start() {
	if e.session.Status != model.SessionStatusActive {
		return
	}
	if e.timer.Remaining() == 0 {
		e.onExpire()
		return
	}
	e.timer.Start()
}

func (e *Engine) onTick(remaining int) {
	e.events.publish(Event{Type: EventTime, RemainingSeconds: remaining})
}

func (e *Engine) onExpire() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Submit(ctx, model.TriggerTimeout); err != nil {
		e.log.Error().Err(err).Msg("Timeout submission failed")
	}
}

// Subscribe attaches an event listener. The cancel function must be called
// when the listener goes away.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

// SessionID returns the attempt's session ID.
func (e *Engine) SessionID() uuid.UUID {
	return e.session.ID
}

// UpdateAnswer applies a participant edit. Returns false when the session is
// no longer Active or the value shape is invalid; the edit is discarded.
func (e *Engine) UpdateAnswer(questionID uuid.UUID, value model.AnswerValue, unsure bool) bool {
	e.mu.Lock()
	if e.session.Status != model.SessionStatusActive || e.submitStarted {
		e.mu.Unlock()
		return false
	}
	q := e.byID[questionID]
	e.mu.Unlock()

	if q == nil {
		e.log.Warn().Str("question_id", questionID.String()).Msg("Edit for unknown question discarded")
		return false
	}
	return e.answers.Update(q, value, unsure)
}

// Signal feeds one environment signal into the violation policy. Counted
// violations persist before the verdict is published.
func (e *Engine) Signal(ctx context.Context, kind model.ViolationKind) {
	e.mu.Lock()
	if e.session.Status != model.SessionStatusActive || e.submitStarted {
		e.mu.Unlock()
		return
	}

	outcome, count := e.monitor.Signal(kind)
	switch outcome {
	case OutcomeSuppressed:
		e.mu.Unlock()
		return

	case OutcomeWarned:
		e.session.ViolationCount = count
		e.mu.Unlock()

		if err := e.store.UpdateViolationState(ctx, e.session.ID, count, model.SessionStatusActive); err != nil {
			// Transient I/O is never fatal to the session; the count is
			// re-persisted with the next violation or at finalize.
			e.log.Error().Err(err).Int("count", count).Msg("Violation persist failed")
		}
		e.recordViolation(ctx, kind)
		e.log.Info().Str("kind", string(kind)).Int("count", count).Msg("Violation counted")
		e.events.publish(Event{Type: EventWarning, ViolationCount: count, ViolationKind: kind})

	case OutcomeDisqualified:
		e.session.ViolationCount = count
		e.session.Status = model.SessionStatusDisqualified
		e.mu.Unlock()

		e.timer.Stop()
		e.answers.Freeze()

		if err := e.store.UpdateViolationState(ctx, e.session.ID, count, model.SessionStatusDisqualified); err != nil {
			e.log.Error().Err(err).Msg("Disqualification persist failed")
		}
		e.recordViolation(ctx, kind)
		e.log.Warn().Str("kind", string(kind)).Int("count", count).Msg("Session disqualified")
		e.events.publish(Event{Type: EventDisqualified, ViolationCount: count, ViolationKind: kind})
	}
}

// AcknowledgeWarning dismisses the blocking warning and re-arms counting.
func (e *Engine) AcknowledgeWarning() {
	e.mu.Lock()
	e.monitor.Acknowledge()
	e.mu.Unlock()
}

// Submit finalizes the attempt: flushes pending answer writes, scores the
// flushed set, and calls the one-shot durable finalize. The local one-shot
// guard makes a race between manual submit and timeout a no-op on the second
// call. Returns nil when the call was a duplicate.
func (e *Engine) Submit(ctx context.Context, trigger model.SubmitTrigger) error {
	e.mu.Lock()
	if e.submitStarted || e.session.Status != model.SessionStatusActive {
		e.mu.Unlock()
		return nil
	}
	e.submitStarted = true
	e.mu.Unlock()

	e.timer.Stop()

	unsaved := e.answers.Flush(ctx)
	if unsaved > 0 {
		e.log.Warn().Int("unsaved", unsaved).Msg("Answers still unsaved after flush")
	}
	e.answers.Freeze()

	score := Score(e.questions, e.answers.Values())

	err := e.store.FinalizeSession(ctx, e.session.ID, score)
	if err != nil {
		// The durable row is still ACTIVE; the expiry reaper finalizes it
		// from durable answers once the deadline passes.
		e.log.Error().Err(err).Msg("Finalize failed")
	}

	e.mu.Lock()
	e.session.Status = model.SessionStatusSubmitted
	e.session.FinalScore = &score
	e.monitor.Shutdown()
	e.mu.Unlock()

	e.log.Info().
		Float64("score", score).
		Str("trigger", string(trigger)).
		Msg("Session submitted")
	e.events.publish(Event{Type: EventSubmitted, Score: score, Trigger: trigger})
	return err
}

// Close releases the timer and listeners without touching session state.
// Used when the process shuts down while the attempt stays ACTIVE durably.
func (e *Engine) Close() {
	e.timer.Stop()
	e.answers.Wait()
}

// State is the caller-visible snapshot exposed to the UI boundary.
type State struct {
	SessionID        uuid.UUID                    `json:"session_id"`
	Status           model.SessionStatus          `json:"status"`
	RemainingSeconds int                          `json:"remaining_seconds"`
	ViolationCount   int                          `json:"violation_count"`
	WarningOpen      bool                         `json:"warning_open"`
	FinalScore       *float64                     `json:"final_score,omitempty"`
	Answers          map[uuid.UUID]AnswerSnapshot `json:"answers"`
}

// State returns a consistent snapshot for reload recovery and polling.
func (e *Engine) State() State {
	e.mu.Lock()
	st := State{
		SessionID:      e.session.ID,
		Status:         e.session.Status,
		ViolationCount: e.monitor.Count(),
		WarningOpen:    e.monitor.WarningOpen(),
		FinalScore:     e.session.FinalScore,
	}
	if st.Status == model.SessionStatusActive {
		st.RemainingSeconds = e.timer.Remaining()
	}
	e.mu.Unlock()

	st.Answers = e.answers.Snapshot()
	return st
}

func (e *Engine) recordViolation(ctx context.Context, kind model.ViolationKind) {
	if e.sink == nil {
		return
	}
	e.sink.RecordViolation(ctx, model.ViolationEvent{
		SessionID:  e.session.ID,
		Kind:       kind,
		RecordedAt: time.Now(),
	})
}
