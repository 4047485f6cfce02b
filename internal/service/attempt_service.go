package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/proctorstem-backend/internal/config"
	"github.com/stemsi/proctorstem-backend/internal/engine"
	"github.com/stemsi/proctorstem-backend/internal/model"
	"github.com/stemsi/proctorstem-backend/internal/repository"
)

// Common attempt errors.
var (
	ErrTestNotFound    = errors.New("test not found")
	ErrNoQuestions     = errors.New("test has no questions")
	ErrSessionNotFound = errors.New("session not found")
)

const (
	// testPayloadTTL bounds staleness of the cached test + question set.
	// Tests are immutable while attempts run, so a short window suffices.
	testPayloadTTL = 5 * time.Minute
	// terminalStateTTL caches finished-attempt snapshots, which never change.
	terminalStateTTL = time.Hour
)

// AttemptService owns the lifecycle of assessment attempts: the atomic
// create-or-resume handshake, the registry of live per-session engines, and
// the read paths the UI recovers from after a reload.
type AttemptService struct {
	cfg          *config.Config
	testRepo     *repository.TestRepository
	questionRepo *repository.QuestionRepository
	sessionRepo  *repository.SessionRepository
	answerRepo   *repository.AnswerRepository
	rdb          *redis.Client
	log          zerolog.Logger

	mu      sync.Mutex
	engines map[uuid.UUID]*engine.Engine
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	testRepo *repository.TestRepository,
	questionRepo *repository.QuestionRepository,
	sessionRepo *repository.SessionRepository,
	answerRepo *repository.AnswerRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:          cfg,
		testRepo:     testRepo,
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		answerRepo:   answerRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "attempt_service").Logger(),
		engines:      make(map[uuid.UUID]*engine.Engine),
	}
}

// Start creates or resumes the participant's attempt on a test. The call is
// idempotent: repeats, reloads and concurrent requests all converge on the
// same session row. A session already finished comes back unchanged with its
// terminal status; no engine is spawned for it.
func (s *AttemptService) Start(ctx context.Context, testID uuid.UUID, userID int) (*model.Session, error) {
	test, questions, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	session, created, err := s.sessionRepo.CreateOrResume(ctx, userID, testID, test.DurationSeconds())
	if err != nil {
		return nil, fmt.Errorf("create or resume session: %w", err)
	}

	if created && test.RandomizeOptions {
		if err := s.assignOptionOrder(ctx, session, questions); err != nil {
			// The stored identity fallback keeps the paper renderable.
			s.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Option order persist failed")
		}
	}

	if session.Status.Terminal() {
		return session, nil
	}

	eng, err := s.ensureEngine(ctx, session, test, questions)
	if err != nil {
		return nil, err
	}

	// The engine owns its own session copy from here on; fold back any state
	// it already advanced (a resume past the deadline submits inside Start).
	st := eng.State()
	session.Status = st.Status
	session.ViolationCount = st.ViolationCount
	session.FinalScore = st.FinalScore
	if session.Status.Terminal() {
		return session, nil
	}

	key := config.CacheKey.ParticipantActiveSessionKey(userID)
	if err := s.rdb.Set(ctx, key, session.ID.String(), time.Duration(session.DurationSeconds)*time.Second).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Active session cache write failed")
	}

	return session, nil
}

// GetPaper returns the test payload for an attempt: questions without answer
// keys, the session's persisted option permutation, and the lockdown flags.
func (s *AttemptService) GetPaper(ctx context.Context, testID uuid.UUID, userID int) (*model.TestPaper, error) {
	test, questions, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByUserAndTest(ctx, userID, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	paper := &model.TestPaper{
		TestID:            test.ID,
		Title:             test.Title,
		DurationMinutes:   test.DurationMinutes,
		LockdownClipboard: test.LockdownClipboard,
		RequireFullscreen: test.RequireFullscreen,
		Questions:         make([]model.QuestionForParticipant, 0, len(questions)),
	}
	for i := range questions {
		paper.Questions = append(paper.Questions, questions[i].ForParticipant())
	}

	paper.OptionOrder = s.optionOrderFor(ctx, session, questions)

	return paper, nil
}

// optionOrderFor resolves the session's option permutation: the Redis mirror
// first, the durable row on a miss (healing the mirror), and the identity
// permutation when nothing is stored, so the paper shape stays uniform when
// randomization is off.
func (s *AttemptService) optionOrderFor(ctx context.Context, session *model.Session, questions []model.Question) engine.OptionOrder {
	key := config.CacheKey.SessionOptionOrderKey(session.ID.String())
	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var order engine.OptionOrder
		if err := json.Unmarshal(raw, &order); err == nil && len(order) > 0 {
			return order
		}
	}

	if len(session.OptionOrder) > 0 {
		var order engine.OptionOrder
		if err := json.Unmarshal(session.OptionOrder, &order); err == nil && len(order) > 0 {
			if session.Status == model.SessionStatusActive {
				ttl := time.Duration(session.DurationSeconds) * time.Second
				if err := s.rdb.Set(ctx, key, []byte(session.OptionOrder), ttl).Err(); err != nil {
					s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Option order mirror heal failed")
				}
			}
			return order
		}
		s.log.Error().Str("session_id", session.ID.String()).Msg("Stored option order unreadable, rendering authored order")
	}

	return engine.IdentityOrder(questions)
}

// GetState returns the attempt snapshot the UI rebuilds from after a reload.
// A live engine answers from memory; otherwise the durable row and answers
// reconstruct the same view.
func (s *AttemptService) GetState(ctx context.Context, testID uuid.UUID, userID int) (*engine.State, error) {
	session, err := s.sessionRepo.GetByUserAndTest(ctx, userID, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.mu.Lock()
	eng := s.engines[session.ID]
	s.mu.Unlock()

	if eng != nil {
		st := eng.State()
		return &st, nil
	}

	// Terminal snapshots never change; serve and fill the state mirror.
	stateKey := config.CacheKey.SessionStateKey(session.ID.String())
	if session.Status.Terminal() {
		if raw, err := s.rdb.Get(ctx, stateKey).Bytes(); err == nil {
			var st engine.State
			if err := json.Unmarshal(raw, &st); err == nil {
				return &st, nil
			}
		}
	}

	answers, err := s.snapshotAnswers(ctx, session)
	if err != nil {
		return nil, err
	}

	st := &engine.State{
		SessionID:      session.ID,
		Status:         session.Status,
		ViolationCount: session.ViolationCount,
		FinalScore:     session.FinalScore,
		Answers:        answers,
	}
	if session.Status == model.SessionStatusActive {
		st.RemainingSeconds = session.RemainingSeconds(time.Now())
	}

	if session.Status.Terminal() {
		if raw, err := json.Marshal(st); err == nil {
			if err := s.rdb.Set(ctx, stateKey, raw, terminalStateTTL).Err(); err != nil {
				s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("State cache write failed")
			}
		}
	}
	return st, nil
}

// snapshotAnswers hydrates the answer map for a session with no live engine:
// the Redis mirror hash first, the durable rows on a miss. An active session
// gets its mirror healed for the next reload; terminal mirrors stay deleted.
func (s *AttemptService) snapshotAnswers(ctx context.Context, session *model.Session) (map[uuid.UUID]engine.AnswerSnapshot, error) {
	key := config.CacheKey.SessionAnswersKey(session.ID.String())
	if fields, err := s.rdb.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
		snaps := make(map[uuid.UUID]engine.AnswerSnapshot, len(fields))
		ok := true
		for field, raw := range fields {
			qid, err := uuid.Parse(field)
			if err != nil {
				ok = false
				break
			}
			var m mirroredAnswer
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				ok = false
				break
			}
			snaps[qid] = engine.AnswerSnapshot{
				Value:     m.Value,
				Unsure:    m.Unsure,
				SyncState: model.SyncStateSaved,
			}
		}
		if ok {
			return snaps, nil
		}
	}

	answers, err := s.answerRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	snaps := make(map[uuid.UUID]engine.AnswerSnapshot, len(answers))
	heal := make(map[string]interface{}, len(answers))
	for _, a := range answers {
		snaps[a.QuestionID] = engine.AnswerSnapshot{
			Value:     a.Value,
			Unsure:    a.Unsure,
			SyncState: model.SyncStateSaved,
		}
		if raw, err := json.Marshal(mirroredAnswer{Value: a.Value, Unsure: a.Unsure}); err == nil {
			heal[a.QuestionID.String()] = raw
		}
	}
	if session.Status == model.SessionStatusActive && len(heal) > 0 {
		if err := s.rdb.HSet(ctx, key, heal).Err(); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Answer mirror heal failed")
		}
	}
	return snaps, nil
}

// Attach returns the live engine for the participant's attempt on a test,
// spawning one when the durable session is still ACTIVE but no engine exists
// (process restart, first connect after Start on another node). Returns the
// session alongside so callers can report terminal states.
func (s *AttemptService) Attach(ctx context.Context, testID uuid.UUID, userID int) (*engine.Engine, *model.Session, error) {
	session, err := s.sessionRepo.GetByUserAndTest(ctx, userID, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}

	if session.Status.Terminal() {
		return nil, session, nil
	}

	test, questions, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, nil, err
	}

	eng, err := s.ensureEngine(ctx, session, test, questions)
	if err != nil {
		return nil, nil, err
	}
	return eng, session, nil
}

// HasLiveEngine reports whether an engine currently owns the session in this
// process. The expiry reaper skips such sessions.
func (s *AttemptService) HasLiveEngine(sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.engines[sessionID]
	return ok
}

// Close shuts down all live engines without touching durable state.
func (s *AttemptService) Close() {
	s.mu.Lock()
	engines := make([]*engine.Engine, 0, len(s.engines))
	for _, eng := range s.engines {
		engines = append(engines, eng)
	}
	s.engines = make(map[uuid.UUID]*engine.Engine)
	s.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
}

// cachedTestPayload is the Redis shape of a test and its question set.
// Server-side only; answer keys never leave this process.
type cachedTestPayload struct {
	Test      *model.Test      `json:"test"`
	Questions []model.Question `json:"questions"`
}

// loadTest fetches a test and its questions, Redis first with a database
// fallback that heals the cache. Every returned test carries a usable
// violation limit.
func (s *AttemptService) loadTest(ctx context.Context, testID uuid.UUID) (*model.Test, []model.Question, error) {
	key := config.CacheKey.TestPayloadKey(testID.String())
	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached cachedTestPayload
		if err := json.Unmarshal(raw, &cached); err == nil && cached.Test != nil && len(cached.Questions) > 0 {
			cached.Test.ViolationLimit = cached.Test.EffectiveViolationLimit(s.cfg.DefaultViolationLimit)
			return cached.Test, cached.Questions, nil
		}
	}

	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrTestNotFound
		}
		return nil, nil, fmt.Errorf("get test: %w", err)
	}

	questions, err := s.questionRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	if raw, err := json.Marshal(cachedTestPayload{Test: test, Questions: questions}); err == nil {
		if err := s.rdb.Set(ctx, key, raw, testPayloadTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Test payload cache write failed")
		}
	}

	test.ViolationLimit = test.EffectiveViolationLimit(s.cfg.DefaultViolationLimit)
	return test, questions, nil
}

// assignOptionOrder draws and persists the session's option permutation.
// Runs once, at creation; reloads render from the stored order.
func (s *AttemptService) assignOptionOrder(ctx context.Context, session *model.Session, questions []model.Question) error {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	order := engine.ShuffleOptions(questions, rnd)
	if len(order) == 0 {
		return nil
	}

	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal option order: %w", err)
	}
	if err := s.sessionRepo.SaveOptionOrder(ctx, session.ID, raw); err != nil {
		return fmt.Errorf("save option order: %w", err)
	}
	session.OptionOrder = raw

	key := config.CacheKey.SessionOptionOrderKey(session.ID.String())
	if err := s.rdb.Set(ctx, key, raw, time.Duration(session.DurationSeconds)*time.Second).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Option order cache write failed")
	}
	return nil
}

// ensureEngine returns the registered engine for the session, building and
// starting one when absent. Single-flight via the registry lock.
func (s *AttemptService) ensureEngine(ctx context.Context, session *model.Session, test *model.Test, questions []model.Question) (*engine.Engine, error) {
	s.mu.Lock()
	if eng, ok := s.engines[session.ID]; ok {
		s.mu.Unlock()
		return eng, nil
	}
	s.mu.Unlock()

	// Hydration happens outside the lock; the second registration check below
	// keeps a concurrent builder from double-registering.
	answers, err := s.answerRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("hydrate answers: %w", err)
	}

	eng := engine.New(engine.Config{
		Session:   session,
		Test:      test,
		Questions: questions,
		Answers:   answers,
		Store:     s.sessionRepo,
		Writer:    &mirrorAnswerWriter{repo: s.answerRepo, rdb: s.rdb, log: s.log},
		Sink:      &queueViolationSink{rdb: s.rdb, log: s.log},
		Log:       s.log,
	})

	s.mu.Lock()
	if existing, ok := s.engines[session.ID]; ok {
		s.mu.Unlock()
		eng.Close()
		return existing, nil
	}
	s.engines[session.ID] = eng
	s.mu.Unlock()

	// Subscribe before Start: a session resumed past its deadline submits
	// inside Start, and the terminal event must not be missed.
	events, cancel := eng.Subscribe()
	go s.reapOnTerminal(session.ID, session.UserID, eng, events, cancel)
	eng.Start()
	return eng, nil
}

// reapOnTerminal removes the engine from the registry once the attempt
// reaches a terminal state, and drops the session's Redis mirrors.
func (s *AttemptService) reapOnTerminal(sessionID uuid.UUID, userID int, eng *engine.Engine, events <-chan engine.Event, cancel func()) {
	defer cancel()

	for ev := range events {
		if ev.Type != engine.EventSubmitted && ev.Type != engine.EventDisqualified {
			continue
		}

		s.mu.Lock()
		delete(s.engines, sessionID)
		s.mu.Unlock()

		ctx, cancelCtx := context.WithTimeout(context.Background(), 10*time.Second)
		s.rdb.Del(ctx,
			config.CacheKey.SessionAnswersKey(sessionID.String()),
			config.CacheKey.SessionOptionOrderKey(sessionID.String()),
			config.CacheKey.ParticipantActiveSessionKey(userID),
		)
		cancelCtx()

		eng.Close()
		return
	}
}
