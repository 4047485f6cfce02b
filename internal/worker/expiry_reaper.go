package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/proctorstem-backend/internal/engine"
	"github.com/stemsi/proctorstem-backend/internal/model"
	"github.com/stemsi/proctorstem-backend/internal/repository"
)

const reaperBatchSize = 100

// EngineRegistry reports whether a live engine owns a session in this
// process. Such sessions submit themselves; the reaper leaves them alone.
type EngineRegistry interface {
	HasLiveEngine(sessionID uuid.UUID) bool
}

// ExpiryReaper finalizes ACTIVE sessions whose deadline passed without a
// timeout submission — the engine crashed, the process restarted, or the
// participant never reconnected. Scoring runs from durable answers, so the
// result matches what a live engine would have produced for the same rows.
type ExpiryReaper struct {
	sessionRepo  *repository.SessionRepository
	answerRepo   *repository.AnswerRepository
	questionRepo *repository.QuestionRepository
	registry     EngineRegistry
	interval     time.Duration
	grace        time.Duration
	log          zerolog.Logger
}

func NewExpiryReaper(
	sessionRepo *repository.SessionRepository,
	answerRepo *repository.AnswerRepository,
	questionRepo *repository.QuestionRepository,
	registry EngineRegistry,
	interval, grace time.Duration,
	log zerolog.Logger,
) *ExpiryReaper {
	return &ExpiryReaper{
		sessionRepo:  sessionRepo,
		answerRepo:   answerRepo,
		questionRepo: questionRepo,
		registry:     registry,
		interval:     interval,
		grace:        grace,
		log:          log.With().Str("component", "expiry_reaper").Logger(),
	}
}

func (w *ExpiryReaper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("ExpiryReaper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryReaper stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryReaper) sweep(ctx context.Context) {
	sessions, err := w.sessionRepo.ListExpiredActive(ctx, w.grace, reaperBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("List expired sessions failed")
		return
	}

	for i := range sessions {
		session := &sessions[i]
		if w.registry != nil && w.registry.HasLiveEngine(session.ID) {
			continue
		}
		if err := w.finalize(ctx, session); err != nil {
			w.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Reap failed")
		}
	}
}

// finalize scores the session from its durable answers and closes the row.
// FinalizeSession is conditional on ACTIVE, so racing a late engine submit is
// harmless — first writer wins.
func (w *ExpiryReaper) finalize(ctx context.Context, session *model.Session) error {
	questions, err := w.questionRepo.ListByTest(ctx, session.TestID)
	if err != nil {
		return err
	}

	answers, err := w.answerRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return err
	}

	values := make(map[uuid.UUID]model.AnswerValue, len(answers))
	for _, a := range answers {
		values[a.QuestionID] = a.Value
	}

	score := engine.Score(questions, values)
	if err := w.sessionRepo.FinalizeSession(ctx, session.ID, score); err != nil {
		return err
	}

	w.log.Info().
		Str("session_id", session.ID.String()).
		Float64("score", score).
		Msg("Expired session finalized")
	return nil
}
