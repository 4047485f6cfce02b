package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/proctorstem-backend/internal/config"
	"github.com/stemsi/proctorstem-backend/internal/model"
	"github.com/stemsi/proctorstem-backend/internal/repository"
)

// mirrorAnswerWriter persists an answer to PostgreSQL and mirrors the durable
// value into a per-session Redis hash. The mirror is best effort; only the
// database write decides the sync outcome.
type mirrorAnswerWriter struct {
	repo *repository.AnswerRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

type mirroredAnswer struct {
	Value  model.AnswerValue `json:"value"`
	Unsure bool              `json:"unsure"`
}

func (w *mirrorAnswerWriter) UpsertAnswer(ctx context.Context, sessionID, questionID uuid.UUID, value model.AnswerValue, unsure bool) error {
	if err := w.repo.UpsertAnswer(ctx, sessionID, questionID, value, unsure); err != nil {
		return err
	}

	payload, err := json.Marshal(mirroredAnswer{Value: value, Unsure: unsure})
	if err == nil {
		key := config.CacheKey.SessionAnswersKey(sessionID.String())
		if err := w.rdb.HSet(ctx, key, questionID.String(), payload).Err(); err != nil {
			w.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Answer mirror write failed")
		}
	}
	return nil
}

// queueViolationSink enqueues violation audit records for the background
// persistence worker. Losing an audit record never affects the session.
type queueViolationSink struct {
	rdb *redis.Client
	log zerolog.Logger
}

func (s *queueViolationSink) RecordViolation(ctx context.Context, ev model.ViolationEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", ev.SessionID.String()).Msg("Violation enqueue failed")
	}
}
