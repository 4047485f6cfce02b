package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/proctorstem-backend/internal/engine"
	"github.com/stemsi/proctorstem-backend/internal/middleware"
	"github.com/stemsi/proctorstem-backend/internal/model"
	"github.com/stemsi/proctorstem-backend/internal/response"
	"github.com/stemsi/proctorstem-backend/internal/service"
	ws "github.com/stemsi/proctorstem-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// syncConn serializes writes to one WebSocket connection: engine events and
// read-loop replies come from different goroutines.
type syncConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *syncConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteTyped(c.conn, v)
}

// WSHandler streams attempt events and accepts attempt actions over WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/participant/tests/:test_id/stream
// Upgrades to WebSocket for answer sync, proctoring signals, the countdown
// and submission.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	eng, session, err := h.attemptService.Attach(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		} else {
			h.log.Error().Err(err).Msg("Attach failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer rawConn.Close()
	conn := &syncConn{conn: rawConn}

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", session.ID.String()).
		Logger()

	// A finished attempt gets its terminal event and nothing else.
	if eng == nil {
		h.writeTerminal(conn, session)
		return
	}

	events, cancel := eng.Subscribe()
	defer cancel()
	go h.forwardEvents(conn, events, wsLog)

	wsLog.Info().Msg("Participant connected")

	for {
		data, err := ws.ReadRaw(rawConn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "malformed message"})
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c, conn, eng, data, wsLog)
		case ws.ActionViolation:
			h.handleViolation(c, conn, eng, data, wsLog)
		case ws.ActionAckWarning:
			eng.AcknowledgeWarning()
		case ws.ActionSubmit:
			if err := eng.Submit(c.Request.Context(), model.TriggerUser); err != nil {
				wsLog.Error().Err(err).Msg("Submit finalize error")
			}
		case ws.ActionPing:
			conn.write(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(env.Action)})
		}
	}
}

// handleAnswer applies one local edit to the engine's answer cache. The ack
// is implicit: the saved/sync_failed event follows once the write settles.
func (h *WSHandler) handleAnswer(c *gin.Context, conn *syncConn, eng *engine.Engine, data []byte, wsLog zerolog.Logger) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "malformed answer payload"})
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "invalid question_id format"})
		return
	}

	var value model.AnswerValue
	if err := json.Unmarshal(req.Value, &value); err != nil {
		conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "invalid answer value"})
		return
	}

	if !eng.UpdateAnswer(questionID, value, req.Unsure) {
		conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "answer rejected"})
	}
}

func (h *WSHandler) handleViolation(c *gin.Context, conn *syncConn, eng *engine.Engine, data []byte, wsLog zerolog.Logger) {
	var req ws.ViolationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "malformed violation payload"})
		return
	}

	kind := model.ViolationKind(req.Kind)
	if !kind.Valid() {
		conn.write(ws.ErrorResponse{Event: ws.EventError, Error: "unknown violation kind"})
		return
	}

	eng.Signal(c.Request.Context(), kind)
}

// forwardEvents translates engine events into wire responses until the
// subscription closes.
func (h *WSHandler) forwardEvents(conn *syncConn, events <-chan engine.Event, wsLog zerolog.Logger) {
	for ev := range events {
		var err error
		switch ev.Type {
		case engine.EventTime:
			err = conn.write(ws.TimeResponse{Event: ws.EventTime, Remaining: ev.RemainingSeconds})
		case engine.EventSync:
			evt := ws.EventSaved
			if ev.SyncState == model.SyncStateFailed {
				evt = ws.EventSyncFailed
			}
			err = conn.write(ws.SyncResponse{Event: evt, QuestionID: ev.QuestionID.String()})
		case engine.EventWarning:
			err = conn.write(ws.WarningResponse{
				Event: ws.EventWarning,
				Kind:  string(ev.ViolationKind),
				Count: ev.ViolationCount,
			})
		case engine.EventDisqualified:
			err = conn.write(ws.DisqualifiedResponse{Event: ws.EventDisqualified, Count: ev.ViolationCount})
		case engine.EventSubmitted:
			err = conn.write(ws.SubmittedResponse{
				Event:   ws.EventSubmitted,
				Trigger: string(ev.Trigger),
				Score:   ev.Score,
			})
		}
		if err != nil {
			wsLog.Debug().Err(err).Msg("Event forward stopped")
			return
		}
	}
}

// writeTerminal replays the terminal event for an attempt that finished
// before this connection.
func (h *WSHandler) writeTerminal(conn *syncConn, session *model.Session) {
	switch session.Status {
	case model.SessionStatusDisqualified:
		conn.write(ws.DisqualifiedResponse{Event: ws.EventDisqualified, Count: session.ViolationCount})
	case model.SessionStatusSubmitted:
		var score float64
		if session.FinalScore != nil {
			score = *session.FinalScore
		}
		conn.write(ws.SubmittedResponse{Event: ws.EventSubmitted, Trigger: string(model.TriggerUser), Score: score})
	}
}
