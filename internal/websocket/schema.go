package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionViolation  Action = "violation"
	ActionAckWarning Action = "ack_warning"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client on every local answer edit.
// Value carries the answer in the shape of the question type; indices
// always refer to the original (unshuffled) option order.
type AnswerRequest struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"value"`
	Unsure     bool            `json:"unsure"`
}

// ViolationRequest is sent by the client when the environment reports a
// proctoring signal (focus loss, visibility loss, fullscreen exit).
type ViolationRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"`
}

// AckWarningRequest dismisses the currently open violation warning.
type AckWarningRequest struct {
	Action Action `json:"action"`
}

// SubmitRequest finishes the attempt and triggers grading.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventSaved        Event = "saved"
	EventSyncFailed   Event = "sync_failed"
	EventWarning      Event = "warning"
	EventDisqualified Event = "disqualified"
	EventSubmitted    Event = "submitted"
	EventTime         Event = "time"
	EventPong         Event = "pong"
)

// SyncResponse reports the durable sync state of a single answer.
type SyncResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

// WarningResponse notifies the client that a violation was recorded and a
// blocking warning should be shown until acknowledged.
type WarningResponse struct {
	Event Event  `json:"event"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// DisqualifiedResponse notifies the client that the attempt was terminated
// for exceeding the violation limit.
type DisqualifiedResponse struct {
	Event Event `json:"event"`
	Count int   `json:"count"`
}

// SubmittedResponse confirms the attempt was finalized.
type SubmittedResponse struct {
	Event   Event   `json:"event"`
	Trigger string  `json:"trigger"`
	Score   float64 `json:"score"`
}

// TimeResponse carries the authoritative remaining time, in whole seconds.
type TimeResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
