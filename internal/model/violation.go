package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind enumerates integrity-policy breaches detected in the client
// environment. All enforcement here is advisory — the client cannot be
// cryptographically trusted — but the count and its consequences are real.
type ViolationKind string

const (
	ViolationFocusLoss      ViolationKind = "FOCUS_LOSS"
	ViolationVisibilityLoss ViolationKind = "VISIBILITY_LOSS"
	ViolationFullscreenExit ViolationKind = "FULLSCREEN_EXIT"
)

// Valid reports whether the kind is one of the known signal classes.
func (k ViolationKind) Valid() bool {
	switch k {
	case ViolationFocusLoss, ViolationVisibilityLoss, ViolationFullscreenExit:
		return true
	}
	return false
}

// ViolationEvent is an audit record of a single counted violation.
// The session row aggregates these into violation_count; the event log is
// retained separately for post-exam review.
type ViolationEvent struct {
	SessionID  uuid.UUID     `json:"session_id"`
	Kind       ViolationKind `json:"kind"`
	RecordedAt time.Time     `json:"recorded_at"`
}
