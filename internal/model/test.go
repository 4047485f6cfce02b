package model

import (
	"time"

	"github.com/google/uuid"
)

// Test is the assessment definition a session runs against. Authoring is out
// of scope; the engine consumes tests read-only.
type Test struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	// ViolationLimit is the count at which a session is disqualified.
	ViolationLimit int `json:"violation_limit"`
	// RandomizeOptions enables per-session option shuffling.
	RandomizeOptions bool `json:"randomize_options"`
	// LockdownClipboard asks the client to disable copy/cut/paste and the
	// context menu. A UX deterrent only, not a security boundary.
	LockdownClipboard bool      `json:"lockdown_clipboard"`
	RequireFullscreen bool      `json:"require_fullscreen"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DurationSeconds converts the configured duration for deadline math.
func (t *Test) DurationSeconds() int {
	return t.DurationMinutes * 60
}

// EffectiveViolationLimit returns the configured limit, or the fallback when
// the test has none. A zero limit would otherwise disqualify on the first
// counted signal.
func (t *Test) EffectiveViolationLimit(fallback int) int {
	if t.ViolationLimit > 0 {
		return t.ViolationLimit
	}
	return fallback
}

// TestPaper is the payload sent to a participant: questions without answer
// keys, plus the lockdown policy flags the client is asked to enforce.
type TestPaper struct {
	TestID            uuid.UUID                `json:"test_id"`
	Title             string                   `json:"title"`
	DurationMinutes   int                      `json:"duration_minutes"`
	LockdownClipboard bool                     `json:"lockdown_clipboard"`
	RequireFullscreen bool                     `json:"require_fullscreen"`
	Questions         []QuestionForParticipant `json:"questions"`
	// OptionOrder maps question ID to a display-position -> original-index
	// permutation. Rendering uses it; recorded answers never do.
	OptionOrder map[uuid.UUID][]int `json:"option_order,omitempty"`
}
