package engine

import (
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// SignalOutcome is the integrity monitor's verdict on one environment signal.
type SignalOutcome int

const (
	// OutcomeSuppressed: signal ignored — warning unacknowledged, monitor
	// shut down, or unknown kind.
	OutcomeSuppressed SignalOutcome = iota
	// OutcomeWarned: violation counted, threshold not yet reached. The caller
	// must surface a blocking warning the participant acknowledges.
	OutcomeWarned
	// OutcomeDisqualified: violation counted and the threshold reached.
	OutcomeDisqualified
)

// IntegrityMonitor is the violation-policy state machine. It consumes
// environment signals (focus loss, visibility loss, fullscreen exit) and
// decides counting and disqualification. It performs no I/O; the engine
// persists counts and serializes calls under its own lock.
//
// While a warning is open, further signals are suppressed from counting.
// Browser focus and visibility events routinely fire together for one user
// action (switching tabs); the open warning coalesces them into a single
// violation instead of two.
type IntegrityMonitor struct {
	limit       int
	count       int
	warningOpen bool
	shutdown    bool
}

// NewIntegrityMonitor creates a monitor with the configured violation limit,
// resuming from a previously persisted count.
func NewIntegrityMonitor(limit, initialCount int) *IntegrityMonitor {
	return &IntegrityMonitor{limit: limit, count: initialCount}
}

// Signal processes one environment signal and returns the verdict with the
// updated count. A counted violation must be persisted by the caller before
// the participant observes the new state.
func (m *IntegrityMonitor) Signal(kind model.ViolationKind) (SignalOutcome, int) {
	if m.shutdown || m.warningOpen || !kind.Valid() {
		return OutcomeSuppressed, m.count
	}

	m.count++
	if m.count >= m.limit {
		m.shutdown = true
		return OutcomeDisqualified, m.count
	}

	m.warningOpen = true
	return OutcomeWarned, m.count
}

// Acknowledge dismisses the open warning and re-arms counting. The client
// re-enters the locked environment (re-requests fullscreen) after this.
func (m *IntegrityMonitor) Acknowledge() {
	m.warningOpen = false
}

// WarningOpen reports whether a warning awaits acknowledgment.
func (m *IntegrityMonitor) WarningOpen() bool {
	return m.warningOpen
}

// Count returns the current violation count.
func (m *IntegrityMonitor) Count() int {
	return m.count
}

// Shutdown permanently stops counting. Called when the session reaches a
// terminal state so no violation is ever recorded against an ended session.
func (m *IntegrityMonitor) Shutdown() {
	m.shutdown = true
}
