package engine

import (
	"testing"

	"github.com/stemsi/proctorstem-backend/internal/model"
)

func TestIntegrityMonitor_BelowLimitStaysWarned(t *testing.T) {
	m := NewIntegrityMonitor(3, 0)

	// N < limit signals with acknowledgment between each: count == N, no
	// disqualification.
	for i := 1; i <= 2; i++ {
		outcome, count := m.Signal(model.ViolationFocusLoss)
		if outcome != OutcomeWarned {
			t.Fatalf("signal %d outcome = %v, want Warned", i, outcome)
		}
		if count != i {
			t.Fatalf("count after signal %d = %d, want %d", i, count, i)
		}
		m.Acknowledge()
	}
}

func TestIntegrityMonitor_ThirdViolationDisqualifies(t *testing.T) {
	m := NewIntegrityMonitor(3, 0)

	m.Signal(model.ViolationFocusLoss)
	m.Acknowledge()
	m.Signal(model.ViolationFullscreenExit)
	m.Acknowledge()

	outcome, count := m.Signal(model.ViolationVisibilityLoss)
	if outcome != OutcomeDisqualified || count != 3 {
		t.Fatalf("outcome = %v count = %d, want Disqualified/3", outcome, count)
	}

	// Nothing counts after disqualification.
	outcome, count = m.Signal(model.ViolationFocusLoss)
	if outcome != OutcomeSuppressed || count != 3 {
		t.Fatalf("post-terminal signal outcome = %v count = %d", outcome, count)
	}
}

func TestIntegrityMonitor_OpenWarningSuppressesCascade(t *testing.T) {
	m := NewIntegrityMonitor(3, 0)

	// Switching tabs fires blur and visibilitychange nearly simultaneously;
	// only the first may count until the warning is acknowledged.
	if outcome, _ := m.Signal(model.ViolationFocusLoss); outcome != OutcomeWarned {
		t.Fatal("first signal should warn")
	}
	if outcome, count := m.Signal(model.ViolationVisibilityLoss); outcome != OutcomeSuppressed || count != 1 {
		t.Fatalf("cascading signal counted: outcome=%v count=%d", outcome, count)
	}

	m.Acknowledge()
	if outcome, count := m.Signal(model.ViolationVisibilityLoss); outcome != OutcomeWarned || count != 2 {
		t.Fatalf("post-ack signal outcome=%v count=%d, want Warned/2", outcome, count)
	}
}

func TestIntegrityMonitor_ResumesFromPersistedCount(t *testing.T) {
	m := NewIntegrityMonitor(3, 2)

	outcome, count := m.Signal(model.ViolationFocusLoss)
	if outcome != OutcomeDisqualified || count != 3 {
		t.Fatalf("resumed monitor outcome = %v count = %d, want Disqualified/3", outcome, count)
	}
}

func TestIntegrityMonitor_UnknownKindSuppressed(t *testing.T) {
	m := NewIntegrityMonitor(3, 0)
	if outcome, count := m.Signal(model.ViolationKind("MOUSE_MOVED")); outcome != OutcomeSuppressed || count != 0 {
		t.Fatalf("unknown kind counted: %v/%d", outcome, count)
	}
}

func TestIntegrityMonitor_ShutdownStopsCounting(t *testing.T) {
	m := NewIntegrityMonitor(5, 0)
	m.Shutdown()
	if outcome, count := m.Signal(model.ViolationFocusLoss); outcome != OutcomeSuppressed || count != 0 {
		t.Fatalf("shutdown monitor counted: %v/%d", outcome, count)
	}
}
