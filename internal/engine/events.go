package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/proctorstem-backend/internal/model"
)

// EventType enumerates engine-to-caller notifications.
type EventType string

const (
	// EventTime carries the recomputed remaining seconds, once per tick.
	EventTime EventType = "time"
	// EventWarning: a violation was counted below the limit; the client must
	// show a blocking warning and acknowledge it.
	EventWarning EventType = "warning"
	// EventDisqualified: terminal; the violation limit was reached.
	EventDisqualified EventType = "disqualified"
	// EventSubmitted: terminal; the attempt was finalized with a score.
	EventSubmitted EventType = "submitted"
	// EventSync: an answer's sync state settled (Saved or Failed).
	EventSync EventType = "sync"
)

// Event is a notification pushed to engine subscribers.
type Event struct {
	Type             EventType           `json:"type"`
	RemainingSeconds int                 `json:"remaining_seconds,omitempty"`
	ViolationCount   int                 `json:"violation_count,omitempty"`
	ViolationKind    model.ViolationKind `json:"violation_kind,omitempty"`
	QuestionID       uuid.UUID           `json:"question_id,omitempty"`
	SyncState        model.SyncState     `json:"sync_state,omitempty"`
	Score            float64             `json:"score,omitempty"`
	Trigger          model.SubmitTrigger `json:"trigger,omitempty"`
}

// broadcaster fans events out to subscribers. Sends never block: a slow
// subscriber (a stalled WebSocket) drops events instead of stalling the
// engine, and the client recovers state from the state endpoint.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

// subscribe returns a receive channel and a cancel function. Cancel is
// idempotent and must be called when the subscriber goes away.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Close under the lock so publish can never send on a closed
			// channel.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
