package session

import (
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nihams/ueba/internal/model"
)

// Sessionizer splits each user's event stream into sessions using an
// inactivity-gap rule: a new session starts at a user's first event and
// whenever the gap to that user's previous event exceeds Gap.
type Sessionizer struct {
	Gap time.Duration

	// NewSessionID produces session identifiers. Defaults to random
	// UUIDs so identifiers are never reused across runs.
	NewSessionID func() string
}

func NewSessionizer(gap time.Duration) *Sessionizer {
	return &Sessionizer{
		Gap:          gap,
		NewSessionID: uuid.NewString,
	}
}

type userState struct {
	lastSeen  time.Time
	sessionID string
}

// Stream lazily yields each event paired with its session identifier.
// Events must be ordered by (user_id, timestamp) or by global timestamp;
// ties on timestamp for one user keep their input order, and the earlier
// record is treated as the session predecessor. Only one predecessor per
// user is retained, so the sequence can be consumed in a single pass and
// restarted from the start at any time.
func (s *Sessionizer) Stream(events []model.Event) iter.Seq2[model.Event, string] {
	return func(yield func(model.Event, string) bool) {
		users := make(map[string]userState)
		for _, ev := range events {
			state, seen := users[ev.UserID]
			if !seen || ev.Timestamp.Sub(state.lastSeen) > s.Gap {
				state.sessionID = s.NewSessionID()
			}
			state.lastSeen = ev.Timestamp
			users[ev.UserID] = state
			if !yield(ev, state.sessionID) {
				return
			}
		}
	}
}

// Assign sorts events by (user_id, timestamp) with a stable sort, assigns
// session identifiers and returns the events with SessionID populated.
func (s *Sessionizer) Assign(events []model.Event) []model.Event {
	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	SortByUserTime(sorted)

	out := make([]model.Event, 0, len(sorted))
	for ev, id := range s.Stream(sorted) {
		ev.SessionID = id
		out = append(out, ev)
	}
	return out
}

// SortByUserTime stable-sorts events by (user_id, timestamp). Stability
// makes the tie-break for identical timestamps the input order.
func SortByUserTime(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].UserID != events[j].UserID {
			return events[i].UserID < events[j].UserID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// SortByTime stable-sorts events by global timestamp. The rule engine
// requires this order before processing.
func SortByTime(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
