package markov

import (
	"strconv"
	"strings"

	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/session"
)

// Session is one user session reduced to its ordered action tokens, the
// input unit for both model building and scoring.
type Session struct {
	SessionID string
	UserID    string
	Group     string // peer group key, "" when the user is unassigned
	Tokens    []string
}

// StateKey renders a window of preceding tokens as a canonical model key.
// Tokens never contain '|', so the join is collision-free.
func StateKey(tokens []string) string {
	return strings.Join(tokens, "|")
}

// Render produces the human-readable token sequence for reports.
func (s Session) Render() string {
	return strings.Join(s.Tokens, " -> ")
}

// CollectSessions groups sessionized events into token sequences,
// preserving chronological order within each session and the order in
// which sessions first appear. Events without a session_id are skipped;
// groupOf may be nil, leaving every session unassigned.
func CollectSessions(events []model.Event, groupOf map[string]int) []Session {
	index := make(map[string]int)
	var sessions []Session

	for _, ev := range events {
		if ev.SessionID == "" {
			continue
		}
		i, seen := index[ev.SessionID]
		if !seen {
			group := ""
			if g, ok := groupOf[ev.UserID]; ok {
				group = strconv.Itoa(g)
			}
			i = len(sessions)
			index[ev.SessionID] = i
			sessions = append(sessions, Session{
				SessionID: ev.SessionID,
				UserID:    ev.UserID,
				Group:     group,
			})
		}
		sessions[i].Tokens = append(sessions[i].Tokens, session.Token(ev))
	}
	return sessions
}
