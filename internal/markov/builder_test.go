package markov

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/model"
)

func TestBuilderOrderValidation(t *testing.T) {
	for _, order := range []int{0, 3, -1} {
		if _, err := NewBuilder(order, zap.NewNop()); err == nil {
			t.Errorf("order %d should be rejected", order)
		}
	}
	for _, order := range []int{1, 2} {
		if _, err := NewBuilder(order, zap.NewNop()); err != nil {
			t.Errorf("order %d should be accepted: %v", order, err)
		}
	}
}

func TestBuildFirstOrder(t *testing.T) {
	b, _ := NewBuilder(1, zap.NewNop())
	sessions := []Session{
		{SessionID: "s1", UserID: "u1", Tokens: []string{"a", "b", "a"}},
		{SessionID: "s2", UserID: "u2", Tokens: []string{"a", "c"}},
		{SessionID: "s3", UserID: "u3", Tokens: []string{"x"}}, // too short, excluded
	}

	m, err := b.Build(context.Background(), sessions, false)
	if err != nil {
		t.Fatal(err)
	}

	table, ok := m.Models[model.GlobalGroupKey]
	if !ok {
		t.Fatalf("expected global table, got groups %v", m.Models)
	}

	// a→b, b→a, a→c
	if got := table["a"]["b"]; math.Abs(got-0.5) > 1e-12 {
		t.Errorf("P(b|a) = %v, want 0.5", got)
	}
	if got := table["a"]["c"]; math.Abs(got-0.5) > 1e-12 {
		t.Errorf("P(c|a) = %v, want 0.5", got)
	}
	if got := table["b"]["a"]; math.Abs(got-1.0) > 1e-12 {
		t.Errorf("P(a|b) = %v, want 1.0", got)
	}
	if _, ok := table["x"]; ok {
		t.Errorf("a too-short session must contribute no states")
	}
	if _, ok := table["c"]; ok {
		t.Errorf("a terminal token with no outgoing transitions must be absent")
	}
}

func TestBuildProbabilitiesSumToOne(t *testing.T) {
	b, _ := NewBuilder(2, zap.NewNop())
	sessions := []Session{
		{SessionID: "s1", Tokens: []string{"a", "b", "c", "d", "c", "d"}},
		{SessionID: "s2", Tokens: []string{"a", "b", "d", "c"}},
		{SessionID: "s3", Tokens: []string{"b", "c", "d", "a", "b", "c"}},
	}

	m, err := b.Build(context.Background(), sessions, false)
	if err != nil {
		t.Fatal(err)
	}

	for state, dist := range m.Models[model.GlobalGroupKey] {
		sum := 0.0
		for _, p := range dist {
			sum += p
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("state %q: probabilities sum to %v, want 1", state, sum)
		}
	}
}

func TestBuildSecondOrderStates(t *testing.T) {
	b, _ := NewBuilder(2, zap.NewNop())
	sessions := []Session{
		{SessionID: "s1", Tokens: []string{"a", "b", "c", "d"}},
		{SessionID: "s2", Tokens: []string{"a", "b"}}, // below k+1, excluded
	}

	m, err := b.Build(context.Background(), sessions, false)
	if err != nil {
		t.Fatal(err)
	}

	table := m.Models[model.GlobalGroupKey]
	if len(table) != 2 {
		t.Fatalf("expected 2 states, got %d: %v", len(table), table)
	}
	if got := table[StateKey([]string{"a", "b"})]["c"]; got != 1.0 {
		t.Errorf("P(c|a,b) = %v, want 1", got)
	}
	if got := table[StateKey([]string{"b", "c"})]["d"]; got != 1.0 {
		t.Errorf("P(d|b,c) = %v, want 1", got)
	}
}

func TestBuildGrouped(t *testing.T) {
	b, _ := NewBuilder(1, zap.NewNop())
	sessions := []Session{
		{SessionID: "s1", UserID: "u1", Group: "0", Tokens: []string{"a", "b"}},
		{SessionID: "s2", UserID: "u2", Group: "1", Tokens: []string{"a", "c"}},
		{SessionID: "s3", UserID: "u3", Group: "", Tokens: []string{"a", "d"}}, // unassigned
	}

	m, err := b.Build(context.Background(), sessions, true)
	if err != nil {
		t.Fatal(err)
	}

	if !m.Grouped {
		t.Errorf("model should be marked grouped")
	}
	if len(m.Models) != 2 {
		t.Fatalf("expected 2 group tables, got %d", len(m.Models))
	}
	if got := m.Models["0"]["a"]["b"]; got != 1.0 {
		t.Errorf("group 0 P(b|a) = %v, want 1", got)
	}
	if got := m.Models["1"]["a"]["c"]; got != 1.0 {
		t.Errorf("group 1 P(c|a) = %v, want 1", got)
	}
	for g, table := range m.Models {
		if _, ok := table["a"]["d"]; ok {
			t.Errorf("unassigned user's transition leaked into group %s", g)
		}
	}
}

func TestCollectSessions(t *testing.T) {
	events := []model.Event{
		{SessionID: "s1", UserID: "u1", EventType: "auth", Action: "login"},
		{SessionID: "s2", UserID: "u2", EventType: "file", Action: "read"},
		{SessionID: "s1", UserID: "u1", EventType: "process", Action: "execute", Process: "bash"},
		{UserID: "u3", EventType: "auth", Action: "login"}, // no session id
	}
	groupOf := map[string]int{"u1": 2}

	sessions := CollectSessions(events, groupOf)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	s1 := sessions[0]
	if s1.SessionID != "s1" || s1.UserID != "u1" || s1.Group != "2" {
		t.Errorf("unexpected first session: %+v", s1)
	}
	if len(s1.Tokens) != 2 || s1.Tokens[1] != "process_execute_bash" {
		t.Errorf("unexpected tokens: %v", s1.Tokens)
	}
	if sessions[1].Group != "" {
		t.Errorf("ungrouped user should have empty group, got %q", sessions[1].Group)
	}
	if got := s1.Render(); got != "auth_login -> process_execute_bash" {
		t.Errorf("Render() = %q", got)
	}
}
