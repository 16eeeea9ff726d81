package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/markov"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/profile"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.IO.EventsPath = filepath.Join(dir, "events.jsonl")
	cfg.IO.SessionizedPath = filepath.Join(dir, "events_sessionized.jsonl")
	cfg.IO.ProfilePath = filepath.Join(dir, "user_profiles.json")
	cfg.IO.PeerGroupPath = filepath.Join(dir, "user_to_peer_group.json")
	cfg.IO.ModelPath = filepath.Join(dir, "markov_model.json")
	cfg.IO.AlertsPath = filepath.Join(dir, "alerts.jsonl")
	cfg.IO.ScoresPath = filepath.Join(dir, "sequence_anomalies.jsonl")
	return cfg
}

func writeEventsFile(t *testing.T, path string, events []model.Event) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFullBatchFlow(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var events []model.Event
	// alice: a burst of routine activity, then a detached session hours
	// later with a failed-then-successful login from a new IP.
	for i := 0; i < 4; i++ {
		events = append(events, model.Event{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			UserID:    "alice", EventType: "auth", Action: "login",
			Status: "success", SrcIP: "10.0.0.1", Host: "srv-01",
		})
	}
	late := t0.Add(6 * time.Hour)
	events = append(events,
		model.Event{Timestamp: late, UserID: "alice", EventType: "auth", Action: "login",
			Status: "failure", SrcIP: "203.0.113.9", Host: "srv-01"},
		model.Event{Timestamp: late.Add(30 * time.Second), UserID: "alice", EventType: "auth",
			Action: "login", Status: "success", SrcIP: "203.0.113.9", Host: "srv-01"},
	)
	writeEventsFile(t, cfg.IO.EventsPath, events)

	if err := os.WriteFile(cfg.IO.PeerGroupPath, []byte(`{"alice": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Sessionize(ctx); err != nil {
		t.Fatal(err)
	}
	sessionized, err := ReadEvents(cfg.IO.SessionizedPath, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	sessionIDs := make(map[string]struct{})
	for _, ev := range sessionized {
		sessionIDs[ev.SessionID] = struct{}{}
	}
	if len(sessionIDs) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessionIDs))
	}

	if err := p.Analyze(ctx); err != nil {
		t.Fatal(err)
	}

	alerts, err := ReadAlerts(cfg.IO.AlertsPath)
	if err != nil {
		t.Fatal(err)
	}
	counts := make(map[string]int)
	for _, a := range alerts {
		counts[a.AlertType]++
	}
	if counts[model.AlertNewIP] != 2 {
		t.Errorf("expected 2 New IP alerts, got %d", counts[model.AlertNewIP])
	}
	if counts[model.AlertNewHost] != 1 {
		t.Errorf("expected 1 New Host alert, got %d", counts[model.AlertNewHost])
	}
	if counts[model.AlertSuspiciousSequence] != 1 {
		t.Errorf("expected 1 Suspicious Sequence alert, got %d", counts[model.AlertSuspiciousSequence])
	}
	// Group baseline never exceeds the cold-start threshold here.
	if counts[model.AlertPeerGroupDeviation] != 0 {
		t.Errorf("peer deviation should stay suppressed, got %d", counts[model.AlertPeerGroupDeviation])
	}

	store := profile.NewStore(cfg.IO.ProfilePath, zap.NewNop())
	profiles := store.Load()
	alice, ok := profiles["alice"]
	if !ok {
		t.Fatal("alice's profile was not persisted")
	}
	// 2*5 (IPs) + 10 (host) + 50 (sequence)
	if alice.RiskScore != 70 {
		t.Errorf("risk score = %v, want 70", alice.RiskScore)
	}

	if err := p.BuildModel(ctx); err != nil {
		t.Fatal(err)
	}
	m, err := markov.LoadModel(cfg.IO.ModelPath)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Grouped || m.Order != cfg.Markov.Order {
		t.Errorf("unexpected model metadata: %+v", m)
	}

	if err := p.Score(ctx); err != nil {
		t.Fatal(err)
	}
	scores, err := ReadScores(cfg.IO.ScoresPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) == 0 {
		t.Fatal("expected at least one scored session")
	}
	for i := 1; i < len(scores); i++ {
		if scores[i].Score > scores[i-1].Score {
			t.Errorf("scores not in descending order at %d", i)
		}
	}
}

func TestAnalyzeDecaysIdleProfilesOnce(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	// Seed a prior snapshot with an idle user who has no events this run.
	store := profile.NewStore(cfg.IO.ProfilePath, zap.NewNop())
	if err := store.Save(map[string]*model.Profile{
		"idle": {UserID: "idle", RiskScore: 200, KnownIPs: []string{}, KnownHosts: []string{}},
	}); err != nil {
		t.Fatal(err)
	}

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	writeEventsFile(t, cfg.IO.SessionizedPath, []model.Event{
		{Timestamp: t0, UserID: "alice", EventType: "auth", Action: "login", SessionID: "s1"},
	})

	p, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Analyze(ctx); err != nil {
		t.Fatal(err)
	}

	profiles := store.Load()
	if profiles["idle"].RiskScore != 198 {
		t.Errorf("idle risk = %v, want 198 after one decay", profiles["idle"].RiskScore)
	}
	if _, ok := profiles["alice"]; !ok {
		t.Errorf("active user profile must be created")
	}
}

func TestAnalyzeMissingEventsIsFatal(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Analyze(context.Background()); err == nil {
		t.Fatal("missing sessionized events must abort the run")
	}
	if _, err := os.Stat(cfg.IO.ProfilePath); !os.IsNotExist(err) {
		t.Errorf("a failed run must not persist a snapshot")
	}
}

func TestKnowledgeAccumulatesAcrossRuns(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	run := func(ip string) {
		writeEventsFile(t, cfg.IO.SessionizedPath, []model.Event{
			{Timestamp: t0, UserID: "alice", EventType: "auth", Action: "login",
				SrcIP: ip, SessionID: fmt.Sprintf("s-%s", ip)},
		})
		p, err := New(cfg, zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		defer p.Close()
		if err := p.Analyze(ctx); err != nil {
			t.Fatal(err)
		}
	}

	run("10.0.0.1")
	run("10.0.0.2")

	profiles := profile.NewStore(cfg.IO.ProfilePath, zap.NewNop()).Load()
	ips := profiles["alice"].KnownIPs
	if len(ips) != 2 || ips[0] != "10.0.0.1" || ips[1] != "10.0.0.2" {
		t.Errorf("known_ips must accumulate across runs in first-seen order, got %v", ips)
	}
}
