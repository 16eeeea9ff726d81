package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/bucketing"
	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/profile"
)

func testServer(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.IO.ProfilePath = filepath.Join(dir, "user_profiles.json")
	cfg.IO.AlertsPath = filepath.Join(dir, "alerts.jsonl")
	cfg.IO.ScoresPath = filepath.Join(dir, "sequence_anomalies.jsonl")

	h := NewAnalyticsHandler(cfg, nil, bucketing.NewManager(cfg.Bucketing), zap.NewNop())
	srv := httptest.NewServer(NewRouter(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, cfg
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	if status := getJSON(t, srv.URL+"/health", nil); status != http.StatusOK {
		t.Errorf("health returned %d", status)
	}
}

func TestListProfilesRankedByRisk(t *testing.T) {
	srv, cfg := testServer(t)

	store := profile.NewStore(cfg.IO.ProfilePath, zap.NewNop())
	if err := store.Save(map[string]*model.Profile{
		"low":  {UserID: "low", RiskScore: 5, KnownIPs: []string{}, KnownHosts: []string{}},
		"high": {UserID: "high", RiskScore: 90, KnownIPs: []string{}, KnownHosts: []string{}},
	}); err != nil {
		t.Fatal(err)
	}

	var profiles []model.Profile
	if status := getJSON(t, srv.URL+"/api/v1/profiles", &profiles); status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if len(profiles) != 2 || profiles[0].UserID != "high" {
		t.Errorf("expected highest risk first, got %+v", profiles)
	}
}

func TestGetProfile(t *testing.T) {
	srv, cfg := testServer(t)

	store := profile.NewStore(cfg.IO.ProfilePath, zap.NewNop())
	if err := store.Save(map[string]*model.Profile{
		"alice": {UserID: "alice", RiskScore: 15, KnownIPs: []string{"10.0.0.1"}, KnownHosts: []string{}},
	}); err != nil {
		t.Fatal(err)
	}

	var p model.Profile
	if status := getJSON(t, srv.URL+"/api/v1/profiles/alice", &p); status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if p.UserID != "alice" || len(p.KnownIPs) != 1 {
		t.Errorf("unexpected profile: %+v", p)
	}

	if status := getJSON(t, srv.URL+"/api/v1/profiles/nobody", nil); status != http.StatusNotFound {
		t.Errorf("unknown user should 404, got %d", status)
	}
}

func TestListSequencesLimit(t *testing.T) {
	srv, cfg := testServer(t)

	f, err := os.Create(cfg.IO.ScoresPath)
	if err != nil {
		t.Fatal(err)
	}
	enc := json.NewEncoder(f)
	for _, s := range []model.SessionScore{
		{SessionID: "s1", UserID: "u1", Score: 9.0, Sequence: "a -> b"},
		{SessionID: "s2", UserID: "u2", Score: 3.0, Sequence: "a -> c"},
		{SessionID: "s3", UserID: "u3", Score: 1.0, Sequence: "a -> d"},
	} {
		if err := enc.Encode(s); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	var scores []model.SessionScore
	if status := getJSON(t, srv.URL+"/api/v1/sequences?limit=2", &scores); status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if len(scores) != 2 || scores[0].SessionID != "s1" {
		t.Errorf("limit or order wrong: %+v", scores)
	}

	if status := getJSON(t, srv.URL+"/api/v1/sequences?limit=-1", nil); status != http.StatusBadRequest {
		t.Errorf("negative limit should 400, got %d", status)
	}
}

func TestAlertsEmptyWhenArtifactMissing(t *testing.T) {
	srv, _ := testServer(t)
	var alerts []model.Alert
	if status := getJSON(t, srv.URL+"/api/v1/alerts", &alerts); status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if len(alerts) != 0 {
		t.Errorf("expected empty alerts, got %+v", alerts)
	}
}
