package engine

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/session"
)

// PeerKnowledge is the per-peer-group shared host baseline. It is rebuilt
// every run and mutated in global chronological order across all members
// of a group.
type PeerKnowledge map[int]map[string]struct{}

func NewPeerKnowledge() PeerKnowledge {
	return make(PeerKnowledge)
}

func (pk PeerKnowledge) hosts(group int) map[string]struct{} {
	set, ok := pk[group]
	if !ok {
		set = make(map[string]struct{})
		pk[group] = set
	}
	return set
}

// SessionTracker records the most recent "<action>_<status>" token per
// session. Only the immediate predecessor matters to the rules, so each
// update overwrites the previous value.
type SessionTracker map[string]string

func NewSessionTracker() SessionTracker {
	return make(SessionTracker)
}

// Engine evaluates the detection rules against one event at a time. It is
// strictly sequential: the shared peer-group and session-tracker state
// requires events in non-decreasing global timestamp order.
type Engine struct {
	cfg    config.EngineConfig
	logger *zap.Logger

	now func() time.Time
}

func New(cfg config.EngineConfig, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Decay applies the once-per-run multiplicative risk decay to every
// existing profile, including users with no events in the current run.
// It must run before any event is processed.
func (e *Engine) Decay(profiles map[string]*model.Profile) {
	for _, p := range profiles {
		risk := float64(p.RiskScore)
		if math.IsNaN(risk) || math.IsInf(risk, 0) {
			continue
		}
		p.RiskScore = model.Score(math.Round(risk * e.cfg.DecayFactor))
	}
	e.logger.Debug("applied risk decay",
		zap.Int("profiles", len(profiles)),
		zap.Float64("factor", e.cfg.DecayFactor),
	)
}

// Process runs all rules against one event, mutating the profile map,
// peer knowledge and session tracker in place, and returns any alerts.
// Events without a user_id are skipped. groupOf may be nil, which
// disables the peer-group deviation rule.
func (e *Engine) Process(
	ev model.Event,
	profiles map[string]*model.Profile,
	peers PeerKnowledge,
	tracker SessionTracker,
	groupOf map[string]int,
) []model.Alert {
	if ev.UserID == "" {
		return nil
	}

	profile, ok := profiles[ev.UserID]
	if !ok {
		profile = model.NewProfile(ev.UserID)
		profiles[ev.UserID] = profile
	}

	var alerts []model.Alert

	// Rule 1: New IP
	if ev.SrcIP != "" && !profile.KnowsIP(ev.SrcIP) {
		alerts = append(alerts, e.alert(model.AlertNewIP, ev.UserID,
			fmt.Sprintf("New IP %s", ev.SrcIP)))
		profile.RiskScore += model.Score(e.cfg.WeightNewIP)
		profile.AddIP(ev.SrcIP)
	}

	// Rule 2: New Host
	if ev.Host != "" && !profile.KnowsHost(ev.Host) {
		alerts = append(alerts, e.alert(model.AlertNewHost, ev.UserID,
			fmt.Sprintf("Accessed new host %s", ev.Host)))
		profile.RiskScore += model.Score(e.cfg.WeightNewHost)
		profile.AddHost(ev.Host)
	}

	// Rule 3: Peer Group Deviation. The host is always added to the
	// group baseline, whether or not the rule fires; the size check
	// suppresses cold-start noise.
	if group, assigned := groupOf[ev.UserID]; assigned && ev.Host != "" {
		known := peers.hosts(group)
		if _, seen := known[ev.Host]; !seen && len(known) > e.cfg.PeerColdStartHosts {
			alerts = append(alerts, e.alert(model.AlertPeerGroupDeviation, ev.UserID,
				fmt.Sprintf("Accessed unusual host '%s' for peer group %d.", ev.Host, group)))
			profile.RiskScore += model.Score(e.cfg.WeightPeerGroup)
		}
		known[ev.Host] = struct{}{}
	}

	// Rule 4: Suspicious Sequence
	if ev.SessionID != "" && ev.Action != "" {
		if tracker[ev.SessionID] == "login_failure" && ev.Action == "login" && ev.Status == "success" {
			alerts = append(alerts, e.alert(model.AlertSuspiciousSequence, ev.UserID,
				"Successful login followed a failed login in the same session."))
			profile.RiskScore += model.Score(e.cfg.WeightSuspiciousSq)
		}
		tracker[ev.SessionID] = session.ActionStatus(ev)
	}

	if !ev.Timestamp.IsZero() {
		ts := ev.Timestamp
		profile.LastSeen = &ts
	}

	return alerts
}

func (e *Engine) alert(alertType, userID, details string) model.Alert {
	return model.Alert{
		AlertType:  alertType,
		UserID:     userID,
		Details:    details,
		DetectedAt: e.now(),
	}
}
