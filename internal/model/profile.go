package model

import (
	"encoding/json"
	"math"
	"time"
)

// Score is a float that serializes NaN and ±Inf as JSON null instead of
// failing or producing invalid JSON.
type Score float64

func (s Score) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = Score(f)
	return nil
}

// Profile is the incrementally learned baseline for one user. The known
// IP and host lists are append-only in first-seen order and never shrink,
// within or across runs.
type Profile struct {
	UserID     string     `json:"user_id"`
	KnownIPs   []string   `json:"known_ips"`
	KnownHosts []string   `json:"known_hosts"`
	RiskScore  Score      `json:"risk_score"`
	LastSeen   *time.Time `json:"last_seen"`
}

// NewProfile returns an empty profile with zero risk.
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:     userID,
		KnownIPs:   []string{},
		KnownHosts: []string{},
	}
}

func (p *Profile) KnowsIP(ip string) bool {
	for _, known := range p.KnownIPs {
		if known == ip {
			return true
		}
	}
	return false
}

func (p *Profile) KnowsHost(host string) bool {
	for _, known := range p.KnownHosts {
		if known == host {
			return true
		}
	}
	return false
}

// AddIP appends the IP if unseen, preserving first-seen order.
func (p *Profile) AddIP(ip string) {
	if !p.KnowsIP(ip) {
		p.KnownIPs = append(p.KnownIPs, ip)
	}
}

// AddHost appends the host if unseen, preserving first-seen order.
func (p *Profile) AddHost(host string) {
	if !p.KnowsHost(host) {
		p.KnownHosts = append(p.KnownHosts, host)
	}
}
