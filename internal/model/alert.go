package model

import "time"

// Alert types emitted by the rule engine.
const (
	AlertNewIP              = "New IP"
	AlertNewHost            = "New Host"
	AlertPeerGroupDeviation = "Peer Group Deviation"
	AlertSuspiciousSequence = "Suspicious Sequence"
)

// Alert is one append-only detection record. Alerts are never mutated
// after emission.
type Alert struct {
	AlertType  string    `json:"alert_type"`
	UserID     string    `json:"user_id"`
	Details    string    `json:"details"`
	DetectedAt time.Time `json:"detected_at"`
}
