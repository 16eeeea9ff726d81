package model

import "time"

// Event is one canonical activity record produced by the upstream
// normalization step. The engine consumes it read-only.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Action    string    `json:"action"`
	Host      string    `json:"host,omitempty"`
	SrcIP     string    `json:"src_ip,omitempty"`
	Process   string    `json:"process,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Status    string    `json:"status,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}
