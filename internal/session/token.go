package session

import "github.com/nihams/ueba/internal/model"

// placeholder stands in for missing event fields so tokens stay
// deterministic instead of failing.
const placeholder = "unknown"

// Token maps an event to its action token, the vocabulary unit shared by
// the rule engine and the sequence models. Process executions carry the
// process name; everything else is "<event_type>_<action>".
func Token(ev model.Event) string {
	if ev.EventType == "process" && ev.Process != "" {
		return "process_execute_" + ev.Process
	}
	eventType := ev.EventType
	if eventType == "" {
		eventType = placeholder
	}
	action := ev.Action
	if action == "" {
		action = placeholder
	}
	return eventType + "_" + action
}

// ActionStatus renders the "<action>_<status>" token the rule engine
// tracks per session for the suspicious-sequence check.
func ActionStatus(ev model.Event) string {
	status := ev.Status
	if status == "" {
		status = placeholder
	}
	return ev.Action + "_" + status
}
