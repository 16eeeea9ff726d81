package model

// TransitionTable maps a state key to a probability distribution over the
// next action token. Probabilities within one state sum to 1. States with
// no observed transitions are absent.
type TransitionTable map[string]map[string]float64

// SequenceModel is the versioned Markov model artifact written by the
// builder and read by the scorer. When built without peer-group
// conditioning, the single table is stored under GlobalGroupKey.
type SequenceModel struct {
	Version int                        `json:"version"`
	Order   int                        `json:"order"`
	Grouped bool                       `json:"grouped"`
	Models  map[string]TransitionTable `json:"models"`
}

// GlobalGroupKey is the group key used for an unconditioned model.
const GlobalGroupKey = "global"

// SequenceModelVersion is the current artifact format version.
const SequenceModelVersion = 1

// SessionScore is one scored session: the average negative log-likelihood
// of its transitions under the matching model. Higher is more anomalous.
type SessionScore struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Score     Score  `json:"score"`
	Sequence  string `json:"sequence"`
}
