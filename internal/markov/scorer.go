package markov

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nihams/ueba/internal/model"
)

// Scorer computes the average negative log-likelihood of each session's
// transitions under an immutable built model. Higher scores are more
// anomalous.
type Scorer struct {
	model  *model.SequenceModel
	floor  float64
	logger *zap.Logger
}

// NewScorer wraps a built model. floor is substituted for any transition
// or state absent from the model so scores stay finite.
func NewScorer(m *model.SequenceModel, floor float64, logger *zap.Logger) (*Scorer, error) {
	if m.Version != model.SequenceModelVersion {
		return nil, fmt.Errorf("unsupported sequence model version %d", m.Version)
	}
	if m.Order != 1 && m.Order != 2 {
		return nil, fmt.Errorf("sequence model has invalid order %d", m.Order)
	}
	if floor <= 0 {
		return nil, fmt.Errorf("floor probability must be positive, got %v", floor)
	}
	return &Scorer{model: m, floor: floor, logger: logger}, nil
}

// Score scores every scorable session and returns the results ranked by
// descending score. Sessions shorter than order+1 tokens, and sessions
// whose peer group has no model, are skipped rather than scored zero.
// Sessions share no mutable state, so scoring runs in parallel.
func (s *Scorer) Score(ctx context.Context, sessions []Session) ([]model.SessionScore, error) {
	results := make([]*model.SessionScore, len(sessions))
	g, ctx := errgroup.WithContext(ctx)

	for i, sess := range sessions {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results[i] = s.scoreSession(sess)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := make([]model.SessionScore, 0, len(sessions))
	for _, r := range results {
		if r != nil {
			scored = append(scored, *r)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	s.logger.Info("scored sessions",
		zap.Int("scored", len(scored)),
		zap.Int("skipped", len(sessions)-len(scored)),
	)
	return scored, nil
}

// scoreSession returns nil when the session is not scorable.
func (s *Scorer) scoreSession(sess Session) *model.SessionScore {
	order := s.model.Order
	if len(sess.Tokens) < order+1 {
		return nil
	}

	group := model.GlobalGroupKey
	if s.model.Grouped {
		if sess.Group == "" {
			return nil
		}
		group = sess.Group
	}
	table, ok := s.model.Models[group]
	if !ok {
		return nil
	}

	logProb := 0.0
	transitions := 0
	for i := 0; i+order < len(sess.Tokens); i++ {
		state := StateKey(sess.Tokens[i : i+order])
		next := sess.Tokens[i+order]
		prob := s.floor
		if dist, ok := table[state]; ok {
			if p, ok := dist[next]; ok {
				prob = p
			}
		}
		logProb += -math.Log(prob)
		transitions++
	}

	return &model.SessionScore{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Score:     model.Score(logProb / float64(transitions)),
		Sequence:  sess.Render(),
	}
}
