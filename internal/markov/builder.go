package markov

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nihams/ueba/internal/model"
)

// Builder accumulates transition counts from session token sequences and
// normalizes them into per-state probability distributions.
type Builder struct {
	order  int
	logger *zap.Logger
}

// NewBuilder creates a builder for the given Markov order (1 or 2).
func NewBuilder(order int, logger *zap.Logger) (*Builder, error) {
	if order != 1 && order != 2 {
		return nil, fmt.Errorf("markov order must be 1 or 2, got %d", order)
	}
	return &Builder{order: order, logger: logger}, nil
}

// Build constructs the transition model. When grouped is true, one table
// is built per peer group and sessions of unassigned users contribute
// nothing; otherwise all sessions feed a single table under the global
// key. Groups are independent units of work and are built in parallel.
func (b *Builder) Build(ctx context.Context, sessions []Session, grouped bool) (*model.SequenceModel, error) {
	partitions := b.partition(sessions, grouped)

	out := &model.SequenceModel{
		Version: model.SequenceModelVersion,
		Order:   b.order,
		Grouped: grouped,
		Models:  make(map[string]model.TransitionTable, len(partitions)),
	}

	type built struct {
		group string
		table model.TransitionTable
	}

	results := make(chan built, len(partitions))
	g, ctx := errgroup.WithContext(ctx)

	for group, part := range partitions {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results <- built{group: group, table: b.buildTable(part)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for r := range results {
		out.Models[r.group] = r.table
	}

	states := 0
	for _, table := range out.Models {
		states += len(table)
	}
	b.logger.Info("built sequence model",
		zap.Int("order", b.order),
		zap.Bool("grouped", grouped),
		zap.Int("groups", len(out.Models)),
		zap.Int("states", states),
	)
	return out, nil
}

func (b *Builder) partition(sessions []Session, grouped bool) map[string][]Session {
	partitions := make(map[string][]Session)
	for _, s := range sessions {
		// Sessions below order+1 tokens contribute no transitions.
		if len(s.Tokens) < b.order+1 {
			continue
		}
		key := model.GlobalGroupKey
		if grouped {
			if s.Group == "" {
				continue
			}
			key = s.Group
		}
		partitions[key] = append(partitions[key], s)
	}
	return partitions
}

// buildTable counts transitions for one partition and normalizes each
// state's counts into a probability distribution summing to 1.
func (b *Builder) buildTable(sessions []Session) model.TransitionTable {
	counts := make(map[string]map[string]int)
	for _, s := range sessions {
		for i := 0; i+b.order < len(s.Tokens); i++ {
			state := StateKey(s.Tokens[i : i+b.order])
			next := s.Tokens[i+b.order]
			if counts[state] == nil {
				counts[state] = make(map[string]int)
			}
			counts[state][next]++
		}
	}

	table := make(model.TransitionTable, len(counts))
	for state, nexts := range counts {
		total := 0
		for _, n := range nexts {
			total += n
		}
		dist := make(map[string]float64, len(nexts))
		for next, n := range nexts {
			dist[next] = float64(n) / float64(total)
		}
		table[state] = dist
	}
	return table
}
