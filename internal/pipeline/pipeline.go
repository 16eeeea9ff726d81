package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/bucketing"
	"github.com/nihams/ueba/internal/client"
	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/engine"
	"github.com/nihams/ueba/internal/markov"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/profile"
	"github.com/nihams/ueba/internal/session"
)

// Pipeline owns the batch run lifecycle: artifact loading, the strictly
// ordered rule-engine pass, model building and scoring, and fan-out to
// the optional sinks.
type Pipeline struct {
	cfg     *config.Config
	logger  *zap.Logger
	buckets *bucketing.Manager

	clickhouse *client.ClickHouseClient
	kafka      *client.AlertProducer
	redis      *client.RedisClient
	es         *client.ESClient
}

// New constructs the pipeline and connects every enabled client. A
// configured client that cannot connect fails construction; disabled
// clients are simply nil.
func New(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{
		cfg:     cfg,
		logger:  logger,
		buckets: bucketing.NewManager(cfg.Bucketing),
	}

	if cfg.Clickhouse.Enabled {
		ch, err := client.NewClickHouseClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		p.clickhouse = ch
	}
	if cfg.Kafka.Enabled {
		kp, err := client.NewAlertProducer(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		p.kafka = kp
	}
	if cfg.Redis.Enabled {
		rc, err := client.NewRedisClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		p.redis = rc
	}
	if cfg.Elasticsearch.Enabled {
		es, err := client.NewElasticsearchClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("elasticsearch: %w", err)
		}
		p.es = es
	}

	return p, nil
}

// Close releases every connected client.
func (p *Pipeline) Close() {
	if p.clickhouse != nil {
		_ = p.clickhouse.Close()
	}
	if p.kafka != nil {
		_ = p.kafka.Close()
	}
	if p.redis != nil {
		_ = p.redis.Close()
	}
	if p.es != nil {
		p.es.Close()
	}
}

// Sessionize reads normalized events, assigns session identifiers and
// writes the sessionized artifact shared by analyze, build-model and
// score.
func (p *Pipeline) Sessionize(ctx context.Context) error {
	events, err := p.loadEvents(ctx, p.cfg.IO.EventsPath)
	if err != nil {
		return err
	}

	sessionizer := session.NewSessionizer(p.cfg.Engine.Gap())
	sessionized := sessionizer.Assign(events)

	if err := writeJSONL(p.cfg.IO.SessionizedPath, sessionized); err != nil {
		return fmt.Errorf("failed to write sessionized events: %w", err)
	}

	unique := make(map[string]struct{})
	for _, ev := range sessionized {
		unique[ev.SessionID] = struct{}{}
	}
	p.logger.Info("sessionized events",
		zap.Int("events", len(sessionized)),
		zap.Int("sessions", len(unique)),
		zap.String("path", p.cfg.IO.SessionizedPath),
	)
	return nil
}

// Analyze runs the rule-engine pass: decay, strictly time-ordered event
// processing, snapshot persistence and alert emission. The snapshot is
// only written after the full pass succeeds, so a failed run never
// persists partial state.
func (p *Pipeline) Analyze(ctx context.Context) error {
	events, err := p.loadEvents(ctx, p.cfg.IO.SessionizedPath)
	if err != nil {
		return err
	}

	store := profile.NewStore(p.cfg.IO.ProfilePath, p.logger)
	profiles := store.Load()

	groupOf, err := profile.LoadPeerGroups(p.cfg.IO.PeerGroupPath)
	if err != nil {
		return err
	}
	if groupOf == nil {
		p.logger.Warn("peer group map not found, running degraded without peer group deviation",
			zap.String("path", p.cfg.IO.PeerGroupPath))
	}

	eng := engine.New(p.cfg.Engine, p.logger)

	// Decay applies to every existing profile exactly once, before any
	// event of the run is processed.
	eng.Decay(profiles)

	// The peer-group baselines and the session tracker are shared
	// mutable state, so the pass requires global timestamp order.
	session.SortByTime(events)

	peers := engine.NewPeerKnowledge()
	tracker := engine.NewSessionTracker()

	var alerts []model.Alert
	processed := 0
	for _, ev := range events {
		alerts = append(alerts, eng.Process(ev, profiles, peers, tracker, groupOf)...)
		processed++
	}

	if err := store.Save(profiles); err != nil {
		return err
	}
	if err := writeJSONL(p.cfg.IO.AlertsPath, alerts); err != nil {
		return fmt.Errorf("failed to write alerts: %w", err)
	}

	p.emitAlerts(ctx, alerts)
	p.cacheProfiles(ctx, profiles)

	p.logger.Info("analysis run complete",
		zap.Int("events_processed", processed),
		zap.Int("alerts", len(alerts)),
		zap.Int("profiles", len(profiles)),
	)
	return nil
}

// BuildModel builds the Markov transition model from the sessionized
// artifact and writes the versioned model artifact.
func (p *Pipeline) BuildModel(ctx context.Context) error {
	events, err := ReadEvents(p.cfg.IO.SessionizedPath, p.logger)
	if err != nil {
		return err
	}

	grouped := p.cfg.Markov.ByGroup
	groupOf, err := profile.LoadPeerGroups(p.cfg.IO.PeerGroupPath)
	if err != nil {
		return err
	}
	if grouped && groupOf == nil {
		p.logger.Warn("peer group map not found, building a single global model",
			zap.String("path", p.cfg.IO.PeerGroupPath))
		grouped = false
	}

	builder, err := markov.NewBuilder(p.cfg.Markov.Order, p.logger)
	if err != nil {
		return err
	}

	sessions := markov.CollectSessions(events, groupOf)
	m, err := builder.Build(ctx, sessions, grouped)
	if err != nil {
		return err
	}

	if err := markov.SaveModel(p.cfg.IO.ModelPath, m); err != nil {
		return err
	}
	p.logger.Info("sequence model written", zap.String("path", p.cfg.IO.ModelPath))
	return nil
}

// Score ranks every scorable session against the model artifact and
// writes the descending-score output.
func (p *Pipeline) Score(ctx context.Context) error {
	events, err := ReadEvents(p.cfg.IO.SessionizedPath, p.logger)
	if err != nil {
		return err
	}

	m, err := markov.LoadModel(p.cfg.IO.ModelPath)
	if err != nil {
		return err
	}
	if m.Order != p.cfg.Markov.Order {
		p.logger.Warn("model order differs from configuration, using the model's order",
			zap.Int("model_order", m.Order),
			zap.Int("configured_order", p.cfg.Markov.Order),
		)
	}

	groupOf, err := profile.LoadPeerGroups(p.cfg.IO.PeerGroupPath)
	if err != nil {
		return err
	}
	if m.Grouped && groupOf == nil {
		p.logger.Warn("peer group map not found, grouped model cannot score any session",
			zap.String("path", p.cfg.IO.PeerGroupPath))
	}

	scorer, err := markov.NewScorer(m, p.cfg.Markov.FloorProb, p.logger)
	if err != nil {
		return err
	}

	sessions := markov.CollectSessions(events, groupOf)
	scores, err := scorer.Score(ctx, sessions)
	if err != nil {
		return err
	}

	if err := writeJSONL(p.cfg.IO.ScoresPath, scores); err != nil {
		return fmt.Errorf("failed to write session scores: %w", err)
	}

	p.indexScores(ctx, scores)
	p.logTopAnomalies(scores, 10)
	return nil
}

func (p *Pipeline) loadEvents(ctx context.Context, path string) ([]model.Event, error) {
	if p.clickhouse != nil {
		events, err := p.clickhouse.QueryEvents(ctx)
		if err != nil {
			return nil, err
		}
		p.logger.Info("loaded events from ClickHouse", zap.Int("events", len(events)))
		return events, nil
	}
	return ReadEvents(path, p.logger)
}

// emitAlerts fans alerts out to the optional sinks. Sink failures are
// logged but do not fail the run: the snapshot and the primary alert
// artifact are already consistent.
func (p *Pipeline) emitAlerts(ctx context.Context, alerts []model.Alert) {
	if p.clickhouse != nil {
		if err := p.clickhouse.InsertAlerts(ctx, alerts, p.buckets); err != nil {
			p.logger.Error("failed to insert alerts into ClickHouse", zap.Error(err))
		}
	}
	if p.kafka != nil {
		if err := p.kafka.PublishAlerts(ctx, alerts); err != nil {
			p.logger.Error("failed to publish alerts to Kafka", zap.Error(err))
		}
	}
}

func (p *Pipeline) cacheProfiles(ctx context.Context, profiles map[string]*model.Profile) {
	if p.redis == nil {
		return
	}
	if err := p.redis.CacheProfiles(ctx, profiles, p.buckets); err != nil {
		p.logger.Error("failed to cache profiles in Redis", zap.Error(err))
	}
}

func (p *Pipeline) indexScores(ctx context.Context, scores []model.SessionScore) {
	if p.es == nil {
		return
	}
	if err := p.es.IndexScores(ctx, scores); err != nil {
		p.logger.Error("failed to index scores in Elasticsearch", zap.Error(err))
	}
}

func (p *Pipeline) logTopAnomalies(scores []model.SessionScore, n int) {
	if len(scores) < n {
		n = len(scores)
	}
	for i := 0; i < n; i++ {
		s := scores[i]
		p.logger.Info("anomalous sequence",
			zap.Int("rank", i+1),
			zap.String("user_id", s.UserID),
			zap.String("session_id", s.SessionID),
			zap.Float64("score", float64(s.Score)),
			zap.String("sequence", s.Sequence),
		)
	}
}
