package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration. Values come from defaults,
// then an optional YAML file, then environment variable overrides.
type Config struct {
	Environment string        `yaml:"environment"`
	Logging     LoggingConfig `yaml:"logging"`
	Engine      EngineConfig  `yaml:"engine"`
	Markov      MarkovConfig  `yaml:"markov"`
	IO          IOConfig      `yaml:"io"`
	Server      ServerConfig  `yaml:"server"`
	Bucketing   BucketConfig  `yaml:"bucketing"`

	Clickhouse    ClickhouseConfig    `yaml:"clickhouse"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig covers sessionization and the detection rules.
type EngineConfig struct {
	GapSeconds         int     `yaml:"gap_seconds"`
	DecayFactor        float64 `yaml:"decay_factor"`
	WeightNewIP        int     `yaml:"weight_new_ip"`
	WeightNewHost      int     `yaml:"weight_new_host"`
	WeightPeerGroup    int     `yaml:"weight_peer_group"`
	WeightSuspiciousSq int     `yaml:"weight_suspicious_sequence"`
	PeerColdStartHosts int     `yaml:"peer_cold_start_hosts"`
}

func (e EngineConfig) Gap() time.Duration {
	return time.Duration(e.GapSeconds) * time.Second
}

type MarkovConfig struct {
	Order     int     `yaml:"order"`
	FloorProb float64 `yaml:"floor_probability"`
	ByGroup   bool    `yaml:"by_peer_group"`
}

// IOConfig names the file artifacts the batch commands read and write.
type IOConfig struct {
	EventsPath      string `yaml:"events_path"`
	SessionizedPath string `yaml:"sessionized_path"`
	ProfilePath     string `yaml:"profile_path"`
	PeerGroupPath   string `yaml:"peer_group_path"`
	ModelPath       string `yaml:"model_path"`
	AlertsPath      string `yaml:"alerts_path"`
	ScoresPath      string `yaml:"scores_path"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type BucketConfig struct {
	UserBuckets  int `yaml:"user_buckets"`
	EventBuckets int `yaml:"event_buckets"`
}

type ClickhouseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	EventsTable string `yaml:"events_table"`
	AlertsTable string `yaml:"alerts_table"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	AlertsTopic string   `yaml:"alerts_topic"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string        `yaml:"url"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	TTL      time.Duration `yaml:"ttl"`
}

type ElasticsearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

// Default returns the configuration with all documented defaults set.
func Default() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Engine: EngineConfig{
			GapSeconds:         1800,
			DecayFactor:        0.99,
			WeightNewIP:        5,
			WeightNewHost:      10,
			WeightPeerGroup:    25,
			WeightSuspiciousSq: 50,
			PeerColdStartHosts: 5,
		},
		Markov: MarkovConfig{
			Order:     2,
			FloorProb: 1e-9,
			ByGroup:   true,
		},
		IO: IOConfig{
			EventsPath:      "data/normalized/events.jsonl",
			SessionizedPath: "data/normalized/events_sessionized.jsonl",
			ProfilePath:     "data/user_profiles.json",
			PeerGroupPath:   "data/user_to_peer_group.json",
			ModelPath:       "data/markov_model.json",
			AlertsPath:      "data/alerts.jsonl",
			ScoresPath:      "data/sequence_anomalies.jsonl",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Bucketing: BucketConfig{
			UserBuckets:  64,
			EventBuckets: 16,
		},
		Clickhouse: ClickhouseConfig{
			URL:         "http://localhost:8123",
			Database:    "ueba",
			EventsTable: "events",
			AlertsTable: "alerts",
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			AlertsTopic: "ueba.alerts",
		},
		Redis: RedisConfig{
			URL:      "redis://localhost:6379",
			PoolSize: 20,
			TTL:      24 * time.Hour,
		},
		Elasticsearch: ElasticsearchConfig{
			URL:   "http://localhost:9200",
			Index: "ueba-sequence-anomalies",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides. An empty path skips the file step; a named file
// that does not exist is an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UEBA_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("UEBA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("UEBA_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v, err := strconv.Atoi(os.Getenv("UEBA_GAP_SECONDS")); err == nil {
		cfg.Engine.GapSeconds = v
	}
	if v, err := strconv.Atoi(os.Getenv("UEBA_MARKOV_ORDER")); err == nil {
		cfg.Markov.Order = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("UEBA_DECAY_FACTOR"), 64); err == nil {
		cfg.Engine.DecayFactor = v
	}
	if v := os.Getenv("UEBA_CLICKHOUSE_URL"); v != "" {
		cfg.Clickhouse.URL = v
	}
	if v := os.Getenv("UEBA_CLICKHOUSE_PASSWORD"); v != "" {
		cfg.Clickhouse.Password = v
	}
	if v := os.Getenv("UEBA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("UEBA_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("UEBA_ELASTICSEARCH_URL"); v != "" {
		cfg.Elasticsearch.URL = v
	}
	if v := os.Getenv("UEBA_ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.GapSeconds <= 0 {
		return fmt.Errorf("engine.gap_seconds must be positive, got %d", c.Engine.GapSeconds)
	}
	if c.Engine.DecayFactor <= 0 || c.Engine.DecayFactor > 1 {
		return fmt.Errorf("engine.decay_factor must be in (0, 1], got %v", c.Engine.DecayFactor)
	}
	if c.Markov.Order != 1 && c.Markov.Order != 2 {
		return fmt.Errorf("markov.order must be 1 or 2, got %d", c.Markov.Order)
	}
	if c.Markov.FloorProb <= 0 || c.Markov.FloorProb >= 1 {
		return fmt.Errorf("markov.floor_probability must be in (0, 1), got %v", c.Markov.FloorProb)
	}
	if c.Engine.PeerColdStartHosts < 0 {
		return fmt.Errorf("engine.peer_cold_start_hosts must be non-negative, got %d", c.Engine.PeerColdStartHosts)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

// GetServerAddress returns the listen address for the serve command.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
