package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/bucketing"
	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/util"
)

// ClickHouseClient reads canonical events from and writes alerts to
// ClickHouse. Both roles are optional; JSONL artifacts remain the
// primary path.
type ClickHouseClient struct {
	conn   driver.Conn
	config *config.ClickhouseConfig
}

func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{extractHostPort(chConfig.URL)},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      30 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	if cfg.IsProduction() || strings.HasPrefix(chConfig.URL, "https://") {
		opts.TLS = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: extractHostname(chConfig.URL),
		}
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse client initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database),
		zap.Bool("tls_enabled", opts.TLS != nil),
	)

	return &ClickHouseClient{
		conn:   conn,
		config: &chConfig,
	}, nil
}

// QueryEvents pulls canonical events ordered by timestamp, the rule
// engine's processing precondition.
func (c *ClickHouseClient) QueryEvents(ctx context.Context) ([]model.Event, error) {
	query := fmt.Sprintf(`
		SELECT timestamp, user_id, event_type, action, host, src_ip, process, resource, status, session_id
		FROM %s
		ORDER BY timestamp`, c.config.EventsTable)

	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(
			&ev.Timestamp, &ev.UserID, &ev.EventType, &ev.Action,
			&ev.Host, &ev.SrcIP, &ev.Process, &ev.Resource,
			&ev.Status, &ev.SessionID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}
	return events, nil
}

// InsertAlerts batch-inserts the run's alerts, sharded by user bucket.
func (c *ClickHouseClient) InsertAlerts(ctx context.Context, alerts []model.Alert, buckets *bucketing.Manager) error {
	if len(alerts) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (user_bucket, event_date, detected_at, alert_type, user_id, details)",
		c.config.AlertsTable)

	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare alert batch: %w", err)
	}

	for _, a := range alerts {
		if err := batch.Append(
			uint32(buckets.UserBucket(a.UserID)),
			buckets.DateBucket(a.DetectedAt),
			a.DetectedAt,
			a.AlertType,
			a.UserID,
			a.Details,
		); err != nil {
			return fmt.Errorf("failed to append alert to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send alert batch: %w", err)
	}

	util.Info("inserted alerts into ClickHouse",
		zap.Int("count", len(alerts)),
		zap.String("table", c.config.AlertsTable),
	)
	return nil
}

// HealthCheck verifies ClickHouse connectivity.
func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close gracefully closes the connection.
func (c *ClickHouseClient) Close() error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			util.Error("failed to close ClickHouse connection", zap.Error(err))
			return err
		}
		util.Info("ClickHouse connection closed")
	}
	return nil
}

func extractHostPort(url string) string {
	cleanURL := strings.TrimPrefix(url, "http://")
	cleanURL = strings.TrimPrefix(cleanURL, "https://")
	if !strings.Contains(cleanURL, ":") {
		if strings.HasPrefix(url, "https://") {
			return cleanURL + ":8443"
		}
		return cleanURL + ":8123"
	}
	return cleanURL
}

func extractHostname(url string) string {
	hostPort := extractHostPort(url)
	return strings.Split(hostPort, ":")[0]
}
