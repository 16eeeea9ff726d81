package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/util"
)

// AlertProducer publishes rule-engine alerts to a Kafka topic, one
// message per alert keyed by user_id so a user's alerts stay ordered
// within a partition.
type AlertProducer struct {
	writer *kafka.Writer
	config *config.KafkaConfig
	logger *zap.Logger
}

func NewAlertProducer(cfg *config.Config, logger *zap.Logger) (*AlertProducer, error) {
	kafkaConfig := cfg.Kafka
	if len(kafkaConfig.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.AlertsTopic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Kafka alert producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.AlertsTopic),
	)

	return &AlertProducer{
		writer: writer,
		config: &kafkaConfig,
		logger: logger,
	}, nil
}

// PublishAlerts writes the run's alerts to the configured topic.
func (p *AlertProducer) PublishAlerts(ctx context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(a.UserID),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish alerts: %w", err)
	}

	util.Info("published alerts to Kafka",
		zap.Int("count", len(alerts)),
		zap.String("topic", p.config.AlertsTopic),
	)
	return nil
}

// HealthCheck dials the first broker and reads partition metadata.
func (p *AlertProducer) HealthCheck(ctx context.Context) error {
	dialer := &kafka.Dialer{
		Timeout:   5 * time.Second,
		DualStack: true,
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read kafka partitions: %w", err)
	}
	return nil
}

func (p *AlertProducer) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			util.Error("failed to close Kafka producer", zap.Error(err))
			return err
		}
		util.Info("Kafka producer closed")
	}
	return nil
}
