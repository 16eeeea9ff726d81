package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/util"
)

// ESClient indexes scored session anomalies into Elasticsearch so ranked
// sequences are searchable outside the JSONL artifact.
type ESClient struct {
	client *elasticsearch.Client
	config *config.ElasticsearchConfig
	logger *zap.Logger
}

func NewElasticsearchClient(cfg *config.Config, logger *zap.Logger) (*ESClient, error) {
	esConfig := cfg.Elasticsearch

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.IsDevelopment(),
		},
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esConfig.URL},
		Username:  esConfig.Username,
		Password:  esConfig.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	esClient := &ESClient{
		client: client,
		config: &esConfig,
		logger: logger,
	}

	if err := esClient.HealthCheck(context.Background()); err != nil {
		return nil, fmt.Errorf("elasticsearch connection test failed: %w", err)
	}

	util.Info("Elasticsearch client initialized", zap.String("url", esConfig.URL))
	return esClient, nil
}

// IndexScores bulk-indexes the ranked session scores.
func (e *ESClient) IndexScores(ctx context.Context, scores []model.SessionScore) error {
	if len(scores) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, s := range scores {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, e.config.Index, s.SessionID)
		doc, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal session score: %w", err)
		}
		buf.WriteString(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.config.Index),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index scores: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk error: %s", res.String())
	}

	util.Info("indexed session scores",
		zap.Int("count", len(scores)),
		zap.String("index", e.config.Index),
	)
	return nil
}

// HealthCheck verifies cluster reachability.
func (e *ESClient) HealthCheck(ctx context.Context) error {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to get cluster info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (e *ESClient) Close() {
	util.Info("Elasticsearch client shutdown")
}
