package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/model"
)

// ReadEvents loads canonical events from a JSONL artifact. A missing file
// is fatal; malformed records and records without a usable timestamp are
// discarded per-record and counted, never propagated.
func ReadEvents(path string, logger *zap.Logger) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	var events []model.Event
	dropped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			dropped++
			continue
		}
		if ev.Timestamp.IsZero() {
			dropped++
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	if dropped > 0 {
		logger.Warn("dropped malformed event records",
			zap.Int("dropped", dropped), zap.String("path", path))
	}
	logger.Info("loaded events",
		zap.Int("events", len(events)), zap.String("path", path))
	return events, nil
}

// writeJSONL replaces path with one JSON record per line, using the same
// write-then-rename policy as the snapshot artifacts.
func writeJSONL[T any](path string, items []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadScores loads a scored-sequences artifact, preserving its ranking.
func ReadScores(path string) ([]model.SessionScore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scores file: %w", err)
	}
	defer f.Close()

	var scores []model.SessionScore
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s model.SessionScore
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("failed to parse score record: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, scanner.Err()
}

// ReadAlerts loads an alerts artifact in emission order.
func ReadAlerts(path string) ([]model.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alerts file: %w", err)
	}
	defer f.Close()

	var alerts []model.Alert
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var a model.Alert
		if err := json.Unmarshal(line, &a); err != nil {
			return nil, fmt.Errorf("failed to parse alert record: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, scanner.Err()
}
