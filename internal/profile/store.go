package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/util"
)

// Store loads and persists the profile snapshot, keyed by user_id. The
// snapshot survives across runs; a missing file means an empty store, and
// writes replace the file atomically.
type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the snapshot. A missing or unreadable file yields an empty
// profile set, not an error, matching a first run.
func (s *Store) Load() map[string]*model.Profile {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read profile snapshot, starting empty",
				zap.String("path", s.path), zap.Error(err))
		} else {
			s.logger.Info("no profile snapshot found, starting empty",
				zap.String("path", s.path))
		}
		return make(map[string]*model.Profile)
	}

	profiles := make(map[string]*model.Profile)
	if err := json.Unmarshal(data, &profiles); err != nil {
		s.logger.Warn("profile snapshot is corrupt, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return make(map[string]*model.Profile)
	}

	// Backfill containers dropped by older snapshots so the append-only
	// invariant holds against nil slices.
	for userID, p := range profiles {
		if p.UserID == "" {
			p.UserID = userID
		}
		if p.KnownIPs == nil {
			p.KnownIPs = []string{}
		}
		if p.KnownHosts == nil {
			p.KnownHosts = []string{}
		}
	}

	s.logger.Info("loaded profile snapshot",
		zap.String("path", s.path), zap.Int("profiles", len(profiles)))
	return profiles
}

// Save atomically replaces the snapshot with the given profiles.
func (s *Store) Save(profiles map[string]*model.Profile) error {
	if err := util.WriteJSONAtomic(s.path, profiles); err != nil {
		return fmt.Errorf("failed to save profile snapshot: %w", err)
	}
	s.logger.Info("saved profile snapshot",
		zap.String("path", s.path), zap.Int("profiles", len(profiles)))
	return nil
}
