package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/bucketing"
	"github.com/nihams/ueba/internal/client"
	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/pipeline"
	"github.com/nihams/ueba/internal/profile"
)

// AnalyticsHandler serves the read-only JSON surface over the engine's
// run artifacts: profiles, alerts and ranked session anomalies. The
// Redis cache, when connected, answers single-profile lookups before
// the snapshot file is consulted.
type AnalyticsHandler struct {
	cfg     *config.Config
	redis   *client.RedisClient // nil when the cache is disabled
	buckets *bucketing.Manager
	logger  *zap.Logger
}

func NewAnalyticsHandler(cfg *config.Config, redisClient *client.RedisClient, buckets *bucketing.Manager, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		cfg:     cfg,
		redis:   redisClient,
		buckets: buckets,
		logger:  logger,
	}
}

// RegisterRoutes mounts the analytics endpoints on the given router.
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles", h.ListProfiles)
	r.Get("/profiles/{userID}", h.GetProfile)
	r.Get("/alerts", h.ListAlerts)
	r.Get("/sequences", h.ListSequences)
}

// ListProfiles returns every profile in the snapshot, ordered by
// descending risk score.
func (h *AnalyticsHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	store := profile.NewStore(h.cfg.IO.ProfilePath, h.logger)
	profiles := store.Load()

	list := make([]*model.Profile, 0, len(profiles))
	for _, p := range profiles {
		list = append(list, p)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].RiskScore != list[j].RiskScore {
			return list[i].RiskScore > list[j].RiskScore
		}
		return list[i].UserID < list[j].UserID
	})

	h.respondJSON(w, http.StatusOK, list)
}

// GetProfile returns one user's profile, preferring the Redis cache.
func (h *AnalyticsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user id is required")
		return
	}

	if h.redis != nil {
		p, err := h.redis.GetProfile(r.Context(), userID, h.buckets)
		if err != nil {
			h.logger.Warn("profile cache lookup failed, falling back to snapshot",
				zap.String("user_id", userID), zap.Error(err))
		} else if p != nil {
			h.respondJSON(w, http.StatusOK, p)
			return
		}
	}

	store := profile.NewStore(h.cfg.IO.ProfilePath, h.logger)
	profiles := store.Load()
	p, ok := profiles[userID]
	if !ok {
		h.respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// ListAlerts returns the current run's alerts in emission order.
func (h *AnalyticsHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := pipeline.ReadAlerts(h.cfg.IO.AlertsPath)
	if err != nil {
		h.logger.Warn("alerts artifact unavailable", zap.Error(err))
		h.respondJSON(w, http.StatusOK, []model.Alert{})
		return
	}
	h.respondJSON(w, http.StatusOK, alerts)
}

// ListSequences returns ranked session anomalies, optionally truncated
// by a ?limit query parameter.
func (h *AnalyticsHandler) ListSequences(w http.ResponseWriter, r *http.Request) {
	scores, err := pipeline.ReadScores(h.cfg.IO.ScoresPath)
	if err != nil {
		h.logger.Warn("scores artifact unavailable", zap.Error(err))
		h.respondJSON(w, http.StatusOK, []model.SessionScore{})
		return
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(scores) {
			scores = scores[:limit]
		}
	}

	h.respondJSON(w, http.StatusOK, scores)
}

func (h *AnalyticsHandler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
