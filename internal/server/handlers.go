package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"esports-aggregator/internal/api"
	"esports-aggregator/internal/constants"
	"esports-aggregator/internal/domain"
	"esports-aggregator/internal/scheduler"
	"esports-aggregator/internal/service"

	"github.com/rs/zerolog"
)

// Syncer is the part of the scheduler the HTTP surface drives.
type Syncer interface {
	Sync(ctx context.Context, force bool) scheduler.SyncResult
	History() []domain.SyncRun
}

// RunHistory reads persisted sync runs. It is optional.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

type Handler struct {
	agg      *service.Aggregator
	status   *service.StatusReporter
	trends   *service.TrendAnalyzer
	syncer   Syncer
	history  RunHistory
	registry *api.Registry
	logger   zerolog.Logger
}

func NewHandler(agg *service.Aggregator, status *service.StatusReporter, trends *service.TrendAnalyzer, syncer Syncer, history RunHistory, registry *api.Registry, logger zerolog.Logger) *Handler {
	return &Handler{
		agg:      agg,
		status:   status,
		trends:   trends,
		syncer:   syncer,
		history:  history,
		registry: registry,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

type recordsResponse[T any] struct {
	Game  domain.GameKind `json:"game,omitempty"`
	Count int             `json:"count"`
	service.Result[T]
}

// GetMatches serves GET /api/esport/live/matches?game=&team=&limit=&force_refresh=
func (h *Handler) GetMatches(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	q.Team = r.URL.Query().Get("team")

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	res, err := h.agg.Matches(ctx, q)
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recordsResponse[domain.NormalizedMatch]{Game: q.Game, Count: len(res.Records), Result: res})
}

// GetPlayers serves GET /api/esport/live/players?game=&player=&limit=&force_refresh=
func (h *Handler) GetPlayers(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	q.Player = r.URL.Query().Get("player")

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	res, err := h.agg.PlayerStats(ctx, q)
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recordsResponse[domain.NormalizedPlayerStat]{Game: q.Game, Count: len(res.Records), Result: res})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status.Report())
}

// GetTrends serves GET /api/esport/live/analytics/trends?game=&timeframe=
func (h *Handler) GetTrends(w http.ResponseWriter, r *http.Request) {
	var game domain.GameKind
	if raw := r.URL.Query().Get("game"); raw != "" {
		g, err := domain.ParseGame(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		game = g
	}

	report, err := h.trends.Report(game, r.URL.Query().Get("timeframe"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// PostSync serves POST /api/esport/live/sync?force=
func (h *Handler) PostSync(w http.ResponseWriter, r *http.Request) {
	force, err := parseBool(r, "force")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid force parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	res := h.syncer.Sync(ctx, force)
	code := http.StatusOK
	if res.Status == scheduler.SyncPending {
		code = http.StatusAccepted
	}
	zerolog.Ctx(r.Context()).Info().Bool("force", force).Str("status", string(res.Status)).Msg("sync requested")
	respondJSON(w, code, res)
}

// GetSyncHistory serves GET /api/esport/live/sync/history?limit=
func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, constants.SyncHistorySize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
		defer cancel()
		runs, err := h.history.Recent(ctx, limit)
		if err == nil {
			respondJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs), "persisted": true})
			return
		}
		h.logger.Warn().Err(err).Msg("failed to read persisted sync runs, using in-memory history")
	}

	runs := h.syncer.History()
	// newest first, matching the persisted listing
	out := make([]domain.SyncRun, 0, min(limit, len(runs)))
	for i := len(runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, runs[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": out, "count": len(out), "persisted": false})
}

type gameProvider struct {
	ID         string `json:"id"`
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Priority   int    `json:"priority"`
}

type gameInfo struct {
	ID        domain.GameKind `json:"id"`
	Name      string          `json:"name"`
	Providers []gameProvider  `json:"providers"`
}

// GetGames lists the supported games and the providers serving each.
func (h *Handler) GetGames(w http.ResponseWriter, r *http.Request) {
	games := make([]gameInfo, 0, len(domain.SupportedGames))
	for _, g := range domain.SupportedGames {
		info := gameInfo{ID: g, Name: g.DisplayName(), Providers: []gameProvider{}}
		for _, ad := range h.registry.All() {
			desc, ok := h.registry.Descriptor(ad.ID())
			if !ok || !desc.SupportsGame(g) {
				continue
			}
			info.Providers = append(info.Providers, gameProvider{
				ID:         desc.ID,
				Enabled:    desc.Enabled,
				Configured: desc.Configured(),
				Priority:   desc.Priority,
			})
		}
		games = append(games, info)
	}
	respondJSON(w, http.StatusOK, map[string]any{"games": games, "count": len(games)})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) parseQuery(w http.ResponseWriter, r *http.Request) (domain.Query, bool) {
	var q domain.Query

	if raw := r.URL.Query().Get("game"); raw != "" {
		game, err := domain.ParseGame(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return q, false
		}
		q.Game = game
	}

	limit, err := parseLimit(r, constants.DefaultLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	q.Limit = limit

	force, err := parseBool(r, "force_refresh")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid force_refresh parameter")
		return q, false
	}
	q.ForceRefresh = force
	return q, true
}

func (h *Handler) respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	switch {
	case errors.Is(err, domain.ErrUnsupportedGame):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoData):
		log.Warn().Err(err).Msg("no data available")
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("query failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseLimit clamps to [1, MaxLimit]; a non-integer value is an error.
func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid limit parameter")
	}
	return min(max(n, 1), constants.MaxLimit), nil
}

func parseBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
