package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/models"
	"github.com/afroash/smoker-monitor/internal/monitor"
	"github.com/afroash/smoker-monitor/internal/notify"
	"github.com/afroash/smoker-monitor/internal/storage"
)

const (
	defaultAlertLimit   = 50
	maxAlertLimit       = 1000
	defaultHistoryHours = 24
)

// APIHandler serves the HTTP API over the live monitors and alert history
type APIHandler struct {
	stations  StationSource
	alerts    AlertReader
	history   HistoricalStore
	hub       *Hub
	logger    zerolog.Logger
	startedAt time.Time

	writer    WriterStats
	retention RetentionStats
	publisher PublisherStats
}

// NewAPIHandler creates a new API handler. history and hub may be nil.
func NewAPIHandler(stations StationSource, alerts AlertReader, history HistoricalStore, hub *Hub, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		stations:  stations,
		alerts:    alerts,
		history:   history,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// WithWriter reports w's counters on /health
func (api *APIHandler) WithWriter(w WriterStats) *APIHandler {
	api.writer = w
	return api
}

// WithRetention reports c's counters on /health
func (api *APIHandler) WithRetention(c RetentionStats) *APIHandler {
	api.retention = c
	return api
}

// WithPublisher reports p's counters on /health
func (api *APIHandler) WithPublisher(p PublisherStats) *APIHandler {
	api.publisher = p
	return api
}

// Router registers every route on a new mux router
func (api *APIHandler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", api.HandleHealth).Methods(http.MethodGet)
	r.Path("/metrics").Handler(promhttp.Handler())

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/stations", api.HandleStations).Methods(http.MethodGet)
	apiRouter.HandleFunc("/stations/{station}", api.HandleStation).Methods(http.MethodGet)
	apiRouter.HandleFunc("/alerts", api.HandleAlerts).Methods(http.MethodGet)
	apiRouter.HandleFunc("/alerts", api.HandleClearAlerts).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/alerts/history", api.HandleHistory).Methods(http.MethodGet)
	apiRouter.HandleFunc("/alerts/summary", api.HandleSummary).Methods(http.MethodGet)

	if api.hub != nil {
		r.Handle("/alerts/stream", api.hub)
	}

	return r
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status        string                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Stations      int                   `json:"stations"`
	StreamClients int                   `json:"stream_clients"`
	Clients       []ClientInfo          `json:"clients,omitempty"`
	Alerts        AlertStoreStats       `json:"alerts"`
	Storage       *storage.StorageStats `json:"storage,omitempty"`

	Writer    *storage.DBWriterStats         `json:"writer,omitempty"`
	Retention *storage.RetentionCleanerStats `json:"retention,omitempty"`
	Redis     *notify.RedisPublisherStats    `json:"redis,omitempty"`
}

// HandleHealth reports liveness and basic counters
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(api.startedAt).Seconds()),
		Stations:      len(api.stations.Snapshots()),
		Alerts:        api.alerts.Stats(),
	}
	if api.hub != nil {
		resp.Clients = api.hub.Clients()
		resp.StreamClients = len(resp.Clients)
	}
	if api.writer != nil {
		stats := api.writer.Stats()
		resp.Writer = &stats
	}
	if api.retention != nil {
		stats := api.retention.Stats()
		resp.Retention = &stats
	}
	if api.publisher != nil {
		stats := api.publisher.Stats()
		resp.Redis = &stats
	}
	if api.history != nil {
		stats, err := api.history.GetStorageStats()
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to read storage stats")
			resp.Status = "degraded"
		} else {
			resp.Storage = stats
		}
	}

	api.writeJSON(w, http.StatusOK, resp)
}

// HandleClearAlerts empties the in-memory recent alerts. History is kept.
func (api *APIHandler) HandleClearAlerts(w http.ResponseWriter, r *http.Request) {
	api.alerts.Clear()
	api.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Recent alerts cleared")
	w.WriteHeader(http.StatusNoContent)
}

// HandleStations returns a snapshot of every station
func (api *APIHandler) HandleStations(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, api.stations.Snapshots())
}

// StationDetail is a station snapshot plus its current window
type StationDetail struct {
	Snapshot monitor.Snapshot `json:"snapshot"`
	Window   []models.Reading `json:"window"`
}

// HandleStation returns one station with its window contents
func (api *APIHandler) HandleStation(w http.ResponseWriter, r *http.Request) {
	id := models.StationID(mux.Vars(r)["station"])
	m, ok := api.stations.Monitor(id)
	if !ok {
		api.writeError(w, http.StatusNotFound, "unknown_station", "Unknown station: "+string(id))
		return
	}

	api.writeJSON(w, http.StatusOK, StationDetail{
		Snapshot: m.Snapshot(),
		Window:   m.Readings(),
	})
}

// HandleAlerts returns recent alerts from memory
func (api *APIHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	station := models.StationID(r.URL.Query().Get("station"))
	limit := parseLimit(r.URL.Query().Get("limit"), defaultAlertLimit)

	api.writeJSON(w, http.StatusOK, api.alerts.GetRecent(station, limit))
}

// HandleHistory returns persisted alerts from the last hours
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		api.writeError(w, http.StatusServiceUnavailable, "history_disabled", "Alert history is not enabled")
		return
	}

	query := r.URL.Query()
	station := models.StationID(query.Get("station"))
	limit := parseLimit(query.Get("limit"), defaultAlertLimit)

	hours := defaultHistoryHours
	if h := query.Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed <= 0 {
			api.writeError(w, http.StatusBadRequest, "invalid_hours", "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)

	// An explicit range wins over hours; replayed logs carry old timestamps.
	if qs, qe := query.Get("start"), query.Get("end"); qs != "" || qe != "" {
		var err error
		if start, err = parseRangeBound(qs, time.Time{}); err != nil {
			api.writeError(w, http.StatusBadRequest, "invalid_range", "start must be RFC3339")
			return
		}
		if end, err = parseRangeBound(qe, time.Now().UTC()); err != nil {
			api.writeError(w, http.StatusBadRequest, "invalid_range", "end must be RFC3339")
			return
		}
		if end.Before(start) {
			api.writeError(w, http.StatusBadRequest, "invalid_range", "end must not be before start")
			return
		}
	}

	alerts, err := api.history.GetAlertsInRange(station, start, end, limit)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query alert history")
		api.writeError(w, http.StatusInternalServerError, "query_failed", "Failed to query alert history")
		return
	}

	api.writeJSON(w, http.StatusOK, alerts)
}

// HandleSummary returns per-station alert counts from history
func (api *APIHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		api.writeError(w, http.StatusServiceUnavailable, "history_disabled", "Alert history is not enabled")
		return
	}

	summary, err := api.history.GetAlertSummary(models.StationID(r.URL.Query().Get("station")))
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query alert summary")
		api.writeError(w, http.StatusInternalServerError, "query_failed", "Failed to query alert summary")
		return
	}
	if summary == nil {
		summary = []storage.AlertSummary{}
	}

	api.writeJSON(w, http.StatusOK, summary)
}

// parseRangeBound parses an RFC3339 bound, returning def when s is empty
func parseRangeBound(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseLimit reads a positive limit, capped at maxAlertLimit
func parseLimit(s string, def int) int {
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > maxAlertLimit {
		return maxAlertLimit
	}
	return limit
}

func (api *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (api *APIHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	api.writeJSON(w, status, models.APIError{Code: code, Message: message})
}
