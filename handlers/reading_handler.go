package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phasewatch/analytics"
	"phasewatch/models"
)

const maxTableBytes = 32 << 20

// ReadingProcessor accepts live readings; *analytics.AnalyticsEngine.
type ReadingProcessor interface {
	ProcessReading(reading models.AngleReading) (bool, error)
}

// TableScorer scores a whole reading table; *analytics.Orchestrator.
type TableScorer interface {
	Score(ctx context.Context, table models.ReadingTable) (models.ScoreTable, error)
}

// AnalysisReader returns the latest verdict of a channel; *cache.RedisClient.
type AnalysisReader interface {
	GetAnalysis(ctx context.Context, channelID string) (*models.AnalysisResult, error)
}

type ReadingHandler struct {
	processor ReadingProcessor
	scorer    TableScorer
	analyses  AnalysisReader
}

// NewReadingHandler wires the handler. analyses may be nil when no cache is
// configured; /analyze then answers 503.
func NewReadingHandler(processor ReadingProcessor, scorer TableScorer, analyses AnalysisReader) *ReadingHandler {
	return &ReadingHandler{
		processor: processor,
		scorer:    scorer,
		analyses:  analyses,
	}
}

// NewRouter registers every route of the service.
func NewRouter(h *ReadingHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthCheck).Methods("GET")
	r.HandleFunc("/reading", h.HandleReading).Methods("POST")
	r.HandleFunc("/score", h.HandleScore).Methods("POST")
	r.HandleFunc("/analyze", h.HandleAnalyze).Methods("GET")
	r.Path("/metrics").Handler(promhttp.Handler())
	return r
}

func (h *ReadingHandler) HandleReading(w http.ResponseWriter, r *http.Request) {
	defer observe(r, time.Now())

	var reading models.AngleReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		fail(w, r, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if err := reading.Validate(); err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	accepted, err := h.processor.ProcessReading(reading)
	if err != nil {
		fail(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !accepted {
		readingsDroppedTotal.WithLabelValues(reading.ChannelID).Inc()
		fail(w, r, http.StatusTooManyRequests, "reading queue is full")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "accepted",
		"channel_id": reading.ChannelID,
	})
	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "200").Inc()
}

func (h *ReadingHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	defer observe(r, time.Now())

	var table models.ReadingTable
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTableBytes)).Decode(&table); err != nil {
		fail(w, r, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	scores, err := h.scorer.Score(r.Context(), table)
	if err != nil {
		var chErr *analytics.ChannelError
		if errors.Is(err, models.ErrUnsortedRows) || errors.As(err, &chErr) {
			fail(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		fail(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	for _, ch := range scores.Channels {
		n := 0
		for _, s := range scores.Column(ch) {
			if s.Defined {
				n++
			}
		}
		scoresComputedTotal.WithLabelValues(ch).Add(float64(n))
	}

	writeJSON(w, http.StatusOK, scores)
	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "200").Inc()
}

func (h *ReadingHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	defer observe(r, time.Now())

	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		fail(w, r, http.StatusBadRequest, "channel_id parameter is required")
		return
	}

	if h.analyses == nil {
		fail(w, r, http.StatusServiceUnavailable, "analysis cache is disabled")
		return
	}

	result, err := h.analyses.GetAnalysis(r.Context(), channelID)
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "Failed to get analysis: "+err.Error())
		return
	}
	if result == nil {
		fail(w, r, http.StatusNotFound, "no analysis for channel "+channelID)
		return
	}

	writeJSON(w, http.StatusOK, result)
	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, "200").Inc()
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func observe(r *http.Request, start time.Time) {
	requestDurationSeconds.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
}

func fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).Inc()
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
