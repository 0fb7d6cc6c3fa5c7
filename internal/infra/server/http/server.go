// Package httpserver exposes the record assembler and the record store over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/coachpo/assetproof/internal/domain/recordstore"
	"github.com/coachpo/assetproof/internal/domain/schema"
)

const (
	defaultMaxBodyBytes int64 = 8 << 20 // 8 MiB

	apiPrefix         = "/v1"
	recordsRoute      = "/records"
	recordDetailRoute = recordsRoute + "/{id}"
	recordsPath       = apiPrefix + recordsRoute
	healthPath        = "/healthz"
	metricsPath       = "/metrics"

	// RecordIDHeader carries the id of a stored record.
	RecordIDHeader = "X-Record-Id"
)

// Processor turns one encoded invocation into a public record.
type Processor interface {
	Process(ctx context.Context, input []byte) (schema.PublicRecord, error)
}

// Options configures the handler.
type Options struct {
	Processor    Processor
	Store        recordstore.Store
	Logger       *zerolog.Logger
	Registry     *prometheus.Registry
	RateLimit    float64
	RateBurst    int
	MaxBodyBytes int64
}

type httpServer struct {
	processor    Processor
	store        recordstore.Store
	logger       zerolog.Logger
	maxBodyBytes int64
}

type entryPayload struct {
	ID        string              `json:"id"`
	ProjectID string              `json:"project_id"`
	Status    int16               `json:"status"`
	Digest    string              `json:"digest"`
	CreatedAt time.Time           `json:"created_at"`
	Record    schema.PublicRecord `json:"record"`
}

// NewHandler creates the HTTP handler serving the record API, health and metrics.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Processor == nil {
		return nil, errors.New("httpserver: processor required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics, err := newRequestMetrics(registry)
	if err != nil {
		return nil, err
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	server := &httpServer{processor: opts.Processor, store: opts.Store, logger: logger, maxBodyBytes: maxBody}
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.Use(metrics.middleware)

	router.HandleFunc(healthPath, server.health).Methods(http.MethodGet)
	router.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix(apiPrefix).Subrouter()
	api.Use(newAdmission(opts.RateLimit, opts.RateBurst, logger).middleware)
	api.HandleFunc(recordsRoute, server.createRecord).Methods(http.MethodPost)
	api.HandleFunc(recordsRoute, server.listRecords).Methods(http.MethodGet)
	api.HandleFunc(recordDetailRoute, server.getRecord).Methods(http.MethodGet)

	return withCORS(router), nil
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) createRecord(w http.ResponseWriter, r *http.Request) {
	limitRequestBody(w, r, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	record, err := s.processor.Process(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	encoded, err := record.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.store != nil {
		entry, err := s.store.Save(r.Context(), record)
		if err != nil {
			s.logger.Error().Err(err).Str("project", record.ProjectID).Msg("persist record")
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("persist record: %v", err))
			return
		}
		w.Header().Set(RecordIDHeader, entry.ID.String())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}

func (s *httpServer) getRecord(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	entry, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toPayload(entry))
}

func (s *httpServer) listRecords(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, toPayload(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": payload})
}

func (s *httpServer) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "record store disabled")
		return false
	}
	return true
}

func toPayload(entry recordstore.Entry) entryPayload {
	return entryPayload{
		ID:        entry.ID.String(),
		ProjectID: entry.ProjectID,
		Status:    entry.Status,
		Digest:    entry.Digest,
		CreatedAt: entry.CreatedAt.UTC(),
		Record:    entry.Record,
	}
}

func limitRequestBody(w http.ResponseWriter, r *http.Request, limit int64) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
