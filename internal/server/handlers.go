package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"label-processor/internal/database"
	"label-processor/internal/metrics"
	"label-processor/internal/parser"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxExtractBody   = 1 << 20
)

// DocumentSource is the read side of the processed-document ledger.
type DocumentSource interface {
	Recent(limit int) ([]database.Document, error)
	Failures(limit int) ([]database.Document, error)
	Stats() (*database.DocumentStats, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	IsHealthy() error
}

// Handlers serves the label API.
type Handlers struct {
	extractor *parser.Extractor
	documents DocumentSource
	health    HealthChecker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandlers creates the API handlers. documents and health may be nil, in
// which case the ledger endpoints answer 503.
func NewHandlers(documents DocumentSource, health HealthChecker, m *metrics.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		extractor: parser.NewExtractor(),
		documents: documents,
		health:    health,
		metrics:   m,
		logger:    logger,
	}
}

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// ExtractResponse wraps a report with its convenience fields.
type ExtractResponse struct {
	*parser.Report
	Success bool                    `json:"success"`
	Missing []parser.IdentifierKind `json:"missing,omitempty"`
}

// Extract handles POST /api/extract. A report with missing identifiers is
// still a 200; only a malformed request is an error.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExtractBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	report := h.extractor.Extract(req.Text, req.Filename)
	h.metrics.ObserveIdentifier(string(parser.KindOrderNumber), report.Order.Found)
	h.metrics.ObserveIdentifier(string(parser.KindTrackingNumber), report.Tracking.Found)
	if report.Order.Found {
		h.metrics.IncrementPatternHit(report.Order.Pattern)
	}

	h.logger.Debug("extracted identifiers",
		"filename", req.Filename,
		"order_found", report.Order.Found,
		"tracking_found", report.Tracking.Found)

	writeJSON(w, http.StatusOK, ExtractResponse{
		Report:  report,
		Success: report.Success(),
		Missing: report.Missing(),
	})
}

// Documents handles GET /api/documents. ?status=failed narrows to failures.
func (h *Handlers) Documents(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		writeError(w, http.StatusServiceUnavailable, "Ledger not configured")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var docs []database.Document
	switch status := r.URL.Query().Get("status"); status {
	case "":
		docs, err = h.documents.Recent(limit)
	case "failed", "failures":
		docs, err = h.documents.Failures(limit)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported status filter %q", status))
		return
	}
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []database.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// Stats handles GET /api/documents/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		writeError(w, http.StatusServiceUnavailable, "Ledger not configured")
		return
	}
	stats, err := h.documents.Stats()
	if err != nil {
		h.logger.Error("failed to compute document stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Patterns handles GET /api/patterns
func (h *Handlers) Patterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, parser.ListPatterns())
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Message  string `json:"message,omitempty"`
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "healthy", Database: "ok"}
	if h.health == nil {
		response.Database = "disabled"
		writeJSON(w, http.StatusOK, response)
		return
	}
	if err := h.health.IsHealthy(); err != nil {
		response.Status = "unhealthy"
		response.Database = "error"
		response.Message = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

var errInvalidLimit = errors.New("limit must be a positive integer")

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	return min(limit, maxListLimit), nil
}
