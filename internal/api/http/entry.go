package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MerlinMa/pals/internal/entry"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/internal/server"
	"github.com/MerlinMa/pals/pkg/types"
)

// CodeInvalidRequest reports a body that is not a JSON payload.
const CodeInvalidRequest = "INVALID_REQUEST"

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 32 << 20

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Handler serves the entry points of one Runtime.
type Handler struct {
	rt           *entry.Runtime
	log          logging.Logger
	maxBodyBytes int64
}

// NewHandler creates a handler for rt.
func NewHandler(rt *entry.Runtime, log logging.Logger, maxBodyBytes int64) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{rt: rt, log: log, maxBodyBytes: maxBodyBytes}
}

// Routes returns the API mux wrapped in the default middleware. A nil
// shutdown manager disables in-flight tracking.
func (h *Handler) Routes(sm *server.ShutdownManager) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/execute", h.Execute)
	api.HandleFunc("POST /v1/schedule", h.Schedule)
	api.HandleFunc("GET /v1/hello", h.Hello)
	api.HandleFunc("GET /v1/stats", h.Stats)

	var tracked http.Handler = api
	if sm != nil {
		tracked = server.ShutdownMiddleware(sm)(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", tracked)
	mux.HandleFunc("GET /health", h.Health)
	return DefaultMiddleware(h.log)(mux)
}

// Execute handles POST /v1/execute.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.rt.Execute(r.Context(), payload)
	if err != nil {
		h.log.Warn("execute failed", "error", err, "request_id", GetRequestID(r.Context()))
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Schedule handles POST /v1/schedule.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.rt.Schedule(r.Context(), payload)
	if err != nil {
		h.log.Warn("schedule failed", "error", err, "request_id", GetRequestID(r.Context()))
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Hello handles GET /v1/hello.
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rt.HelloWorld())
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.rt.Stats()
	if stats == nil {
		writeError(w, http.StatusNotFound, ErrorResponse{
			Error:     "stats are disabled",
			RequestID: GetRequestID(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusOK, stats.Snapshot())
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: "pals"})
}

// decode reads the request body as a payload. An empty body decodes to a
// nil payload so the entry points apply their own empty-input rules.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*types.ExtractionPayload, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, ErrorResponse{
			Error:     fmt.Sprintf("failed to read request body: %v", err),
			Code:      CodeInvalidRequest,
			RequestID: GetRequestID(r.Context()),
		})
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}

	payload, err := types.DecodePayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Error:     fmt.Sprintf("invalid request body: %v", err),
			Code:      CodeInvalidRequest,
			RequestID: GetRequestID(r.Context()),
		})
		return nil, false
	}
	return payload, true
}
