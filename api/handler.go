// Package api exposes the upload service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/protocol"
	"github.com/franksops/gfupload/store"
)

// Uploads starts and cancels tasks.
type Uploads interface {
	Start(params engine.Parameters, uploader engine.Uploader) (string, error)
	Cancel(id string) bool
	Stats() engine.Stats
}

// History reads the task journal.
type History interface {
	Lookup(id string) (*store.TaskRecord, error)
	List() ([]*store.TaskRecord, error)
}

// UploaderFactory returns the body for a protocol name.
type UploaderFactory func(name string) (engine.Uploader, error)

// Handler handles upload related HTTP requests
type Handler struct {
	uploads   Uploads
	history   History
	uploaders UploaderFactory
	defaults  Defaults
	validator *validator.Validate
	logger    *log.Logger
}

// NewHandler creates a new Handler
func NewHandler(uploads Uploads, history History, uploaders UploaderFactory, defaults Defaults, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		uploads:   uploads,
		history:   history,
		uploaders: uploaders,
		defaults:  defaults,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.WithPrefix("api"),
	}
}

// Routes returns the router serving the handler.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/uploads", func(r chi.Router) {
		r.Post("/", h.StartUpload)
		r.Get("/", h.ListUploads)
		r.Get("/{id}", h.GetUpload)
		r.Delete("/{id}", h.CancelUpload)
	})

	r.Get("/stats", h.GetStats)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			h.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}

// StartUpload handles POST /uploads requests
func (h *Handler) StartUpload(w http.ResponseWriter, r *http.Request) {
	var req StartUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	params, err := req.parameters(h.defaults)
	if err != nil {
		h.respondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	uploader, err := h.uploaders(params.Protocol)
	if err != nil {
		h.respondWithError(w, r, statusFor(err), err.Error())
		return
	}

	id, err := h.uploads.Start(params, uploader)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to start upload", "error", err)
		}
		h.respondWithError(w, r, status, err.Error())
		return
	}

	h.logger.Info("upload queued", "task_id", id, "files", len(params.Files), "destination", params.Destination)
	h.respondWithJSON(w, http.StatusAccepted, StartUploadResponse{ID: id})
}

// CancelUpload handles DELETE /uploads/{id} requests
func (h *Handler) CancelUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.uploads.Cancel(id) {
		h.respondWithError(w, r, http.StatusNotFound, "Upload not found or already finished")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetUpload handles GET /uploads/{id} requests
func (h *Handler) GetUpload(w http.ResponseWriter, r *http.Request) {
	record, err := h.history.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to read journal", "error", err)
		}
		h.respondWithError(w, r, status, "Upload not found")
		return
	}
	h.respondWithJSON(w, http.StatusOK, record)
}

// ListUploads handles GET /uploads requests
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.List()
	if err != nil {
		h.logger.Error("failed to read journal", "error", err)
		h.respondWithError(w, r, http.StatusInternalServerError, "Failed to list uploads")
		return
	}
	if records == nil {
		records = []*store.TaskRecord{}
	}
	h.respondWithJSON(w, http.StatusOK, records)
}

// GetStats handles GET /stats requests
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.uploads.Stats())
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidParameters),
		errors.Is(err, engine.ErrEmptyPath),
		errors.Is(err, protocol.ErrUnknownProtocol):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrTaskExists):
		return http.StatusConflict
	case errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrQueueFull),
		errors.Is(err, engine.ErrServiceStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
