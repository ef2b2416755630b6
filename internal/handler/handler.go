// Package handler serves the grading workflow as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examgrader/internal/grading"
	appI18n "github.com/pavelanni/examgrader/internal/i18n"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/store"
)

const defaultMaxUpload = 64 << 20

// Config holds HTTP-level settings.
type Config struct {
	// AdminPasswordHash is a bcrypt hash; empty disables authentication.
	AdminPasswordHash []byte
	// MaxUploadBytes caps a multipart request body. Zero means 64 MiB.
	MaxUploadBytes int64
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	ingestor *grading.Ingestor
	grader   *grading.Grader
	config   Config
}

// New creates a new Handler.
func New(s *store.Store, in *grading.Ingestor, g *grading.Grader, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	return &Handler{store: s, ingestor: in, grader: g, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		langs := []string{}
		for _, tag := range appI18n.Languages() {
			langs = append(langs, tag.String())
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "languages": langs})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireTeacher)

		r.Get("/sessions", h.handleListSessions)
		r.Post("/sessions", h.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDeleteSession)
			r.Post("/master-key", h.handleMasterKey)
			r.Post("/batch", h.handleBatch)
			r.Get("/results", h.handleResults)
			r.Get("/export.csv", h.handleExportCSV)
			r.Get("/export.xlsx", h.handleExportXLSX)
		})
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps the error taxonomy to a status code and a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve     *model.ValidationError
		re     *model.RecognitionError
		pe     *model.PersistenceError
		ce     *model.CameraAccessError
		status int
		msg    string
	)
	ctx := r.Context()
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, msg = http.StatusNotFound, appI18n.T(ctx, "ErrSessionNotFound")
	case errors.Is(err, model.ErrNoMasterKey):
		status, msg = http.StatusConflict, appI18n.T(ctx, "ErrNoMasterKey")
	case errors.Is(err, model.ErrEmptyKey):
		status, msg = http.StatusUnprocessableEntity, appI18n.T(ctx, "ErrEmptyKey")
	case errors.As(err, &ve):
		status, msg = http.StatusBadRequest, appI18n.Td(ctx, "ErrInvalidRequest", map[string]any{"Reason": ve.Reason})
	case errors.As(err, &re), errors.As(err, &ce):
		status, msg = http.StatusBadGateway, appI18n.T(ctx, "ErrRecognition")
	case errors.As(err, &pe):
		status, msg = http.StatusInternalServerError, appI18n.T(ctx, "ErrStorage")
	default:
		status, msg = http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Message: msg})
}
