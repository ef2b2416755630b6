package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/examgrader/internal/i18n"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

type createSessionRequest struct {
	SubjectName string `json:"subjectName"`
	GradeLevel  string `json:"gradeLevel"`
}

type batchResponse struct {
	Attempted int                   `json:"attempted"`
	Succeeded int                   `json:"succeeded"`
	Progress  []model.Progress      `json:"progress"`
	Records   []model.StudentRecord `json:"records"`
	Message   string                `json:"message"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.All(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, &model.ValidationError{Field: "body", Reason: "invalid JSON", Err: err})
		return
	}
	sess, err := h.store.Create(r.Context(), req.SubjectName, req.GradeLevel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		writeJSON(w, http.StatusPreconditionRequired, errorResponse{
			Error:   "confirmation required",
			Message: appI18n.T(r.Context(), "ErrConfirmDelete"),
		})
		return
	}
	id := chi.URLParam(r, "sessionID")
	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.grader.DiscardPreviews(sess.StudentRecords)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMasterKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, err := h.store.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	images, err := h.readImages(w, r, "image")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(images) != 1 {
		writeError(w, r, &model.ValidationError{Field: "image", Reason: "exactly one master key image is required"})
		return
	}

	cfg, err := h.ingestor.Ingest(r.Context(), images[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.AttachMasterConfig(r.Context(), id, cfg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.MasterConfig == nil {
		writeError(w, r, fmt.Errorf("session %s: %w", id, model.ErrNoMasterKey))
		return
	}

	images, err := h.readImages(w, r, "images")
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A started batch runs to completion and is persisted even if the client
	// disconnects.
	ctx := context.WithoutCancel(r.Context())
	resp := batchResponse{Progress: make([]model.Progress, 0, len(images))}
	batch, err := h.grader.Process(ctx, images, sess.MasterConfig, func(p model.Progress) {
		resp.Progress = append(resp.Progress, p)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.AppendRecords(ctx, id, batch.Records); err != nil {
		h.grader.DiscardPreviews(batch.Records)
		writeError(w, r, err)
		return
	}

	resp.Attempted, resp.Succeeded, resp.Records = batch.Attempted, batch.Succeeded(), batch.Records
	resp.Message = appI18n.Td(r.Context(), "BatchSummary", map[string]any{
		"Succeeded": resp.Succeeded,
		"Attempted": resp.Attempted,
	})
	writeJSON(w, http.StatusOK, resp)
}

// readImages reads every file uploaded under field, in form order.
func (h *Handler) readImages(w http.ResponseWriter, r *http.Request, field string) ([]sheet.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, &model.ValidationError{Field: field, Reason: "invalid or oversized multipart upload", Err: err}
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, &model.ValidationError{Field: field, Reason: "no files uploaded"}
	}

	images := make([]sheet.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		images = append(images, sheet.New(fh.Filename, data))
	}
	return images, nil
}
