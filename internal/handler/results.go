package handler

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/examgrader/internal/i18n"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/results"
)

type resultsResponse struct {
	SessionID    string                `json:"sessionId"`
	SubjectName  string                `json:"subjectName"`
	GradeLevel   string                `json:"gradeLevel"`
	Stats        results.Stats         `json:"stats"`
	ReviewNotice string                `json:"reviewNotice,omitempty"`
	Records      []model.StudentRecord `json:"records"`
}

// sortedRecords loads the session and applies the sort, dir and review query parameters.
func (h *Handler) sortedRecords(r *http.Request) (model.ExamSession, []model.StudentRecord, error) {
	sess, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		return model.ExamSession{}, nil, err
	}
	q := r.URL.Query()
	key, err := results.ParseSortKey(q.Get("sort"))
	if err != nil {
		return model.ExamSession{}, nil, err
	}
	dir, err := results.ParseDirection(q.Get("dir"))
	if err != nil {
		return model.ExamSession{}, nil, err
	}

	records := sess.StudentRecords
	if review, _ := strconv.ParseBool(q.Get("review")); review {
		records = results.NeedsReview(records)
	}
	return sess, results.SortBy(records, key, dir), nil
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, records, err := h.sortedRecords(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := resultsResponse{
		SessionID:   sess.ID,
		SubjectName: sess.SubjectName,
		GradeLevel:  sess.GradeLevel,
		Stats:       results.Summarize(sess.StudentRecords),
		Records:     records,
	}
	if resp.Stats.ReviewCount > 0 {
		resp.ReviewNotice = appI18n.Tp(r.Context(), "SheetsNeedReview", resp.Stats.ReviewCount)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sess, records, err := h.sortedRecords(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setAttachment(w, "text/csv; charset=utf-8", exportName(sess, "csv"))
	if err := results.WriteCSV(w, results.ToExportRows(records)); err != nil {
		slog.Error("write csv export", "session", sess.ID, "error", err)
	}
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	sess, records, err := h.sortedRecords(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", exportName(sess, "xlsx"))
	if err := results.WriteXLSX(w, results.ToExportRows(records)); err != nil {
		slog.Error("write xlsx export", "session", sess.ID, "error", err)
	}
}

func exportName(sess model.ExamSession, ext string) string {
	return fmt.Sprintf("%s_%s_results.%s", sess.SubjectName, sess.GradeLevel, ext)
}

func setAttachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}
