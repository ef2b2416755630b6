package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examgrader/internal/grading"
	appI18n "github.com/pavelanni/examgrader/internal/i18n"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
	"github.com/pavelanni/examgrader/internal/storage"
	"github.com/pavelanni/examgrader/internal/store"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

// fakeRecognizer reads the master key and sheets from canned responses keyed by file name.
type fakeRecognizer struct {
	key    model.KeyExtraction
	sheets map[string]model.SheetExtraction
	// graded runs after each answer sheet call.
	graded func(name string)
	calls  int
}

func (f *fakeRecognizer) ReadMasterKey(context.Context, sheet.Image) (model.KeyExtraction, error) {
	return f.key, nil
}

func (f *fakeRecognizer) ReadAnswerSheet(ctx context.Context, img sheet.Image, _ []int) (model.SheetExtraction, error) {
	f.calls++
	if f.graded != nil {
		defer f.graded(img.Name)
	}
	if err := ctx.Err(); err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	ext, ok := f.sheets[img.Name]
	if !ok {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: errors.New("unreadable")}
	}
	return ext, nil
}

type testServer struct {
	*httptest.Server
	rec    *fakeRecognizer
	store  *store.Store
	router http.Handler
}

func newTestServer(t *testing.T, password string) *testServer {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	backend, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	s := store.New(backend, "")
	t.Cleanup(func() { s.Close() })

	rec := &fakeRecognizer{
		key: model.KeyExtraction{Answers: []model.KeyAnswer{
			{QuestionNumber: 1, Answer: "A"},
			{QuestionNumber: 2, Answer: "B"},
		}},
		sheets: map[string]model.SheetExtraction{},
	}
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h := New(s, grading.NewIngestor(rec, nil), grading.NewGrader(rec), Config{AdminPasswordHash: hash})

	r := chi.NewRouter()
	r.Use(appI18n.Middleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, rec: rec, store: s, router: r}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func multipartBody(t *testing.T, field string, names ...string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(pngBytes)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func createSession(t *testing.T, ts *testServer) model.ExamSession {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/sessions", strings.NewReader(`{"subjectName":"Math","gradeLevel":"P6"}`), "application/json")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	return decode[model.ExamSession](t, resp)
}

func TestGradingWorkflow(t *testing.T) {
	ts := newTestServer(t, "")
	sess := createSession(t, ts)

	// Grading before a key is attached is a conflict.
	body, ct := multipartBody(t, "images", "s1.png")
	if resp := ts.do(t, http.MethodPost, "/sessions/"+sess.ID+"/batch", body, ct); resp.StatusCode != http.StatusConflict {
		t.Errorf("batch without key: status %d, want 409", resp.StatusCode)
	}

	body, ct = multipartBody(t, "image", "key.png")
	resp := ts.do(t, http.MethodPost, "/sessions/"+sess.ID+"/master-key", body, ct)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("master key: status %d", resp.StatusCode)
	}
	cfg := decode[model.MasterConfig](t, resp)
	if cfg.CorrectAnswers[1] != "A" || cfg.CorrectAnswers[2] != "B" {
		t.Errorf("master key = %v", cfg.CorrectAnswers)
	}

	ts.rec.sheets["s1.png"] = model.SheetExtraction{StudentName: "Ann", StudentID: "S10", Results: []model.ExtractedAnswer{
		{QuestionNumber: 1, StudentAnswer: "A"}, {QuestionNumber: 2, StudentAnswer: "B"},
	}}
	ts.rec.sheets["s3.png"] = model.SheetExtraction{StudentName: "O'Brien, Pat", StudentID: "S2", Results: []model.ExtractedAnswer{
		{QuestionNumber: 1, StudentAnswer: "A", IsAnomalous: true, AnomalyReason: "two marks"},
		{QuestionNumber: 2, StudentAnswer: "B"},
	}}

	body, ct = multipartBody(t, "images", "s1.png", "s2.png", "s3.png")
	resp = ts.do(t, http.MethodPost, "/sessions/"+sess.ID+"/batch", body, ct)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch: status %d", resp.StatusCode)
	}
	batch := decode[batchResponse](t, resp)
	if batch.Attempted != 3 || batch.Succeeded != 2 || len(batch.Records) != 2 {
		t.Errorf("batch = attempted %d succeeded %d records %d", batch.Attempted, batch.Succeeded, len(batch.Records))
	}
	if len(batch.Progress) != 3 || batch.Progress[2] != (model.Progress{Current: 3, Total: 3}) {
		t.Errorf("progress = %v", batch.Progress)
	}
	if batch.Message != "Graded 2 of 3 sheets." {
		t.Errorf("message = %q", batch.Message)
	}

	resp = ts.do(t, http.MethodGet, "/sessions/"+sess.ID+"/results?sort=student_id", nil, "")
	res := decode[resultsResponse](t, resp)
	if len(res.Records) != 2 || res.Records[0].StudentID != "S2" || res.Records[1].StudentID != "S10" {
		t.Errorf("sorted records = %+v", res.Records)
	}
	if res.Stats.Count != 2 || *res.Stats.Max != 2 || *res.Stats.Average != 1.5 || res.Stats.ReviewCount != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.ReviewNotice != "1 sheet needs review." {
		t.Errorf("review notice = %q", res.ReviewNotice)
	}

	resp = ts.do(t, http.MethodGet, "/sessions/"+sess.ID+"/results?review=true", nil, "")
	if res := decode[resultsResponse](t, resp); len(res.Records) != 1 || res.Records[0].StudentID != "S2" {
		t.Errorf("review filter = %+v", res.Records)
	}

	resp = ts.do(t, http.MethodGet, "/sessions/"+sess.ID+"/export.csv?sort=score&dir=desc", nil, "")
	if !strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment") {
		t.Errorf("Content-Disposition = %q", resp.Header.Get("Content-Disposition"))
	}
	csvData, _ := io.ReadAll(resp.Body)
	want := "\ufeffid,name,score,total,note\nS10,Ann,2,2,ok\nS2,\"O'Brien, Pat\",1,2,needs review\n"
	if string(csvData) != want {
		t.Errorf("csv =\n%q\nwant\n%q", csvData, want)
	}

	resp = ts.do(t, http.MethodGet, "/sessions/"+sess.ID+"/export.xlsx", nil, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml") {
		t.Errorf("xlsx export: status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestBatchSurvivesClientDisconnect(t *testing.T) {
	ts := newTestServer(t, "")
	sess := createSession(t, ts)
	key := model.MasterConfig{CorrectAnswers: map[int]string{1: "A", 2: "B"}}
	if err := ts.store.AttachMasterConfig(context.Background(), sess.ID, key); err != nil {
		t.Fatalf("AttachMasterConfig: %v", err)
	}
	names := []string{"s1.png", "s2.png", "s3.png"}
	for i, name := range names {
		ts.rec.sheets[name] = model.SheetExtraction{
			StudentName: name,
			StudentID:   string(rune('1' + i)),
			Results:     []model.ExtractedAnswer{{QuestionNumber: 1, StudentAnswer: "A"}},
		}
	}

	// The client goes away once the first sheet is graded.
	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts.rec.graded = func(name string) {
		if name == "s1.png" {
			cancel()
		}
	}

	body, ct := multipartBody(t, "images", names...)
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/batch", body).WithContext(reqCtx)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("batch: status %d, want 200", w.Code)
	}
	if ts.rec.calls != 3 {
		t.Errorf("recognizer calls = %d, want 3", ts.rec.calls)
	}
	got, err := ts.store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.StudentRecords) != 3 {
		t.Errorf("persisted records = %d, want 3", len(got.StudentRecords))
	}
}

// flakyBackend fails every snapshot write once failWrites is set.
type flakyBackend struct {
	store.Backend
	failWrites atomic.Bool
}

func (b *flakyBackend) CompareAndSwap(ctx context.Context, ns string, data []byte, expect int64) error {
	if b.failWrites.Load() {
		return errors.New("disk full")
	}
	return b.Backend.CompareAndSwap(ctx, ns, data, expect)
}

func TestBatchSaveFailureDiscardsPreviews(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	backend := &flakyBackend{Backend: db}
	s := store.New(backend, "")
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	sess, err := s.Create(ctx, "Math", "P6")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.AttachMasterConfig(ctx, sess.ID, model.MasterConfig{CorrectAnswers: map[int]string{1: "A"}}); err != nil {
		t.Fatalf("AttachMasterConfig: %v", err)
	}

	previewDir := t.TempDir()
	blobs, err := storage.NewFSStore(previewDir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	rec := &fakeRecognizer{sheets: map[string]model.SheetExtraction{
		"s1.png": {StudentName: "Ann", StudentID: "1", Results: []model.ExtractedAnswer{{QuestionNumber: 1, StudentAnswer: "A"}}},
	}}
	h := New(s, grading.NewIngestor(rec, nil), grading.NewGrader(rec, grading.WithPreviewStore(blobs)), Config{})
	r := chi.NewRouter()
	r.Use(appI18n.Middleware)
	h.Routes(r)

	backend.failWrites.Store(true)
	body, ct := multipartBody(t, "images", "s1.png")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/batch", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("batch: status %d, want 500", w.Code)
	}
	entries, err := os.ReadDir(filepath.Join(previewDir, "previews"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("previews left behind: %d files", len(entries))
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	ts := newTestServer(t, "")
	sess := createSession(t, ts)

	if resp := ts.do(t, http.MethodDelete, "/sessions/"+sess.ID, nil, ""); resp.StatusCode != http.StatusPreconditionRequired {
		t.Errorf("unconfirmed delete: status %d, want 428", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodDelete, "/sessions/"+sess.ID+"?confirm=true", nil, ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("confirmed delete: status %d, want 204", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodGet, "/sessions/"+sess.ID, nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted session: status %d, want 404", resp.StatusCode)
	}
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, "")
	sess := createSession(t, ts)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown session", http.MethodGet, "/sessions/nope/results", "", http.StatusNotFound},
		{"bad sort key", http.MethodGet, "/sessions/" + sess.ID + "/results?sort=grade", "", http.StatusBadRequest},
		{"blank subject", http.MethodPost, "/sessions", `{"subjectName":" "}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/sessions", `{`, http.StatusBadRequest},
		{"master key without upload", http.MethodPost, "/sessions/" + sess.ID + "/master-key", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, strings.NewReader(tt.body), "application/json")
			if resp.StatusCode != tt.status {
				t.Fatalf("status %d, want %d", resp.StatusCode, tt.status)
			}
			if er := decode[errorResponse](t, resp); er.Message == "" {
				t.Error("expected a localized message")
			}
		})
	}
}

func TestEmptyMasterKey(t *testing.T) {
	ts := newTestServer(t, "")
	ts.rec.key = model.KeyExtraction{}
	sess := createSession(t, ts)

	body, ct := multipartBody(t, "image", "key.png")
	resp := ts.do(t, http.MethodPost, "/sessions/"+sess.ID+"/master-key", body, ct)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
	if er := decode[errorResponse](t, resp); er.Message != "No answers were found on the master key." {
		t.Errorf("message = %q", er.Message)
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, "s3cret")

	tests := []struct {
		name   string
		user   string
		pass   string
		status int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "teacher", "nope", http.StatusUnauthorized},
		{"wrong user", "student", "s3cret", http.StatusUnauthorized},
		{"valid", "teacher", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/sessions", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET /sessions: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}

	resp := ts.do(t, http.MethodGet, "/healthz", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz should not require auth, got %d", resp.StatusCode)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	again, err := HashPassword(string(hash))
	if err != nil {
		t.Fatalf("HashPassword(hash): %v", err)
	}
	if !bytes.Equal(hash, again) {
		t.Error("an existing bcrypt hash should be kept as is")
	}
	if h, _ := HashPassword(""); h != nil {
		t.Error("empty password should disable auth")
	}
}
