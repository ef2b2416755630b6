// Package store persists exam sessions as a single versioned snapshot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examgrader/internal/model"
)

// DefaultNamespace is the snapshot key used when none is configured.
const DefaultNamespace = "school_exams_data"

const (
	maxRetries   = 32
	retryBackoff = 2 * time.Millisecond
)

// Store owns the collection of exam sessions. Every mutation rewrites the whole
// snapshot with an optimistic compare-and-swap on the backend version, retrying
// the read-modify-write when another process got there first.
type Store struct {
	backend   Backend
	namespace string

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// New creates a Store on top of backend. An empty namespace means DefaultNamespace.
func New(backend Backend, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{
		backend:   backend,
		namespace: namespace,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// All returns every session in insertion order.
func (s *Store) All(ctx context.Context) ([]model.ExamSession, error) {
	sessions, _, err := s.load(ctx)
	return sessions, err
}

// Get returns one session or model.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.ExamSession, error) {
	sessions, _, err := s.load(ctx)
	if err != nil {
		return model.ExamSession{}, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return model.ExamSession{}, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
}

// Create adds an empty session and returns it.
func (s *Store) Create(ctx context.Context, subject, grade string) (model.ExamSession, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return model.ExamSession{}, &model.ValidationError{Field: "subjectName", Reason: "must not be empty"}
	}
	sess := model.ExamSession{
		ID:             s.newID(),
		SubjectName:    subject,
		GradeLevel:     strings.TrimSpace(grade),
		StudentRecords: []model.StudentRecord{},
		CreatedAt:      s.now().UTC(),
	}
	err := s.update(ctx, func(sessions []model.ExamSession) ([]model.ExamSession, error) {
		return append(sessions, sess), nil
	})
	if err != nil {
		return model.ExamSession{}, err
	}
	slog.Info("session created", "id", sess.ID, "subject", sess.SubjectName, "grade", sess.GradeLevel)
	return sess, nil
}

// AttachMasterConfig sets or replaces the session's master key. Existing records
// keep the scores they were graded with.
func (s *Store) AttachMasterConfig(ctx context.Context, id string, cfg model.MasterConfig) error {
	if len(cfg.CorrectAnswers) == 0 {
		return model.NewEmptyKeyError()
	}
	return s.update(ctx, func(sessions []model.ExamSession) ([]model.ExamSession, error) {
		i, err := indexOf(sessions, id)
		if err != nil {
			return nil, err
		}
		c := cfg
		sessions[i].MasterConfig = &c
		return sessions, nil
	})
}

// AppendRecords adds records to the end of the session's record list.
func (s *Store) AppendRecords(ctx context.Context, id string, records []model.StudentRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.update(ctx, func(sessions []model.ExamSession) ([]model.ExamSession, error) {
		i, err := indexOf(sessions, id)
		if err != nil {
			return nil, err
		}
		sessions[i].StudentRecords = append(sessions[i].StudentRecords, records...)
		return sessions, nil
	})
}

// Delete removes a session with all its records. Callers confirm intent first.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.update(ctx, func(sessions []model.ExamSession) ([]model.ExamSession, error) {
		i, err := indexOf(sessions, id)
		if err != nil {
			return nil, err
		}
		return append(sessions[:i], sessions[i+1:]...), nil
	})
	if err == nil {
		slog.Info("session deleted", "id", id)
	}
	return err
}

func indexOf(sessions []model.ExamSession, id string) (int, error) {
	for i := range sessions {
		if sessions[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
}

// load reads the snapshot. A blob that does not decode is logged as a
// PersistenceError and treated as an empty collection; the returned version
// still lets the next write replace it.
func (s *Store) load(ctx context.Context) ([]model.ExamSession, int64, error) {
	data, version, err := s.backend.Load(ctx, s.namespace)
	if err != nil {
		return nil, 0, &model.PersistenceError{Op: "load", Err: err}
	}
	sessions := []model.ExamSession{}
	if len(data) == 0 {
		return sessions, version, nil
	}
	if err := json.Unmarshal(data, &sessions); err != nil {
		perr := &model.PersistenceError{Op: "decode", Err: err}
		slog.Error("discarding unreadable session snapshot", "namespace", s.namespace, "version", version, "error", perr)
		return []model.ExamSession{}, version, nil
	}
	for i := range sessions {
		if sessions[i].StudentRecords == nil {
			sessions[i].StudentRecords = []model.StudentRecord{}
		}
	}
	return sessions, version, nil
}

func (s *Store) update(ctx context.Context, fn func([]model.ExamSession) ([]model.ExamSession, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; attempt <= maxRetries; attempt++ {
		sessions, version, err := s.load(ctx)
		if err != nil {
			return err
		}
		sessions, err = fn(sessions)
		if err != nil {
			return err
		}
		data, err := json.Marshal(sessions)
		if err != nil {
			return &model.PersistenceError{Op: "encode", Err: err}
		}
		err = s.backend.CompareAndSwap(ctx, s.namespace, data, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return &model.PersistenceError{Op: "save", Err: err}
		}
		slog.Debug("snapshot changed underneath, retrying", "namespace", s.namespace, "attempt", attempt)
		select {
		case <-ctx.Done():
			return &model.PersistenceError{Op: "save", Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return &model.PersistenceError{Op: "save", Err: fmt.Errorf("%w after %d attempts", ErrConflict, maxRetries)}
}
