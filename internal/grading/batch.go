package grading

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
	"github.com/pavelanni/examgrader/internal/storage"
)

// ProgressFunc receives one Progress per batch item, before the item is processed.
type ProgressFunc func(model.Progress)

// Grader grades student answer sheets against a master key.
type Grader struct {
	rec         Recognizer
	prep        sheet.Preparer
	previews    storage.BlobStore
	reconcile   ReconcileOptions
	unknownName string
	unknownID   string
	newID       func() string
}

// Option configures a Grader.
type Option func(*Grader)

// WithPreparer sets the image preparation step run before recognition.
func WithPreparer(p sheet.Preparer) Option {
	return func(g *Grader) {
		if p != nil {
			g.prep = p
		}
	}
}

// WithPreviewStore stores each graded sheet image and links it from the record.
func WithPreviewStore(s storage.BlobStore) Option {
	return func(g *Grader) { g.previews = s }
}

// WithFillUnanswered adds explicit results for key questions the recognizer skipped.
func WithFillUnanswered(on bool) Option {
	return func(g *Grader) { g.reconcile.FillUnanswered = on }
}

// WithUnknownIdentity sets the values used when a sheet's name or id is blank.
func WithUnknownIdentity(name, id string) Option {
	return func(g *Grader) {
		g.unknownName = name
		g.unknownID = id
	}
}

// NewGrader creates a Grader around the given recognizer.
func NewGrader(rec Recognizer, opts ...Option) *Grader {
	g := &Grader{
		rec:         rec,
		prep:        sheet.Passthrough{},
		unknownName: "Unknown",
		unknownID:   "-",
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Batch is the outcome of Process.
type Batch struct {
	Records   []model.StudentRecord
	Attempted int
}

// Succeeded is the number of images that produced a record.
func (b Batch) Succeeded() int { return len(b.Records) }

// outcome is the tagged result of one batch item.
type outcome struct {
	record model.StudentRecord
	err    error
}

// Process grades images strictly in order, one at a time. Failed items are logged
// and dropped; they never abort the batch. The only error is a missing or empty
// master key, reported before any item is attempted.
//
// Once started, every item is attempted: cancellation of ctx is not propagated to
// the recognition calls. Context values such as request ids still flow through.
func (g *Grader) Process(ctx context.Context, images []sheet.Image, cfg *model.MasterConfig, progress ProgressFunc) (Batch, error) {
	if cfg == nil {
		return Batch{Records: []model.StudentRecord{}}, model.ErrNoMasterKey
	}
	if len(cfg.CorrectAnswers) == 0 {
		return Batch{Records: []model.StudentRecord{}}, model.NewEmptyKeyError()
	}

	ctx = context.WithoutCancel(ctx)
	questions := cfg.QuestionNumbers()
	b := Batch{Records: make([]model.StudentRecord, 0, len(images)), Attempted: len(images)}
	for i, img := range images {
		if progress != nil {
			progress(model.Progress{Current: i + 1, Total: len(images)})
		}
		o := g.gradeItem(ctx, img, *cfg, questions)
		if o.err != nil {
			slog.Warn("sheet skipped", "item", i+1, "name", img.Name, "error", o.err)
			continue
		}
		b.Records = append(b.Records, o.record)
	}

	slog.Info("batch graded", "attempted", b.Attempted, "succeeded", b.Succeeded())
	return b, nil
}

// GradeOne grades a single sheet and, unlike Process, returns its failure.
func (g *Grader) GradeOne(ctx context.Context, img sheet.Image, cfg *model.MasterConfig) (model.StudentRecord, error) {
	if cfg == nil {
		return model.StudentRecord{}, model.ErrNoMasterKey
	}
	if len(cfg.CorrectAnswers) == 0 {
		return model.StudentRecord{}, model.NewEmptyKeyError()
	}
	o := g.gradeItem(ctx, img, *cfg, cfg.QuestionNumbers())
	return o.record, o.err
}

func (g *Grader) gradeItem(ctx context.Context, img sheet.Image, cfg model.MasterConfig, questions []int) outcome {
	prepared, err := g.prep.Prepare(ctx, img)
	if err != nil {
		return outcome{err: &model.ValidationError{Field: "image", Reason: err.Error(), Err: err}}
	}

	ext, err := g.rec.ReadAnswerSheet(ctx, prepared, questions)
	if err != nil {
		var re *model.RecognitionError
		if !errors.As(err, &re) {
			err = &model.RecognitionError{Op: "answer sheet", Err: err}
		}
		return outcome{err: err}
	}

	rc := Reconcile(cfg, ext.Results, g.reconcile)
	rec := model.StudentRecord{
		ID:             g.newID(),
		StudentName:    orDefault(ext.StudentName, g.unknownName),
		StudentID:      orDefault(ext.StudentID, g.unknownID),
		Score:          rc.Score,
		TotalQuestions: len(cfg.CorrectAnswers),
		Results:        rc.Results,
		Status:         model.StatusCompleted,
	}

	if g.previews != nil {
		key, err := g.previews.Put("previews/"+rec.ID+prepared.Extension(), bytes.NewReader(prepared.Data))
		if err != nil {
			return outcome{err: fmt.Errorf("store preview: %w", err)}
		}
		rec.ImagePreview = key
	}
	return outcome{record: rec}
}

// DiscardPreviews removes the stored preview of each record. Failures are logged
// and do not stop the sweep.
func (g *Grader) DiscardPreviews(records []model.StudentRecord) {
	if g.previews == nil {
		return
	}
	for _, r := range records {
		if r.ImagePreview == "" {
			continue
		}
		if err := g.previews.Delete(r.ImagePreview); err != nil {
			slog.Warn("discard preview", "record", r.ID, "key", r.ImagePreview, "error", err)
		}
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
