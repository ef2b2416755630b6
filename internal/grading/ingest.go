package grading

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

// choicesPerQuestion is the number of answer boxes per row on the printed sheets.
const choicesPerQuestion = 4

// Ingestor turns a master key image into a validated MasterConfig.
type Ingestor struct {
	rec  Recognizer
	prep sheet.Preparer
}

// NewIngestor creates an Ingestor. A nil preparer means sheet.Passthrough.
func NewIngestor(rec Recognizer, prep sheet.Preparer) *Ingestor {
	if prep == nil {
		prep = sheet.Passthrough{}
	}
	return &Ingestor{rec: rec, prep: prep}
}

// Ingest reads the master key image. It fails with a *model.ValidationError wrapping
// model.ErrEmptyKey when no answers are legible, and with a *model.RecognitionError
// when the recognition call fails.
func (in *Ingestor) Ingest(ctx context.Context, img sheet.Image) (model.MasterConfig, error) {
	prepared, err := in.prep.Prepare(ctx, img)
	if err != nil {
		return model.MasterConfig{}, &model.ValidationError{Field: "image", Reason: err.Error(), Err: err}
	}

	ext, err := in.rec.ReadMasterKey(ctx, prepared)
	if err != nil {
		var re *model.RecognitionError
		if !errors.As(err, &re) {
			err = &model.RecognitionError{Op: "master key", Err: err}
		}
		return model.MasterConfig{}, err
	}
	if len(ext.Answers) == 0 {
		return model.MasterConfig{}, model.NewEmptyKeyError()
	}

	answers := make(map[int]string, len(ext.Answers))
	for _, a := range ext.Answers {
		letter := strings.TrimSpace(a.Answer)
		if letter == "" {
			slog.Warn("master key answer is blank, skipping", "image", img.Name, "question", a.QuestionNumber)
			continue
		}
		// Duplicates overwrite: last write wins.
		answers[a.QuestionNumber] = letter
	}
	if len(answers) == 0 {
		return model.MasterConfig{}, model.NewEmptyKeyError()
	}

	cfg := model.MasterConfig{
		CorrectAnswers: answers,
		GridMeta:       model.GridMeta{Rows: len(answers), Cols: choicesPerQuestion},
	}
	slog.Info("master key ingested", "image", img.Name, "questions", len(answers))
	return cfg, nil
}
