package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/examgrader/internal/model"
)

func TestIngest(t *testing.T) {
	tests := []struct {
		name    string
		answers []model.KeyAnswer
		want    map[int]string
		rows    int
	}{
		{
			name:    "trims letters",
			answers: []model.KeyAnswer{{QuestionNumber: 1, Answer: " ก "}, {QuestionNumber: 2, Answer: "ข"}, {QuestionNumber: 3, Answer: "ค\n"}},
			want:    map[int]string{1: "ก", 2: "ข", 3: "ค"},
			rows:    3,
		},
		{
			name:    "duplicate question keeps last",
			answers: []model.KeyAnswer{{QuestionNumber: 1, Answer: "A"}, {QuestionNumber: 1, Answer: "C"}},
			want:    map[int]string{1: "C"},
			rows:    1,
		},
		{
			name:    "blank letter skipped",
			answers: []model.KeyAnswer{{QuestionNumber: 1, Answer: "A"}, {QuestionNumber: 2, Answer: "  "}},
			want:    map[int]string{1: "A"},
			rows:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{key: model.KeyExtraction{Answers: tt.answers}}
			cfg, err := NewIngestor(rec, nil).Ingest(context.Background(), testImage("key.png"))
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			if len(cfg.CorrectAnswers) != len(tt.want) {
				t.Fatalf("CorrectAnswers = %v, want %v", cfg.CorrectAnswers, tt.want)
			}
			for q, a := range tt.want {
				if cfg.CorrectAnswers[q] != a {
					t.Errorf("CorrectAnswers[%d] = %q, want %q", q, cfg.CorrectAnswers[q], a)
				}
			}
			if cfg.GridMeta.Rows != tt.rows || cfg.GridMeta.Cols != choicesPerQuestion {
				t.Errorf("GridMeta = %+v, want rows %d cols %d", cfg.GridMeta, tt.rows, choicesPerQuestion)
			}
		})
	}
}

func TestIngestEmptyKey(t *testing.T) {
	for _, answers := range [][]model.KeyAnswer{nil, {{QuestionNumber: 1, Answer: " "}}} {
		rec := &fakeRecognizer{key: model.KeyExtraction{Answers: answers}}
		_, err := NewIngestor(rec, nil).Ingest(context.Background(), testImage("key.png"))

		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if !errors.Is(err, model.ErrEmptyKey) {
			t.Errorf("expected ErrEmptyKey, got %v", err)
		}
	}
}

func TestIngestRecognitionFailure(t *testing.T) {
	rec := &fakeRecognizer{keyErr: errors.New("timeout")}
	_, err := NewIngestor(rec, nil).Ingest(context.Background(), testImage("key.png"))

	var re *model.RecognitionError
	if !errors.As(err, &re) {
		t.Fatalf("expected RecognitionError, got %v", err)
	}
	if re.Op != "master key" {
		t.Errorf("Op = %q, want %q", re.Op, "master key")
	}
}

func TestIngestRejectsNonImage(t *testing.T) {
	rec := &fakeRecognizer{key: model.KeyExtraction{Answers: []model.KeyAnswer{{QuestionNumber: 1, Answer: "A"}}}}
	img := testImage("notes.txt")
	img.Data = []byte("hello, this is not a picture")
	img.MIMEType = "text/plain"

	_, err := NewIngestor(rec, nil).Ingest(context.Background(), img)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
