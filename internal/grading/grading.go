// Package grading turns master key and answer sheet images into graded records.
//
// Recognition is delegated to a Recognizer; everything downstream of it is
// deterministic. Batches are processed strictly one image at a time.
package grading

import (
	"context"

	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

// Recognizer is the external recognition service boundary. Implementations must
// return validated, strictly typed extractions or a *model.RecognitionError.
type Recognizer interface {
	ReadMasterKey(ctx context.Context, img sheet.Image) (model.KeyExtraction, error)
	ReadAnswerSheet(ctx context.Context, img sheet.Image, questions []int) (model.SheetExtraction, error)
}
