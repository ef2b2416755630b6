package grading

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func testImage(name string) sheet.Image { return sheet.New(name, pngBytes) }

// fakeRecognizer answers by image name and tracks call order and concurrency.
type fakeRecognizer struct {
	key      model.KeyExtraction
	keyErr   error
	sheets   map[string]model.SheetExtraction
	fail     map[string]error
	calls    []string
	asked    [][]int
	inFlight atomic.Int32
	overlap  bool
}

func (f *fakeRecognizer) ReadMasterKey(_ context.Context, _ sheet.Image) (model.KeyExtraction, error) {
	return f.key, f.keyErr
}

func (f *fakeRecognizer) ReadAnswerSheet(ctx context.Context, img sheet.Image, questions []int) (model.SheetExtraction, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap = true
	}
	defer f.inFlight.Add(-1)

	f.calls = append(f.calls, img.Name)
	f.asked = append(f.asked, questions)
	if err := ctx.Err(); err != nil {
		return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: err}
	}
	if err, ok := f.fail[img.Name]; ok {
		return model.SheetExtraction{}, err
	}
	if ext, ok := f.sheets[img.Name]; ok {
		return ext, nil
	}
	return model.SheetExtraction{}, &model.RecognitionError{Op: "answer sheet", Err: errors.New("no canned response")}
}

// failingStore is a BlobStore whose writes always fail.
type failingStore struct{}

func (failingStore) Put(string, io.Reader) (string, error) { return "", errors.New("disk full") }
func (failingStore) Get(string) (io.ReadCloser, error) { return nil, errors.New("disk full") }
func (failingStore) Delete(string) error { return nil }
