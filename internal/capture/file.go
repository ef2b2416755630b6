package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/pavelanni/examgrader/internal/sheet"
)

// FileDevice is a still-image device backed by a file that a scanner overwrites
// with each new page.
type FileDevice struct {
	Path string
}

func (d FileDevice) Name() string { return d.Path }

// Open fails when the file is missing or is a directory.
func (d FileDevice) Open() (Stream, error) {
	fi, err := os.Stat(d.Path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", d.Path)
	}
	return &fileStream{path: d.Path}, nil
}

type fileStream struct {
	path   string
	closed bool
}

func (s *fileStream) Frame(ctx context.Context) (sheet.Image, error) {
	if s.closed {
		return sheet.Image{}, ErrNoActiveStream
	}
	if err := ctx.Err(); err != nil {
		return sheet.Image{}, err
	}
	img, err := sheet.Load(s.path)
	if err != nil {
		return sheet.Image{}, err
	}
	if err := img.Validate(); err != nil {
		return sheet.Image{}, err
	}
	return img, nil
}

func (s *fileStream) Close() error {
	s.closed = true
	return nil
}
