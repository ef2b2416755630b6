// Package sheet holds the still-image boundary between capture and recognition.
package sheet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage is returned for payloads that do not sniff as a supported image.
var ErrNotImage = errors.New("not a supported image")

var supported = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

// Image is a single still frame of an answer sheet.
type Image struct {
	Name     string
	Data     []byte
	MIMEType string
}

// New builds an Image, sniffing the mime type from its bytes.
func New(name string, data []byte) Image {
	return Image{Name: name, Data: data, MIMEType: Sniff(data)}
}

// Sniff returns the detected mime type of data, without parameters.
func Sniff(data []byte) string {
	m := mimetype.Detect(data).String()
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return m
}

// Extension returns the file extension for the image's mime type, including the dot.
func (img Image) Extension() string {
	return mimetype.Detect(img.Data).Extension()
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns the image as a data: URI.
func (img Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + img.Base64()
}

// Validate checks that the image is non-empty and of a supported type.
func (img Image) Validate() error {
	if len(img.Data) == 0 {
		return fmt.Errorf("%s: empty image", img.Name)
	}
	if !mimetype.EqualsAny(img.MIMEType, supported...) {
		return fmt.Errorf("%s: %w (%s)", img.Name, ErrNotImage, img.MIMEType)
	}
	return nil
}

// Preparer downscales and encodes an image before it is sent for recognition.
type Preparer interface {
	Prepare(ctx context.Context, img Image) (Image, error)
}

// Passthrough is a Preparer that only validates the image.
type Passthrough struct{}

// Prepare returns img unchanged when it is a valid image.
func (Passthrough) Prepare(_ context.Context, img Image) (Image, error) {
	if img.MIMEType == "" {
		img.MIMEType = Sniff(img.Data)
	}
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	return img, nil
}

// Load reads an image file from disk.
func Load(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read %s: %w", path, err)
	}
	return New(filepath.Base(path), data), nil
}

// LoadDir reads every supported image in dir, in lexical file name order.
// Files that do not sniff as images are skipped.
func LoadDir(dir string) ([]Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var images []Image
	for _, name := range names {
		img, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if img.Validate() != nil {
			continue
		}
		images = append(images, img)
	}
	return images, nil
}
