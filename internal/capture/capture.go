// Package capture manages the single active image capture session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

// ErrNoActiveStream is returned by Capture when Start has not succeeded.
var ErrNoActiveStream = errors.New("no active capture stream")

// Stream yields still frames from an open device.
type Stream interface {
	Frame(ctx context.Context) (sheet.Image, error)
	Close() error
}

// Device is a source of answer sheet images, such as a camera or scanner.
type Device interface {
	Name() string
	Open() (Stream, error)
}

// Manager holds at most one open Stream. Starting a new capture closes the
// previous one first.
type Manager struct {
	mu     sync.Mutex
	device string
	stream Stream
}

func NewManager() *Manager {
	return &Manager{}
}

// Start opens dev and makes it the active stream. Open failures are returned as
// *model.CameraAccessError and are not retried.
func (m *Manager) Start(dev Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()
	s, err := dev.Open()
	if err != nil {
		return &model.CameraAccessError{Device: dev.Name(), Err: err}
	}
	m.device, m.stream = dev.Name(), s
	slog.Info("capture started", "device", m.device)
	return nil
}

// Capture grabs one frame from the active stream.
func (m *Manager) Capture(ctx context.Context) (sheet.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return sheet.Image{}, ErrNoActiveStream
	}
	img, err := m.stream.Frame(ctx)
	if err != nil {
		return sheet.Image{}, fmt.Errorf("capture from %s: %w", m.device, err)
	}
	return img, nil
}

// Active reports the name of the active device, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device, m.stream != nil
}

// Stop closes the active stream. Stopping an idle manager is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	if err != nil {
		slog.Warn("closing capture stream", "device", m.device, "error", err)
	}
	slog.Info("capture stopped", "device", m.device)
	m.device, m.stream = "", nil
	return err
}
