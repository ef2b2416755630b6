package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session id is unknown to the store.
	ErrNotFound = errors.New("not found")
	// ErrEmptyKey is wrapped by a ValidationError when a master key yields no answers.
	ErrEmptyKey = errors.New("no answers found on master key")
	// ErrNoMasterKey is returned when grading is requested before a key is attached.
	ErrNoMasterKey = errors.New("session has no master key")
)

// ValidationError reports empty or malformed input, such as a master key with no
// legible marks.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewEmptyKeyError returns the ValidationError raised for a key without answers.
func NewEmptyKeyError() error {
	return &ValidationError{Field: "answers", Reason: ErrEmptyKey.Error(), Err: ErrEmptyKey}
}

// RecognitionError reports a failed recognition call or an unusable response.
type RecognitionError struct {
	Op  string
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition %s: %v", e.Op, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// CameraAccessError reports an unavailable capture device. It is never retried.
type CameraAccessError struct {
	Device string
	Err    error
}

func (e *CameraAccessError) Error() string {
	return fmt.Sprintf("camera %s unavailable: %v", e.Device, e.Err)
}

func (e *CameraAccessError) Unwrap() error { return e.Err }

// PersistenceError reports a snapshot that could not be loaded or saved.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
