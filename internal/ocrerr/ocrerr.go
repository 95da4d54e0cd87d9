// Package ocrerr defines the error kinds shared across the OCR pipeline.
//
// Every error returned by the loader, the classifier backends and the
// orchestrator wraps exactly one of these kinds so callers can branch with
// errors.Is without inspecting messages:
//
//   - ErrConfig: the configured alphabet, patch shape or character count does
//     not match what a restored model was trained with. Always fatal.
//   - ErrLoad: a dataset could not be read (missing index, unreadable image,
//     label too long or outside the alphabet). Fatal for that load call.
//   - ErrInferenceInput: a single inference image could not be decoded. The
//     orchestrator reports it per file and keeps going.
//
// A missing saved model is not an error; Restore reports it as (false, nil).
package ocrerr

import (
	"errors"
	"fmt"
)

var (
	ErrConfig         = errors.New("configuration mismatch")
	ErrLoad           = errors.New("load error")
	ErrInferenceInput = errors.New("inference input error")
)

// Configf returns an ErrConfig-class error with a formatted detail message.
func Configf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Load wraps err as an ErrLoad-class error for the given path.
func Load(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
}

// InferenceInput wraps err as an ErrInferenceInput-class error for the given path.
func InferenceInput(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInferenceInput, path, err)
}
