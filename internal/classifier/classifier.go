// Package classifier defines the contract between the OCR pipeline and the
// trainable model that maps fixed-shape image patches to fixed-length
// character sequences.
//
// # Boundary Shapes
//
// Every backend accepts a batch of patches of exactly the configured
// PatchShape (height, width, 3) and returns one labels.Sequence of exactly
// MaxChars symbols per patch, each symbol drawn from the backend's class list.
// How a backend gets there (network topology, output reshape to
// (MaxChars, NC), argmax) is its own business.
//
// # Persistence
//
// A saved model is two artifacts: the backend's opaque parameter file written
// by Save, and a sibling class list written by SaveClasses. Predicted indices
// are meaningless without the class list they were trained against, so both
// are always restored together; see pipeline.Orchestrator.Startup.
//
// # Backends
//
//   - convnet: trainable pure-Go convolutional network (default)
//   - onnx: inference-only, runs an exported network through ONNX Runtime
//   - tesseract: inference-only baseline using the Tesseract engine
package classifier

import (
	"context"
	"errors"
	"image"

	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// ErrNotTrainable is returned by Fit on inference-only backends.
var ErrNotTrainable = errors.New("classifier backend cannot be trained")

// Classifier is a trainable, persistable patch-to-sequence model.
type Classifier interface {
	// Fit trains on patches with their encoded targets. Calling it again
	// continues training from the current parameters.
	Fit(ctx context.Context, patches []*image.NRGBA, targets []labels.Sequence) error

	// Predict runs forward inference and returns one sequence per patch, in
	// input order. It never changes learned parameters.
	Predict(ctx context.Context, patches []*image.NRGBA) ([]labels.Sequence, error)

	// SetMaxIterations sets the training length used by subsequent Fit calls.
	SetMaxIterations(n int)

	// Save persists all learned parameters to path.
	Save(path string) error

	// Restore loads parameters saved at path. It reports (false, nil) when
	// nothing has been saved there.
	Restore(path string) (bool, error)

	// Classes returns the class list predictions are expressed over.
	Classes() *labels.Alphabet

	// RestoreClasses installs the class list saved alongside the model. It
	// fails with an ErrConfig-class error when the list does not fit the
	// restored parameters.
	RestoreClasses(classes *labels.Alphabet) error
}

// ClassCarrier is implemented by backends whose restored model already
// names its class list. For those the orchestrator takes Classes() instead
// of reading the sibling class list file.
type ClassCarrier interface {
	CarriesClasses() bool
}

// Closer is implemented by backends holding native resources.
type Closer interface {
	Close() error
}

// Close releases c's native resources if it has any.
func Close(c Classifier) error {
	if cl, ok := c.(Closer); ok {
		return cl.Close()
	}
	return nil
}

// CheckShapes verifies that every patch has exactly the given shape.
func CheckShapes(shape imaging.PatchShape, patches []*image.NRGBA) error {
	for i, p := range patches {
		if !shape.Fits(p) {
			b := p.Bounds()
			return ocrerr.Configf("patch %d is %dx%d, want %dx%d", i, b.Dy(), b.Dx(), shape.Height, shape.Width)
		}
	}
	return nil
}

// CheckTargets verifies that targets align with patches and fit the codec.
func CheckTargets(codec labels.Codec, patches []*image.NRGBA, targets []labels.Sequence) error {
	if len(patches) != len(targets) {
		return ocrerr.Configf("%d patches but %d targets", len(patches), len(targets))
	}
	for i, t := range targets {
		if err := codec.Validate(t); err != nil {
			return ocrerr.Configf("target %d: %v", i, err)
		}
	}
	return nil
}
