package convnet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/serializer"

	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

const modelVersion = 2

// Save writes the network and the geometry it was trained on to path,
// creating parent directories.
func (n *Network) Save(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.net == nil {
		return fmt.Errorf("convnet: nothing to save, model is untrained")
	}

	s := n.cfg.Shape
	data, err := serializer.SerializeAny(
		modelVersion, s.Height, s.Width, s.Channels, n.cfg.Codec.MaxChars,
		[]byte(n.classes.String()), n.net,
	)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// Restore loads a network written by Save. A missing file reports
// (false, nil); a file trained for a different geometry is an ErrConfig-class
// error.
func (n *Network) Restore(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read model file: %w", err)
	}

	var (
		version, maxChars int
		shape             imaging.PatchShape
		classes           []byte
		net               anynet.Net
	)
	err = serializer.DeserializeAny(data, &version, &shape.Height, &shape.Width, &shape.Channels,
		&maxChars, &classes, &net)
	if err != nil {
		return false, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	if version != modelVersion {
		return false, fmt.Errorf("model %s has unsupported version %d", path, version)
	}
	if shape != n.cfg.Shape {
		return false, ocrerr.Configf("model %s was trained on patches %s, configured %s", path, shape, n.cfg.Shape)
	}
	if maxChars != n.cfg.Codec.MaxChars {
		return false, ocrerr.Configf("model %s emits %d characters, configured %d", path, maxChars, n.cfg.Codec.MaxChars)
	}
	if string(classes) != n.cfg.Codec.Alphabet.String() {
		return false, ocrerr.Configf("model %s was trained on alphabet %q, configured %q", path, classes, n.cfg.Codec.Alphabet)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	slabs, head, err := n.layers(net)
	if err != nil {
		return false, fmt.Errorf("model %s: %w", path, err)
	}
	if head.FilterCount != n.classes.Len() {
		return false, fmt.Errorf("model %s has %d output classes for a %d-symbol alphabet", path, head.FilterCount, n.classes.Len())
	}
	n.cfg.Hidden = slabs.FilterCount
	n.net = net
	return true, nil
}
