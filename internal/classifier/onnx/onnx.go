// Package onnx runs an exported OCR network through ONNX Runtime.
//
// The backend is inference only. A saved model is two files next to each
// other: <path>.onnx holding the network and <path>.json holding Metadata
// (tensor shapes, layout and the class list the output axis is indexed by).
package onnx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// Metadata describes the exported network.
type Metadata struct {
	// InputShape is [batch, Ph, Pw, 3] for NHWC or [batch, 3, Ph, Pw] for NCHW.
	InputShape []int64 `json:"input_shape"`
	// OutputShape is [batch, MaxChars, NC].
	OutputShape []int64  `json:"output_shape"`
	Layout      string   `json:"layout"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	Classes     []string `json:"classes"`
}

// Config selects the geometry the exported network must match.
type Config struct {
	Shape imaging.PatchShape
	Codec labels.Codec
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath string
	Logger      logrus.FieldLogger
}

// Network is an ONNX Runtime backed classifier.
type Network struct {
	cfg Config
	log logrus.FieldLogger

	mu        sync.Mutex
	meta      Metadata
	classes   *labels.Alphabet
	modelPath string
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
}

// New returns an unloaded network; call Restore before Predict.
func New(cfg Config) (*Network, error) {
	if err := cfg.Shape.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Network{
		cfg:     cfg,
		log:     log.WithField("component", "onnx"),
		classes: cfg.Codec.Alphabet,
	}, nil
}

// Fit always fails: ONNX Runtime sessions are inference only.
func (n *Network) Fit(ctx context.Context, patches []*image.NRGBA, targets []labels.Sequence) error {
	return classifier.ErrNotTrainable
}

// SetMaxIterations is a no-op.
func (n *Network) SetMaxIterations(int) {}

// Classes returns the class list of the loaded network.
func (n *Network) Classes() *labels.Alphabet {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.classes
}

// CarriesClasses reports whether the loaded metadata lists the classes.
func (n *Network) CarriesClasses() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.meta.Classes) > 0
}

// RestoreClasses checks classes against the metadata of the loaded network.
func (n *Network) RestoreClasses(classes *labels.Alphabet) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.meta.Classes) > 0 {
		fromMeta, err := alphabetFromClasses(n.meta.Classes)
		if err != nil {
			return err
		}
		if !fromMeta.Equal(classes) {
			return ocrerr.Configf("class list %q does not match model metadata %q", classes, fromMeta)
		}
	}
	if !classes.Equal(n.cfg.Codec.Alphabet) {
		return ocrerr.Configf("class list %q does not match configured alphabet %q", classes, n.cfg.Codec.Alphabet)
	}
	n.classes = classes
	return nil
}

// Restore loads <path>.onnx and <path>.json. A missing network file reports
// (false, nil).
func (n *Network) Restore(path string) (bool, error) {
	modelPath := path + ".onnx"
	if _, err := os.Stat(modelPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	metaFile, err := os.ReadFile(path + ".json")
	if err != nil {
		return false, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return false, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := validateMetadata(&meta, n.cfg.Shape, n.cfg.Codec); err != nil {
		return false, err
	}

	if !ort.IsInitialized() {
		if n.cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(n.cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return false, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return false, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return false, fmt.Errorf("failed to create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return false, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	n.mu.Lock()
	n.destroyLocked()
	n.meta = meta
	n.modelPath = modelPath
	n.session = session
	n.input = inputTensor
	n.output = outputTensor
	n.mu.Unlock()

	n.log.WithFields(logrus.Fields{
		"model":  modelPath,
		"batch":  meta.InputShape[0],
		"layout": meta.Layout,
	}).Info("onnx model loaded")
	return true, nil
}

// Save copies the loaded network and its metadata to <path>.onnx and <path>.json.
func (n *Network) Save(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return fmt.Errorf("onnx: nothing to save, no model loaded")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	if dst := path + ".onnx"; dst != n.modelPath {
		data, err := os.ReadFile(n.modelPath)
		if err != nil {
			return fmt.Errorf("failed to read model: %w", err)
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return fmt.Errorf("failed to write model: %w", err)
		}
	}
	meta, err := json.MarshalIndent(n.meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path+".json", meta, 0644)
}

// Predict runs the network over patches in batches of the exported batch
// size. The last batch is zero-padded and the surplus outputs dropped.
func (n *Network) Predict(ctx context.Context, patches []*image.NRGBA) ([]labels.Sequence, error) {
	if err := classifier.CheckShapes(n.cfg.Shape, patches); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return nil, fmt.Errorf("onnx: predict called before a model was restored")
	}

	batch := int(n.meta.InputShape[0])
	out := make([]labels.Sequence, 0, len(patches))
	for start := 0; start < len(patches); start += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batch
		if end > len(patches) {
			end = len(patches)
		}
		fillInput(n.input.GetData(), patches[start:end], n.cfg.Shape, n.meta.Layout)
		if err := n.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		out = append(out, decodeOutput(n.output.GetData(), end-start, n.cfg.Codec.MaxChars, n.classes)...)
	}
	return out, nil
}

// Close releases the session and tensors and tears down the environment.
func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destroyLocked()
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

func (n *Network) destroyLocked() {
	if n.input != nil {
		n.input.Destroy()
		n.input = nil
	}
	if n.output != nil {
		n.output.Destroy()
		n.output = nil
	}
	if n.session != nil {
		n.session.Destroy()
		n.session = nil
	}
}
