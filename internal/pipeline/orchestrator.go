// Package pipeline ties the loader, classifier, geometry and scoring together.
//
// An Orchestrator owns one classifier instance for its whole lifecycle:
// construct, Startup (restore or train), then any number of recognition
// calls. There is no package-level model state.
//
// # Flows
//
// Train: load dataset, deterministic train/test split, Fit on the train part,
// predict everything in chunks, score both parts, spot-check a seeded sample,
// refine with a short Fit over the full dataset, save model and class list.
//
// Inference: load image, discard alpha, tile, predict one batch, stitch rows
// and columns back into text.
//
// # Padding
//
// Every predicted cell is MaxChars long and right-padded with spaces. By
// default trailing spaces are trimmed from each output line; with
// KeepPadding the stitched text is returned exactly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/dataset"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

const (
	// DefaultModelName is the parameter file name inside the model directory.
	DefaultModelName = "ocrnet"
	// DefaultRefineIterations bounds the final full-dataset Fit pass.
	DefaultRefineIterations = 4
	// DefaultMaxIterations bounds the first Fit pass.
	DefaultMaxIterations = 64
)

// Config holds everything the orchestrator needs besides the classifier.
type Config struct {
	Shape imaging.PatchShape
	Codec labels.Codec

	ModelDir  string
	ModelName string
	DataDir   string
	IndexFile string

	MaxIterations    int
	RefineIterations int
	ChunkSize        int
	Workers          int

	TestFraction   float64
	SplitSeed      int64
	SampleFraction float64
	SampleSeed     int64

	KeepPadding bool
}

// DefaultConfig returns the stock geometry and training schedule.
func DefaultConfig() Config {
	codec, _ := labels.NewCodec(labels.DefaultAlphabet(), labels.DefaultMaxChars)
	return Config{
		Shape:            imaging.DefaultPatchShape,
		Codec:            codec,
		ModelDir:         "model",
		ModelName:        DefaultModelName,
		DataDir:          ".",
		IndexFile:        dataset.DefaultIndexFile,
		MaxIterations:    DefaultMaxIterations,
		RefineIterations: DefaultRefineIterations,
		ChunkSize:        classifier.DefaultChunkSize,
		Workers:          1,
		TestFraction:     dataset.DefaultTestFraction,
		SplitSeed:        dataset.DefaultSeed,
		SampleFraction:   dataset.DefaultSampleFraction,
		SampleSeed:       dataset.DefaultSeed,
	}
}

// Sample is one spot-checked training row.
type Sample struct {
	Filename  string `json:"filename"`
	Truth     string `json:"truth"`
	Predicted string `json:"predicted"`
}

// Orchestrator runs the train and inference flows over one classifier.
type Orchestrator struct {
	clf classifier.Classifier
	cfg Config
	log logrus.FieldLogger

	// SpotCheck receives the sampled rows after scoring. The default logs
	// each one at info level.
	SpotCheck func(Sample)
}

// New validates cfg and wires clf into an orchestrator.
func New(clf classifier.Classifier, cfg Config, log logrus.FieldLogger) (*Orchestrator, error) {
	if clf == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if err := cfg.Shape.Validate(); err != nil {
		return nil, err
	}
	if cfg.Codec.Alphabet == nil || cfg.Codec.MaxChars <= 0 {
		return nil, ocrerr.Configf("pipeline: codec is not configured")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = dataset.DefaultIndexFile
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = classifier.DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	o := &Orchestrator{clf: clf, cfg: cfg, log: log}
	o.SpotCheck = func(s Sample) {
		o.log.WithField("file", s.Filename).Infof("%s -> %s", s.Truth, s.Predicted)
	}
	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Classifier returns the owned classifier.
func (o *Orchestrator) Classifier() classifier.Classifier { return o.clf }

// ModelPath is where the classifier parameters are saved.
func (o *Orchestrator) ModelPath() string {
	return filepath.Join(o.cfg.ModelDir, o.cfg.ModelName)
}

// ClassesPath is where the class list is saved.
func (o *Orchestrator) ClassesPath() string {
	return filepath.Join(o.cfg.ModelDir, classifier.ClassesFile)
}

// Startup restores a saved model or trains one.
//
// A restored model must come with a class list equal to the configured
// alphabet; anything else is an ErrConfig-class error. When nothing is saved,
// or force is set, the Train flow runs and its report is returned. A nil
// report means the restored model is used as-is.
func (o *Orchestrator) Startup(ctx context.Context, force bool) (*TrainReport, error) {
	restored, err := o.clf.Restore(o.ModelPath())
	if err != nil {
		return nil, fmt.Errorf("failed to restore model: %w", err)
	}

	if restored {
		classes, err := o.restoredClasses()
		if err != nil {
			return nil, err
		}
		if !classes.Equal(o.cfg.Codec.Alphabet) {
			return nil, ocrerr.Configf("saved class list %q does not match configured alphabet %q", classes, o.cfg.Codec.Alphabet)
		}
		if err := o.clf.RestoreClasses(classes); err != nil {
			return nil, err
		}
		o.log.WithField("model", o.ModelPath()).Info("model restored")
	} else {
		o.log.WithField("model", o.ModelPath()).Info("no saved model, training")
	}

	if restored && !force {
		return nil, nil
	}
	return o.Train(ctx)
}

func (o *Orchestrator) restoredClasses() (*labels.Alphabet, error) {
	if cc, ok := o.clf.(classifier.ClassCarrier); ok && cc.CarriesClasses() {
		if classes := o.clf.Classes(); classes != nil {
			return classes, nil
		}
	}
	return classifier.LoadClasses(o.ClassesPath())
}
