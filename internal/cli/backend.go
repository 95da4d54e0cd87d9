package cli

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/classifier/convnet"
	"github.com/ironsheep/deep-ocr/internal/classifier/onnx"
	"github.com/ironsheep/deep-ocr/internal/classifier/tesseract"
	"github.com/ironsheep/deep-ocr/internal/config"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// newClassifier constructs the configured backend.
func newClassifier(cfg *config.Config, log logrus.FieldLogger, progress io.Writer) (classifier.Classifier, error) {
	codec, err := cfg.Codec()
	if err != nil {
		return nil, err
	}
	shape := cfg.PatchShape()

	switch cfg.Backend {
	case config.BackendConvnet:
		cc := convnet.DefaultConfig(shape, codec)
		cc.Hidden = cfg.Hidden
		cc.BatchSize = cfg.BatchSize
		cc.LearnRate = cfg.LearnRate
		cc.MaxIterations = cfg.MaxIterations
		cc.Regularization = cfg.Reg
		cc.Tolerance = cfg.Tolerance
		cc.Seed = cfg.Seed
		cc.Progress = progress
		cc.Logger = log
		return convnet.New(cc)
	case config.BackendONNX:
		return onnx.New(onnx.Config{
			Shape:       shape,
			Codec:       codec,
			LibraryPath: cfg.ONNXLib,
			Logger:      log,
		})
	case config.BackendTesseract:
		return tesseract.New(tesseract.Config{
			Shape:          shape,
			Codec:          codec,
			Language:       cfg.TesseractLang,
			TessdataPrefix: cfg.TessdataPrefix,
			Logger:         log,
		})
	default:
		return nil, ocrerr.Configf("unknown backend %q", cfg.Backend)
	}
}
