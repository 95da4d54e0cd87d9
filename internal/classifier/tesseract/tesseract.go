// Package tesseract recognizes patches with the Tesseract engine.
//
// Each patch is upscaled, encoded as PNG and handed to Tesseract in
// single-line mode with a character whitelist built from the alphabet. The
// recognized text is folded back onto the fixed-length label grid: symbols
// outside the alphabet become the pad symbol and the line is cut or padded to
// MaxChars. The engine ships its own trained data, so Fit is unsupported and
// Restore only checks that the engine starts.
//
// # Prerequisites
//
// Tesseract and its language data must be installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	ocrimaging "github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// DefaultScale is the upscale factor applied before recognition. Tesseract
// reads glyphs around 30px tall best; default patches are 18px.
const DefaultScale = 3

// Config for the Tesseract backend.
type Config struct {
	Shape ocrimaging.PatchShape
	Codec labels.Codec
	// Language is a Tesseract language code such as "eng".
	Language string
	// TessdataPrefix overrides the directory holding *.traineddata.
	TessdataPrefix string
	Scale          int
	Logger         logrus.FieldLogger
}

// Engine wraps one gosseract client. The client is not safe for concurrent
// use so Predict serializes on mu.
type Engine struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	client  *gosseract.Client
	classes *labels.Alphabet
}

// New validates cfg. The Tesseract client is created lazily by Restore.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Shape.Validate(); err != nil {
		return nil, err
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Scale <= 0 {
		cfg.Scale = DefaultScale
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		cfg:     cfg,
		log:     log.WithField("component", "tesseract"),
		classes: cfg.Codec.Alphabet,
	}, nil
}

// Fit always fails: Tesseract models are trained outside this program.
func (e *Engine) Fit(ctx context.Context, patches []*image.NRGBA, targets []labels.Sequence) error {
	return classifier.ErrNotTrainable
}

// SetMaxIterations is a no-op.
func (e *Engine) SetMaxIterations(int) {}

// Save is a no-op; the engine has no learned state of its own.
func (e *Engine) Save(path string) error { return nil }

// Restore starts the Tesseract client. The path is ignored.
func (e *Engine) Restore(path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return true, nil
	}

	client := gosseract.NewClient()
	if e.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataPrefix); err != nil {
			client.Close()
			return false, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(e.cfg.Language); err != nil {
		client.Close()
		return false, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return false, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(whitelist(e.classes)); err != nil {
		client.Close()
		return false, fmt.Errorf("failed to set whitelist: %w", err)
	}
	e.client = client
	e.log.WithFields(logrus.Fields{
		"language": e.cfg.Language,
		"version":  client.Version(),
	}).Info("tesseract engine ready")
	return true, nil
}

// Classes returns the alphabet recognized text is folded onto.
func (e *Engine) Classes() *labels.Alphabet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.classes
}

// CarriesClasses is always true: the whitelist is the configured alphabet.
func (e *Engine) CarriesClasses() bool { return true }

// RestoreClasses requires the configured alphabet.
func (e *Engine) RestoreClasses(classes *labels.Alphabet) error {
	if !classes.Equal(e.cfg.Codec.Alphabet) {
		return ocrerr.Configf("class list %q does not match configured alphabet %q", classes, e.cfg.Codec.Alphabet)
	}
	e.mu.Lock()
	e.classes = classes
	e.mu.Unlock()
	return nil
}

// Predict recognizes each patch in turn.
func (e *Engine) Predict(ctx context.Context, patches []*image.NRGBA) ([]labels.Sequence, error) {
	if err := classifier.CheckShapes(e.cfg.Shape, patches); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("tesseract: predict called before the engine was restored")
	}

	out := make([]labels.Sequence, len(patches))
	var buf bytes.Buffer
	for i, p := range patches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		scaled := imaging.Resize(p, p.Bounds().Dx()*e.cfg.Scale, 0, imaging.Lanczos)
		if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode patch %d: %w", i, err)
		}
		if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
			return nil, fmt.Errorf("failed to set image: %w", err)
		}
		text, err := e.client.Text()
		if err != nil {
			return nil, fmt.Errorf("OCR failed on patch %d: %w", i, err)
		}
		out[i] = fold(text, e.classes, e.cfg.Codec.MaxChars)
	}
	return out, nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// whitelist lists every non-pad symbol of the alphabet.
func whitelist(a *labels.Alphabet) string {
	var sb strings.Builder
	for _, r := range a.Symbols() {
		if r != labels.Pad {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// fold maps Tesseract output onto a MaxChars-long sequence over alphabet a.
// Only the first line is kept.
func fold(text string, a *labels.Alphabet, maxChars int) labels.Sequence {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	seq := make(labels.Sequence, maxChars)
	for i := range seq {
		seq[i] = labels.Pad
	}
	i := 0
	for _, r := range text {
		if i == maxChars {
			break
		}
		if a.Contains(r) {
			seq[i] = r
		}
		i++
	}
	return seq
}
