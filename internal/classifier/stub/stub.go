// Package stub provides a deterministic in-memory classifier for tests.
//
// It memorizes every (patch, target) pair seen by Fit, keyed by a hash of the
// patch pixels, and replays them on Predict. Unknown patches fall back to the
// optional Oracle, then to an all-pad sequence.
package stub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"sync"

	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// FitCall records the arguments of one Fit invocation.
type FitCall struct {
	Patches       int
	MaxIterations int
}

// Classifier is a memorizing classifier.
type Classifier struct {
	// Oracle, when set, answers for patches never seen by Fit.
	Oracle func(p *image.NRGBA) string

	mu            sync.Mutex
	codec         labels.Codec
	memory        map[string]string
	maxIterations int
	fitCalls      []FitCall
	predictCalls  []int
}

type savedModel struct {
	MaxChars int               `json:"max_chars"`
	Memory   map[string]string `json:"memory"`
}

// New creates an empty stub for the given codec.
func New(codec labels.Codec) *Classifier {
	return &Classifier{
		codec:  codec,
		memory: make(map[string]string),
	}
}

// Key hashes the pixels of p row by row, so strided views and copies of the
// same pixels hash equally.
func Key(p *image.NRGBA) string {
	h := sha256.New()
	b := p.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := p.PixOffset(b.Min.X, y)
		h.Write(p.Pix[i : i+4*b.Dx()])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Classifier) Fit(ctx context.Context, patches []*image.NRGBA, targets []labels.Sequence) error {
	if len(patches) != len(targets) {
		return ocrerr.Configf("%d patches but %d targets", len(patches), len(targets))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range patches {
		c.memory[Key(p)] = labels.Decode(targets[i])
	}
	c.fitCalls = append(c.fitCalls, FitCall{Patches: len(patches), MaxIterations: c.maxIterations})
	return nil
}

func (c *Classifier) Predict(ctx context.Context, patches []*image.NRGBA) ([]labels.Sequence, error) {
	c.mu.Lock()
	c.predictCalls = append(c.predictCalls, len(patches))
	c.mu.Unlock()

	out := make([]labels.Sequence, len(patches))
	for i, p := range patches {
		c.mu.Lock()
		text, ok := c.memory[Key(p)]
		c.mu.Unlock()
		if !ok && c.Oracle != nil {
			text = c.Oracle(p)
		}
		seq, err := c.codec.Encode(labels.TrimPadding(text))
		if err != nil {
			return nil, fmt.Errorf("stub prediction %d: %w", i, err)
		}
		out[i] = seq
	}
	return out, nil
}

func (c *Classifier) SetMaxIterations(n int) {
	c.mu.Lock()
	c.maxIterations = n
	c.mu.Unlock()
}

func (c *Classifier) Save(path string) error {
	c.mu.Lock()
	data, err := json.Marshal(savedModel{MaxChars: c.codec.MaxChars, Memory: c.memory})
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Classifier) Restore(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var m savedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return false, fmt.Errorf("failed to parse stub model: %w", err)
	}
	if m.MaxChars != c.codec.MaxChars {
		return false, ocrerr.Configf("stub model has max chars %d, want %d", m.MaxChars, c.codec.MaxChars)
	}
	c.mu.Lock()
	c.memory = m.Memory
	if c.memory == nil {
		c.memory = make(map[string]string)
	}
	c.mu.Unlock()
	return true, nil
}

func (c *Classifier) Classes() *labels.Alphabet { return c.codec.Alphabet }

func (c *Classifier) RestoreClasses(classes *labels.Alphabet) error {
	if !classes.Equal(c.codec.Alphabet) {
		return ocrerr.Configf("stub classes %q do not match %q", classes, c.codec.Alphabet)
	}
	return nil
}

// FitCalls returns the recorded Fit invocations.
func (c *Classifier) FitCalls() []FitCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FitCall(nil), c.fitCalls...)
}

// PredictCalls returns the batch size of every Predict invocation.
func (c *Classifier) PredictCalls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.predictCalls...)
}
