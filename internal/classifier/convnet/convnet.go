// Package convnet implements a small trainable convolutional network that
// reads a patch as MaxChars vertical slabs and emits one character per slab.
//
// Topology, for a (Ph, Pw, 3) patch and MaxChars = M:
//
//	conv   kernel (Ph, Pw/M, 3), stride (Ph, Pw/M)  -> (1, M, Hidden)
//	relu
//	conv   kernel (1, 1, Hidden)                    -> (1, M, NC)
//	reshape (M, NC), argmax over NC
//
// Both convolutions share weights across the M positions. Layers, gradients
// and the Adam optimizer come from the anynet family; training minimizes the
// softmax cross-entropy summed over positions with L2 regularization on the
// kernels.
package convnet

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// Config holds the network shape and training hyperparameters.
type Config struct {
	Shape          imaging.PatchShape
	Codec          labels.Codec
	Hidden         int
	BatchSize      int
	LearnRate      float64
	MaxIterations  int
	Regularization float64
	// Tolerance stops training early once the mean epoch loss drops below it.
	Tolerance float64
	// Seed drives weight initialization.
	Seed int64
	// Progress receives the training progress bar. Nil discards it.
	Progress io.Writer
	Logger   logrus.FieldLogger
}

// DefaultConfig returns the stock hyperparameters for the given shape and codec.
func DefaultConfig(shape imaging.PatchShape, codec labels.Codec) Config {
	return Config{
		Shape:          shape,
		Codec:          codec,
		Hidden:         64,
		BatchSize:      512,
		LearnRate:      1e-3,
		MaxIterations:  64,
		Regularization: 1e-5,
		Tolerance:      1e-2,
		Seed:           42,
	}
}

// Network is the convnet classifier. All methods serialize on one mutex, so
// a Network may be shared between goroutines.
type Network struct {
	cfg     Config
	slab    int // Pw / MaxChars
	log     logrus.FieldLogger
	rng     *rand.Rand
	creator anyvec.Creator

	mu      sync.Mutex
	classes *labels.Alphabet
	net     anynet.Net // nil until trained or restored
}

// New validates cfg and returns an untrained network.
func New(cfg Config) (*Network, error) {
	if err := cfg.Shape.Validate(); err != nil {
		return nil, err
	}
	if cfg.Codec.Alphabet == nil || cfg.Codec.MaxChars <= 0 {
		return nil, ocrerr.Configf("convnet needs a codec")
	}
	if cfg.Shape.Width%cfg.Codec.MaxChars != 0 {
		return nil, ocrerr.Configf("patch width %d is not divisible by max chars %d", cfg.Shape.Width, cfg.Codec.MaxChars)
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = 64
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 512
	}
	if cfg.LearnRate <= 0 {
		cfg.LearnRate = 1e-3
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Network{
		cfg:     cfg,
		slab:    cfg.Shape.Width / cfg.Codec.MaxChars,
		log:     log.WithField("component", "convnet"),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		creator: anyvec32.CurrentCreator(),
		classes: cfg.Codec.Alphabet,
	}, nil
}

// SetMaxIterations sets the number of epochs used by subsequent Fit calls.
func (n *Network) SetMaxIterations(iters int) {
	n.mu.Lock()
	n.cfg.MaxIterations = iters
	n.mu.Unlock()
}

// Classes returns the class list the output layer is indexed by.
func (n *Network) Classes() *labels.Alphabet {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.classes
}

// RestoreClasses installs the class list saved alongside the weights.
func (n *Network) RestoreClasses(classes *labels.Alphabet) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.net != nil {
		if _, head, err := n.layers(n.net); err == nil && head.FilterCount != classes.Len() {
			return ocrerr.Configf("model has %d output classes, class list has %d", head.FilterCount, classes.Len())
		}
	}
	if !classes.Equal(n.cfg.Codec.Alphabet) {
		return ocrerr.Configf("class list %q does not match configured alphabet %q", classes, n.cfg.Codec.Alphabet)
	}
	n.classes = classes
	return nil
}

// build creates freshly initialized layers.
func (n *Network) build() anynet.Net {
	s := n.cfg.Shape
	slabs := &anyconv.Conv{
		FilterCount:  n.cfg.Hidden,
		FilterWidth:  n.slab,
		FilterHeight: s.Height,
		StrideX:      n.slab,
		StrideY:      s.Height,
		InputWidth:   s.Width,
		InputHeight:  s.Height,
		InputDepth:   s.Channels,
	}
	head := &anyconv.Conv{
		FilterCount:  n.classes.Len(),
		FilterWidth:  1,
		FilterHeight: 1,
		StrideX:      1,
		StrideY:      1,
		InputWidth:   n.cfg.Codec.MaxChars,
		InputHeight:  1,
		InputDepth:   n.cfg.Hidden,
	}
	n.initConv(slabs, math.Sqrt(2/float64(s.Height*n.slab*s.Channels)))
	n.initConv(head, math.Sqrt(1/float64(n.cfg.Hidden)))
	return anynet.Net{slabs, anynet.ReLU, head}
}

// initConv draws the kernels from a seeded normal distribution and zeroes
// the biases.
func (n *Network) initConv(c *anyconv.Conv, std float64) {
	w := make([]float64, c.FilterCount*c.FilterHeight*c.FilterWidth*c.InputDepth)
	for i := range w {
		w[i] = n.rng.NormFloat64() * std
	}
	c.Filters = anydiff.NewVar(n.vector(w))
	c.Biases = anydiff.NewVar(n.creator.MakeVector(c.FilterCount))
}

// layers returns the two convolutions of net after checking that net has
// the topology build produces for this configuration.
func (n *Network) layers(net anynet.Net) (slabs, head *anyconv.Conv, err error) {
	if len(net) != 3 {
		return nil, nil, fmt.Errorf("convnet: expected 3 layers, got %d", len(net))
	}
	slabs, ok := net[0].(*anyconv.Conv)
	if !ok {
		return nil, nil, fmt.Errorf("convnet: layer 0 is %T, want convolution", net[0])
	}
	head, ok = net[2].(*anyconv.Conv)
	if !ok {
		return nil, nil, fmt.Errorf("convnet: layer 2 is %T, want convolution", net[2])
	}

	s := n.cfg.Shape
	if slabs.InputWidth != s.Width || slabs.InputHeight != s.Height || slabs.InputDepth != s.Channels ||
		slabs.FilterWidth != n.slab || slabs.FilterHeight != s.Height || slabs.StrideX != n.slab {
		return nil, nil, ocrerr.Configf("model reads %dx%dx%d patches in %d-pixel slabs, configured %s in %d-pixel slabs",
			slabs.InputHeight, slabs.InputWidth, slabs.InputDepth, slabs.FilterWidth, s, n.slab)
	}
	if head.InputWidth != n.cfg.Codec.MaxChars || head.InputDepth != slabs.FilterCount {
		return nil, nil, ocrerr.Configf("model emits %d characters, configured %d", head.InputWidth, n.cfg.Codec.MaxChars)
	}
	return slabs, head, nil
}

func (n *Network) vector(data []float64) anyvec.Vector {
	return n.creator.MakeVectorData(n.creator.MakeNumericList(data))
}

// pixels appends the normalized pixels of each patch to dst in
// (y, x, channel) order, the layout anyconv expects.
func pixels(dst []float64, patches []*image.NRGBA) []float64 {
	for _, p := range patches {
		b := p.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := p.PixOffset(b.Min.X, y)
			for x := b.Min.X; x < b.Max.X; x++ {
				dst = append(dst, float64(p.Pix[i])/255, float64(p.Pix[i+1])/255, float64(p.Pix[i+2])/255)
				i += 4
			}
		}
	}
	return dst
}

// floats copies v out of its creator's numeric type.
func floats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		out := make([]float64, len(data))
		for i, x := range data {
			out[i] = float64(x)
		}
		return out
	case []float64:
		return append([]float64(nil), data...)
	default:
		panic(fmt.Sprintf("convnet: unsupported numeric list %T", data))
	}
}

func argmax(row []float64) int {
	best := 0
	for c := 1; c < len(row); c++ {
		if row[c] > row[best] {
			best = c
		}
	}
	return best
}

// Predict returns the argmax class sequence for each patch.
func (n *Network) Predict(ctx context.Context, patches []*image.NRGBA) ([]labels.Sequence, error) {
	if err := classifier.CheckShapes(n.cfg.Shape, patches); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.net == nil {
		return nil, fmt.Errorf("convnet: predict called before the model was trained or restored")
	}

	m, nc := n.cfg.Codec.MaxChars, n.classes.Len()
	out := make([]labels.Sequence, 0, len(patches))
	var buf []float64
	for start := 0; start < len(patches); start += n.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := patches[start:min(start+n.cfg.BatchSize, len(patches))]
		buf = pixels(buf[:0], chunk)
		logits := floats(n.net.Apply(anydiff.NewConst(n.vector(buf)), len(chunk)).Output())

		for i := range chunk {
			seq := make(labels.Sequence, m)
			for pos := 0; pos < m; pos++ {
				off := (i*m + pos) * nc
				seq[pos] = n.classes.Symbol(argmax(logits[off : off+nc]))
			}
			out = append(out, seq)
		}
	}
	return out, nil
}
