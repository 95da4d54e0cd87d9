package convnet

import (
	"context"
	"image"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// sample is one patch in (y, x, channel) order with its one-hot targets laid
// out as (MaxChars, NC).
type sample struct {
	input  []float64
	target []float64
}

// sampleList is an anysgd.SampleList of in-memory samples.
type sampleList []*sample

func (s sampleList) Len() int { return len(s) }

func (s sampleList) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s sampleList) Slice(i, j int) anysgd.SampleList {
	return append(sampleList{}, s[i:j]...)
}

type batch struct {
	inputs  *anydiff.Const
	targets *anydiff.Const
	n       int
}

// trainer fetches batches for anysgd and computes the gradient of the mean
// per-patch cross-entropy plus L2 decay on the kernels.
type trainer struct {
	net     anynet.Net
	params  []*anydiff.Var
	kernels []*anydiff.Var
	creator anyvec.Creator
	classes int
	reg     float64

	total   int
	seen    int
	lossSum float64
	// epoch is called with the mean loss each time a full pass completes.
	epoch func(loss float64)
}

func (t *trainer) vector(data []float64) anyvec.Vector {
	return t.creator.MakeVectorData(t.creator.MakeNumericList(data))
}

// Fetch implements anysgd.Fetcher.
func (t *trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	list := s.(sampleList)
	var in, target []float64
	for _, smp := range list {
		in = append(in, smp.input...)
		target = append(target, smp.target...)
	}
	return &batch{
		inputs:  anydiff.NewConst(t.vector(in)),
		targets: anydiff.NewConst(t.vector(target)),
		n:       len(list),
	}, nil
}

// Gradient implements anysgd.Gradienter.
func (t *trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	bt := b.(*batch)
	grad := anydiff.NewGrad(t.params...)

	logits := t.net.Apply(bt.inputs, bt.n)
	loss := anydiff.Scale(
		anydiff.Sum(anydiff.Mul(anydiff.LogSoftmax(logits, t.classes), bt.targets)),
		t.creator.MakeNumeric(-1/float64(bt.n)),
	)
	loss.Propagate(t.vector([]float64{1}), grad)

	if t.reg > 0 {
		for _, k := range t.kernels {
			decay := k.Vector.Copy()
			decay.Scale(t.creator.MakeNumeric(t.reg))
			grad[k].Add(decay)
		}
	}

	t.lossSum += floats(loss.Output())[0] * float64(bt.n)
	t.seen += bt.n
	if t.seen >= t.total {
		mean := t.lossSum / float64(t.seen)
		t.seen -= t.total
		t.lossSum = 0
		t.epoch(mean)
	}
	return grad
}

// samples converts patches and class sequences into training samples.
func (n *Network) samples(patches []*image.NRGBA, targets []labels.Sequence) (sampleList, error) {
	m, nc := n.cfg.Codec.MaxChars, n.classes.Len()
	list := make(sampleList, len(patches))
	for i, p := range patches {
		if len(targets[i]) != m {
			return nil, ocrerr.Configf("target %d has %d positions, want %d", i, len(targets[i]), m)
		}
		target := make([]float64, m*nc)
		for pos, r := range targets[i] {
			c, ok := n.classes.Index(r)
			if !ok {
				return nil, ocrerr.Configf("target %d holds %q, which is not a class", i, r)
			}
			target[pos*nc+c] = 1
		}
		list[i] = &sample{input: pixels(nil, []*image.NRGBA{p}), target: target}
	}
	return list, nil
}

// Fit trains for up to MaxIterations epochs, continuing from the current
// weights when the network was already trained or restored. Training stops
// early once an epoch's mean loss falls below Tolerance.
func (n *Network) Fit(ctx context.Context, patches []*image.NRGBA, targets []labels.Sequence) error {
	if len(patches) != len(targets) {
		return ocrerr.Configf("got %d patches but %d targets", len(patches), len(targets))
	}
	if err := classifier.CheckShapes(n.cfg.Shape, patches); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	list, err := n.samples(patches, targets)
	if err != nil {
		return err
	}
	if n.net == nil {
		n.net = n.build()
	}
	if len(list) == 0 || n.cfg.MaxIterations <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slabs, head, err := n.layers(n.net)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(n.cfg.MaxIterations,
		progressbar.OptionSetDescription("training"),
		progressbar.OptionSetWriter(n.cfg.Progress),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	epochs := 0
	t := &trainer{
		net:     n.net,
		params:  n.net.Parameters(),
		kernels: []*anydiff.Var{slabs.Filters, head.Filters},
		creator: n.creator,
		classes: n.classes.Len(),
		reg:     n.cfg.Regularization,
		total:   len(list),
		epoch: func(loss float64) {
			epochs++
			_ = bar.Add(1)
			n.log.WithFields(logrus.Fields{"epoch": epochs, "loss": loss}).Debug("epoch complete")
			switch {
			case loss < n.cfg.Tolerance:
				n.log.WithField("epoch", epochs).Info("loss below tolerance, stopping early")
				stop()
			case epochs >= n.cfg.MaxIterations, ctx.Err() != nil:
				stop()
			}
		},
	}

	sgd := &anysgd.SGD{
		Fetcher:     t,
		Gradienter:  t,
		Transformer: &anysgd.Adam{},
		Samples:     list,
		Rater:       anysgd.ConstRater(n.cfg.LearnRate),
		BatchSize:   n.cfg.BatchSize,
		StatusFunc: func(anysgd.Batch) {
			if ctx.Err() != nil {
				stop()
			}
		},
	}
	if err := sgd.Run(done); err != nil {
		return err
	}
	return ctx.Err()
}
