// Package acnet implements inference for ACNet, an asymmetric convolutional
// network for single image super-resolution, on the luma channel of an image.
//
// The network is a stack of asymmetric blocks (3x3, 1x3 and 3x1 kernels summed
// and rectified), a memory enhancement stage that fuses the outputs of every
// block, sub-pixel upsampling, and a high-frequency refinement tail that
// produces a single channel.
package acnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/exp/maps"
)

// Config describes the shape of a model.
type Config struct {
	Scale    int
	Features int
	Depth    int
}

// DefaultConfig returns the published ACNet layout for x2 upscaling.
func DefaultConfig() Config {
	return Config{Scale: 2, Features: 64, Depth: 17}
}

// Validate checks that a model can be built from c.
func (c Config) Validate() error {
	if c.Features < 1 {
		return fmt.Errorf("features must be positive, got %d", c.Features)
	}
	if c.Depth < 1 {
		return fmt.Errorf("depth must be positive, got %d", c.Depth)
	}
	_, err := c.upsampleFactors()
	return err
}

func (c Config) upsampleFactors() ([]int, error) {
	switch c.Scale {
	case 2, 3:
		return []int{c.Scale}, nil
	case 4:
		return []int{2, 2}, nil
	}
	return nil, fmt.Errorf("x%d: %w", c.Scale, ErrUnsupportedScale)
}

type asymBlock struct {
	square     *Conv2D
	horizontal *Conv2D
	vertical   *Conv2D
}

func (b *asymBlock) forward(ctx context.Context, x *Tensor, workers int) (*Tensor, error) {
	y, err := b.square.Forward(ctx, x, workers)
	if err != nil {
		return nil, err
	}
	for _, c := range []*Conv2D{b.horizontal, b.vertical} {
		if c == nil {
			continue
		}
		z, err := c.Forward(ctx, x, workers)
		if err != nil {
			return nil, err
		}
		if err := y.Add(z); err != nil {
			return nil, err
		}
	}
	return y.ReLU(), nil
}

// fold adds the 1x3 and 3x1 kernels into the centre row and column of the
// 3x3 kernel. Convolution is linear, so the folded block is exact.
func (b *asymBlock) fold() {
	sq := b.square
	for o := 0; o < sq.Out; o++ {
		for i := 0; i < sq.In; i++ {
			base := (o*sq.In + i) * 9
			for k := 0; k < 3; k++ {
				sq.Weight[base+3+k] += b.horizontal.Weight[(o*sq.In+i)*3+k]
				sq.Weight[base+k*3+1] += b.vertical.Weight[(o*sq.In+i)*3+k]
			}
		}
		sq.Bias[o] += b.horizontal.Bias[o] + b.vertical.Bias[o]
	}
	b.horizontal, b.vertical = nil, nil
}

// Model is an ACNet instance. Workers bounds the goroutines used by each
// convolution; Logger receives per-layer progress at debug level.
type Model struct {
	Workers int
	Logger  *slog.Logger

	cfg      Config
	blocks   []*asymBlock
	fuse     *Conv2D
	upsample []*Conv2D
	factors  []int
	refine   *Conv2D
	tail     *Conv2D
	params   map[string]*Param
	fused    bool
}

// New builds a zero initialized model.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factors, _ := cfg.upsampleFactors()
	f := cfg.Features
	m := &Model{
		Workers: 1,
		Logger:  slog.Default(),
		cfg:     cfg,
		factors: factors,
		fuse:    NewConv2D(f, f, 3, 3),
		refine:  NewConv2D(f, f, 3, 3),
		tail:    NewConv2D(f, 1, 3, 3),
		params:  make(map[string]*Param),
	}
	for i := 0; i < cfg.Depth; i++ {
		in := f
		if i == 0 {
			in = 1
		}
		b := &asymBlock{
			square:     NewConv2D(in, f, 3, 3),
			horizontal: NewConv2D(in, f, 1, 3),
			vertical:   NewConv2D(in, f, 3, 1),
		}
		m.blocks = append(m.blocks, b)
		m.register(fmt.Sprintf("blocks.%d.square", i), b.square)
		m.register(fmt.Sprintf("blocks.%d.horizontal", i), b.horizontal)
		m.register(fmt.Sprintf("blocks.%d.vertical", i), b.vertical)
	}
	m.register("fuse", m.fuse)
	for k, r := range factors {
		up := NewConv2D(f, f*r*r, 3, 3)
		m.upsample = append(m.upsample, up)
		m.register(fmt.Sprintf("upsample.%d", k), up)
	}
	m.register("refine", m.refine)
	m.register("tail", m.tail)
	return m, nil
}

func (m *Model) register(prefix string, c *Conv2D) {
	m.params[prefix+".weight"] = &Param{Shape: c.WeightShape(), Data: c.Weight}
	m.params[prefix+".bias"] = &Param{Shape: []int{c.Out}, Data: c.Bias, optional: true}
}

// Scale returns the upscaling factor.
func (m *Model) Scale() int { return m.cfg.Scale }

// StateDict returns a copy of every parameter, keyed by name.
func (m *Model) StateDict() StateDict {
	sd := make(StateDict, len(m.params))
	for name, p := range m.params {
		sd[name] = Param{Shape: slices.Clone(p.Shape), Data: slices.Clone(p.Data)}
	}
	return sd
}

// Load copies every tensor of sd into the parameter of the same name. A name
// the model does not have is an error; parameters absent from sd keep their
// current value.
func (m *Model) Load(sd StateDict) error {
	if m.fused {
		return errors.New("cannot load weights into a fused model")
	}
	names := maps.Keys(sd)
	slices.Sort(names)
	for _, name := range names {
		p, ok := m.params[name]
		if !ok {
			return fmt.Errorf("%q: %w", name, ErrUnknownParameter)
		}
		src := sd[name]
		if !slices.Equal(p.Shape, src.Shape) {
			return fmt.Errorf("%q has shape %v, model expects %v: %w", name, src.Shape, p.Shape, ErrShapeMismatch)
		}
		copy(p.Data, src.Data)
	}
	for name, p := range m.params {
		if _, ok := sd[name]; !ok && !p.optional {
			m.Logger.Warn("parameter missing from weights", "name", name)
		}
	}
	return nil
}

// Fuse folds every asymmetric block into a single 3x3 convolution. Weights
// cannot be loaded afterwards.
func (m *Model) Fuse() {
	if m.fused {
		return
	}
	for _, b := range m.blocks {
		b.fold()
	}
	m.fused = true
}

// Upscale runs the network on a single channel tensor of normalized luma and
// returns a tensor Scale times larger in each spatial dimension. The result
// is not clamped.
func (m *Model) Upscale(ctx context.Context, lr *Tensor) (*Tensor, error) {
	if lr.C != 1 {
		return nil, fmt.Errorf("expected 1 channel, got %d: %w", lr.C, ErrShapeMismatch)
	}
	layers := len(m.blocks) + len(m.upsample) + 3
	done := 0
	step := func(name string, start time.Time) {
		done++
		m.Logger.Debug("layer done", "layer", name, "progress", fmt.Sprintf("%.1f%%", 100*float64(done)/float64(layers)), "elapsed", time.Since(start))
	}

	x := lr
	var mem *Tensor
	for i, b := range m.blocks {
		start := time.Now()
		y, err := b.forward(ctx, x, m.Workers)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if mem == nil {
			mem = y.Clone()
		} else if err := mem.Add(y); err != nil {
			return nil, err
		}
		x = y
		step(fmt.Sprintf("blocks.%d", i), start)
	}

	start := time.Now()
	h, err := m.fuse.Forward(ctx, mem, m.Workers)
	if err != nil {
		return nil, fmt.Errorf("fuse: %w", err)
	}
	h.ReLU()
	step("fuse", start)

	for k, up := range m.upsample {
		start := time.Now()
		h, err = up.Forward(ctx, h, m.Workers)
		if err != nil {
			return nil, fmt.Errorf("upsample %d: %w", k, err)
		}
		if h, err = PixelShuffle(h.ReLU(), m.factors[k]); err != nil {
			return nil, err
		}
		step(fmt.Sprintf("upsample.%d", k), start)
	}

	start = time.Now()
	if h, err = m.refine.Forward(ctx, h, m.Workers); err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	h.ReLU()
	step("refine", start)

	start = time.Now()
	out, err := m.tail.Forward(ctx, h, m.Workers)
	if err != nil {
		return nil, fmt.Errorf("tail: %w", err)
	}
	step("tail", start)
	return out, nil
}
