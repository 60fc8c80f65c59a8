package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Handle is a loaded, ready-to-run model. Implementations are safe for
// concurrent Predict calls.
type Handle interface {
	// InputShape is the HxWxC tensor Predict expects.
	InputShape() Shape
	// OutputSize is the length of the probability vector Predict returns.
	OutputSize() int
	// Predict runs one forward pass.
	Predict(in Tensor) ([]float32, error)
	Close() error
}

// Network is a Sequential model executed in process.
type Network struct {
	name    string
	input   InputLayerConfig
	inShape Shape
	layers  []layer
	compile json.RawMessage
}

var _ Handle = (*Network)(nil)

// Allocation bounds applied by Build before any weight buffer exists.
const (
	// DefaultMaxParams is 1 GiB of float32 weights.
	DefaultMaxParams = 1 << 28
	// MaxActivation bounds the values of any single layer output.
	MaxActivation = 1 << 26
)

// ErrTooManyParams reports an architecture whose declared sizes exceed the
// allocation budget.
var ErrTooManyParams = errors.New("model exceeds size limit")

func (o DecodeOptions) maxParams() int {
	if o.MaxParams > 0 && o.MaxParams < DefaultMaxParams {
		return o.MaxParams
	}
	return DefaultMaxParams
}

// Build constructs an empty (zero-weight) network from an architecture spec.
// Layer configs are decoded strictly unless opts.Relaxed is set.
func Build(spec ModelSpec, opts DecodeOptions) (*Network, error) {
	if err := checkSpec(spec); err != nil {
		return nil, err
	}
	first := spec.Config.Layers[0]
	if first.ClassName != "InputLayer" {
		return nil, fmt.Errorf("first layer must be InputLayer, got %s", first.ClassName)
	}
	var in InputLayerConfig
	if err := decodeLayerConfig(first.Config, &in, !opts.Relaxed); err != nil {
		return nil, fmt.Errorf("layer 0 (InputLayer): %w", err)
	}
	shape, err := inputShape(in.BatchShape)
	if err != nil {
		return nil, fmt.Errorf("layer 0 (InputLayer): %w", err)
	}
	n := &Network{name: spec.Config.Name, input: in, inShape: shape, compile: spec.CompileConfig}
	seen := map[string]bool{}
	cur := shape
	for i, ls := range spec.Config.Layers[1:] {
		factory, ok := layerFactories[ls.ClassName]
		if !ok {
			return nil, fmt.Errorf("layer %d: unsupported layer class %q", i+1, ls.ClassName)
		}
		l, err := factory(ls.Config, cur, !opts.Relaxed)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i+1, ls.ClassName, err)
		}
		if l.Name() == "" {
			return nil, fmt.Errorf("layer %d (%s): missing name", i+1, ls.ClassName)
		}
		if seen[l.Name()] {
			return nil, fmt.Errorf("duplicate layer name %q", l.Name())
		}
		seen[l.Name()] = true
		if err := checkActivation(l.OutputShape()); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i+1, ls.ClassName, err)
		}
		n.layers = append(n.layers, l)
		cur = l.OutputShape()
	}
	if cur.H != 1 || cur.W != 1 {
		return nil, fmt.Errorf("model output must be a vector, got %s", cur)
	}
	if err := n.allocate(opts.maxParams()); err != nil {
		return nil, err
	}
	return n, nil
}

// allocate sizes every variable once the total fits within limit.
func (n *Network) allocate(limit int) error {
	total := 0
	for _, v := range n.Variables() {
		size, ok := v.Size()
		if !ok || size > limit-total {
			return fmt.Errorf("%w: %s %v exceeds %d values", ErrTooManyParams, v.Name, v.Shape, limit)
		}
		total += size
	}
	for _, v := range n.Variables() {
		size, _ := v.Size()
		v.Data = make([]float32, size)
	}
	return nil
}

func inputShape(batch []*int) (Shape, error) {
	if len(batch) != 4 {
		return Shape{}, fmt.Errorf("batch_shape must have 4 dims [batch, h, w, c], got %d", len(batch))
	}
	dims := make([]int, 3)
	for i, d := range batch[1:] {
		if d == nil || *d <= 0 {
			return Shape{}, errors.New("batch_shape spatial and channel dims must be fixed and positive")
		}
		dims[i] = *d
	}
	s := Shape{H: dims[0], W: dims[1], C: dims[2]}
	return s, checkActivation(s)
}

// checkActivation bounds the values one layer output may hold.
func checkActivation(s Shape) error {
	if n, ok := shapeProduct([]int{s.H, s.W, s.C}); !ok || n > MaxActivation {
		return fmt.Errorf("%w: output %s exceeds %d values", ErrTooManyParams, s, MaxActivation)
	}
	return nil
}

// Name returns the model name from the architecture document.
func (n *Network) Name() string { return n.name }

func (n *Network) InputShape() Shape { return n.inShape }

func (n *Network) OutputSize() int {
	if len(n.layers) == 0 {
		return n.inShape.Size()
	}
	return n.layers[len(n.layers)-1].OutputShape().C
}

// Predict runs a forward pass. The network is never mutated.
func (n *Network) Predict(in Tensor) ([]float32, error) {
	if in.Shape != n.inShape {
		return nil, fmt.Errorf("input shape %s does not match model input %s", in.Shape, n.inShape)
	}
	if len(in.Data) != in.Shape.Size() {
		return nil, fmt.Errorf("input has %d values, want %d", len(in.Data), in.Shape.Size())
	}
	cur := in
	for _, l := range n.layers {
		cur = l.Forward(cur)
	}
	out := make([]float32, len(cur.Data))
	copy(out, cur.Data)
	return out, nil
}

func (n *Network) Close() error { return nil }

// NamedVariable is a variable qualified by its layer name ("<layer>/<var>").
type NamedVariable struct {
	Name string
	*Variable
}

// Variables lists every weight tensor in execution order.
func (n *Network) Variables() []NamedVariable {
	var out []NamedVariable
	for _, l := range n.layers {
		for _, v := range l.Variables() {
			out = append(out, NamedVariable{Name: l.Name() + "/" + v.Name, Variable: v})
		}
	}
	return out
}

// ParamCount returns the total number of weight values.
func (n *Network) ParamCount() int {
	total := 0
	for _, v := range n.Variables() {
		total += len(v.Data)
	}
	return total
}

// Spec returns the canonical (current format) architecture document.
func (n *Network) Spec() (ModelSpec, error) {
	spec := ModelSpec{ClassName: "Sequential", CompileConfig: n.compile}
	spec.Config.Name = n.name
	in := n.input
	if in.Name == "" {
		in.Name = "input_layer"
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return spec, err
	}
	spec.Config.Layers = append(spec.Config.Layers, LayerSpec{ClassName: "InputLayer", Config: raw})
	for _, l := range n.layers {
		raw, err := json.Marshal(l.Config())
		if err != nil {
			return spec, fmt.Errorf("encode %s: %w", l.Name(), err)
		}
		spec.Config.Layers = append(spec.Config.Layers, LayerSpec{ClassName: l.ClassName(), Config: raw})
	}
	return spec, nil
}

// LayerSummary describes one layer for inspection output.
type LayerSummary struct {
	Name   string `json:"name"`
	Class  string `json:"class"`
	Output Shape  `json:"output"`
	Params int    `json:"params"`
}

// Summary lists layers with output shapes and parameter counts.
func (n *Network) Summary() []LayerSummary {
	out := make([]LayerSummary, 0, len(n.layers))
	for _, l := range n.layers {
		p := 0
		for _, v := range l.Variables() {
			p += len(v.Data)
		}
		out = append(out, LayerSummary{Name: l.Name(), Class: l.ClassName(), Output: l.OutputShape(), Params: p})
	}
	return out
}
