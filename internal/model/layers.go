package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// layer is one executable stage of a Network. Forward must not mutate its input.
type layer interface {
	Name() string
	ClassName() string
	Config() any
	OutputShape() Shape
	Variables() []*Variable
	Forward(in Tensor) Tensor
}

// Variable is a named weight tensor owned by a layer.
type Variable struct {
	Name  string
	Shape []int
	Data  []float32
}

// newVariable declares a weight tensor. Data stays nil until Build has
// checked the whole network against its parameter budget.
func newVariable(name string, shape ...int) *Variable {
	return &Variable{Name: name, Shape: shape}
}

// Size is the number of values the variable holds; ok is false when a
// dimension is negative or the product overflows int.
func (v *Variable) Size() (n int, ok bool) {
	return shapeProduct(v.Shape)
}

func shapeProduct(dims []int) (int, bool) {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return 0, false
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

type layerBase struct {
	Name      string `json:"name"`
	Trainable *bool  `json:"trainable,omitempty"`
	DType     string `json:"dtype,omitempty"`
}

// initializerFields are accepted and ignored: inference never re-initializes.
type initializerFields struct {
	KernelInitializer   json.RawMessage `json:"kernel_initializer,omitempty"`
	BiasInitializer     json.RawMessage `json:"bias_initializer,omitempty"`
	KernelRegularizer   json.RawMessage `json:"kernel_regularizer,omitempty"`
	BiasRegularizer     json.RawMessage `json:"bias_regularizer,omitempty"`
	ActivityRegularizer json.RawMessage `json:"activity_regularizer,omitempty"`
	KernelConstraint    json.RawMessage `json:"kernel_constraint,omitempty"`
	BiasConstraint      json.RawMessage `json:"bias_constraint,omitempty"`
}

// InputLayerConfig declares the model input. BatchShape is [null, H, W, C].
type InputLayerConfig struct {
	layerBase
	BatchShape []*int `json:"batch_shape"`
	Sparse     bool   `json:"sparse,omitempty"`
}

type RescalingConfig struct {
	layerBase
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

type Conv2DConfig struct {
	layerBase
	initializerFields
	Filters      int    `json:"filters"`
	KernelSize   []int  `json:"kernel_size"`
	Strides      []int  `json:"strides,omitempty"`
	Padding      string `json:"padding,omitempty"`
	DataFormat   string `json:"data_format,omitempty"`
	DilationRate []int  `json:"dilation_rate,omitempty"`
	Activation   string `json:"activation,omitempty"`
	UseBias      *bool  `json:"use_bias,omitempty"`
}

type DenseConfig struct {
	layerBase
	initializerFields
	Units      int    `json:"units"`
	Activation string `json:"activation,omitempty"`
	UseBias    *bool  `json:"use_bias,omitempty"`
}

type Pooling2DConfig struct {
	layerBase
	PoolSize   []int  `json:"pool_size"`
	Strides    []int  `json:"strides,omitempty"`
	Padding    string `json:"padding,omitempty"`
	DataFormat string `json:"data_format,omitempty"`
}

type GlobalPooling2DConfig struct {
	layerBase
	DataFormat string `json:"data_format,omitempty"`
	KeepDims   bool   `json:"keepdims,omitempty"`
}

type FlattenConfig struct {
	layerBase
	DataFormat string `json:"data_format,omitempty"`
}

type DropoutConfig struct {
	layerBase
	Rate       float64         `json:"rate"`
	NoiseShape json.RawMessage `json:"noise_shape,omitempty"`
	Seed       *int64          `json:"seed,omitempty"`
}

type ActivationConfig struct {
	layerBase
	Activation string `json:"activation"`
}

type BatchNormalizationConfig struct {
	layerBase
	Axis                      json.RawMessage `json:"axis,omitempty"`
	Momentum                  float64         `json:"momentum,omitempty"`
	Epsilon                   float64         `json:"epsilon,omitempty"`
	Center                    *bool           `json:"center,omitempty"`
	Scale                     *bool           `json:"scale,omitempty"`
	BetaInitializer           json.RawMessage `json:"beta_initializer,omitempty"`
	GammaInitializer          json.RawMessage `json:"gamma_initializer,omitempty"`
	MovingMeanInitializer     json.RawMessage `json:"moving_mean_initializer,omitempty"`
	MovingVarianceInitializer json.RawMessage `json:"moving_variance_initializer,omitempty"`
	BetaRegularizer           json.RawMessage `json:"beta_regularizer,omitempty"`
	GammaRegularizer          json.RawMessage `json:"gamma_regularizer,omitempty"`
	BetaConstraint            json.RawMessage `json:"beta_constraint,omitempty"`
	GammaConstraint           json.RawMessage `json:"gamma_constraint,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func pair(v []int, def int) (int, int, error) {
	switch len(v) {
	case 0:
		return def, def, nil
	case 1:
		return v[0], v[0], nil
	case 2:
		return v[0], v[1], nil
	default:
		return 0, 0, fmt.Errorf("expected 1 or 2 values, got %d", len(v))
	}
}

func checkChannelsLast(df string) error {
	if df != "" && df != "channels_last" {
		return fmt.Errorf("unsupported data_format %q", df)
	}
	return nil
}

// windowOutput computes the output length and leading pad for a sliding
// window along one axis using the upstream framework's padding rules.
func windowOutput(in, k, s int, padding string) (int, int, error) {
	if k <= 0 || s <= 0 {
		return 0, 0, fmt.Errorf("window %d and stride %d must be positive", k, s)
	}
	switch padding {
	case "", "valid":
		if in < k {
			return 0, 0, fmt.Errorf("input %d smaller than window %d", in, k)
		}
		return (in-k)/s + 1, 0, nil
	case "same":
		out := (in + s - 1) / s
		total := (out-1)*s + k - in
		if total < 0 {
			total = 0
		}
		return out, total / 2, nil
	default:
		return 0, 0, fmt.Errorf("unsupported padding %q", padding)
	}
}

func decodeLayerConfig(raw json.RawMessage, v any, strict bool) error {
	if !strict {
		return json.Unmarshal(raw, v)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type layerFactory func(raw json.RawMessage, in Shape, strict bool) (layer, error)

var layerFactories = map[string]layerFactory{
	"Rescaling":              newRescaling,
	"Conv2D":                 newConv2D,
	"Dense":                  newDense,
	"MaxPooling2D":           newPooling(true),
	"AveragePooling2D":       newPooling(false),
	"GlobalAveragePooling2D": newGlobalAvgPool,
	"Flatten":                newFlatten,
	"Dropout":                newDropout,
	"Activation":             newActivationLayer,
	"BatchNormalization":     newBatchNorm,
}

// ---- Rescaling ----

type rescaling struct {
	cfg   RescalingConfig
	shape Shape
}

func newRescaling(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg RescalingConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	return &rescaling{cfg: cfg, shape: in}, nil
}

func (l *rescaling) Name() string           { return l.cfg.Name }
func (l *rescaling) ClassName() string      { return "Rescaling" }
func (l *rescaling) Config() any            { return l.cfg }
func (l *rescaling) OutputShape() Shape     { return l.shape }
func (l *rescaling) Variables() []*Variable { return nil }

func (l *rescaling) Forward(in Tensor) Tensor {
	out := NewTensor(l.shape)
	s, o := float32(l.cfg.Scale), float32(l.cfg.Offset)
	for i, v := range in.Data {
		out.Data[i] = v*s + o
	}
	return out
}

// ---- Conv2D ----

type conv2D struct {
	cfg             Conv2DConfig
	in, out         Shape
	kh, kw, sh, sw  int
	padTop, padLeft int
	act             activation
	kernel, bias    *Variable
}

func newConv2D(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg Conv2DConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	if err := checkChannelsLast(cfg.DataFormat); err != nil {
		return nil, err
	}
	if cfg.Filters <= 0 {
		return nil, fmt.Errorf("filters must be positive")
	}
	for _, d := range cfg.DilationRate {
		if d != 1 {
			return nil, fmt.Errorf("dilation_rate %v not supported", cfg.DilationRate)
		}
	}
	kh, kw, err := pair(cfg.KernelSize, 0)
	if err != nil {
		return nil, fmt.Errorf("kernel_size: %w", err)
	}
	sh, sw, err := pair(cfg.Strides, 1)
	if err != nil {
		return nil, fmt.Errorf("strides: %w", err)
	}
	oh, pt, err := windowOutput(in.H, kh, sh, cfg.Padding)
	if err != nil {
		return nil, err
	}
	ow, pl, err := windowOutput(in.W, kw, sw, cfg.Padding)
	if err != nil {
		return nil, err
	}
	act, err := lookupActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	l := &conv2D{
		cfg: cfg, in: in, out: Shape{H: oh, W: ow, C: cfg.Filters},
		kh: kh, kw: kw, sh: sh, sw: sw, padTop: pt, padLeft: pl, act: act,
		kernel: newVariable("kernel", kh, kw, in.C, cfg.Filters),
	}
	if boolOr(cfg.UseBias, true) {
		l.bias = newVariable("bias", cfg.Filters)
	}
	return l, nil
}

func (l *conv2D) Name() string       { return l.cfg.Name }
func (l *conv2D) ClassName() string  { return "Conv2D" }
func (l *conv2D) Config() any        { return l.cfg }
func (l *conv2D) OutputShape() Shape { return l.out }

func (l *conv2D) Variables() []*Variable {
	if l.bias == nil {
		return []*Variable{l.kernel}
	}
	return []*Variable{l.kernel, l.bias}
}

func (l *conv2D) Forward(in Tensor) Tensor {
	out := NewTensor(l.out)
	f := l.out.C
	cin := l.in.C
	k := l.kernel.Data
	for oy := 0; oy < l.out.H; oy++ {
		for ox := 0; ox < l.out.W; ox++ {
			o := out.Data[(oy*l.out.W+ox)*f : (oy*l.out.W+ox+1)*f]
			if l.bias != nil {
				copy(o, l.bias.Data)
			}
			for ky := 0; ky < l.kh; ky++ {
				iy := oy*l.sh + ky - l.padTop
				if iy < 0 || iy >= l.in.H {
					continue
				}
				for kx := 0; kx < l.kw; kx++ {
					ix := ox*l.sw + kx - l.padLeft
					if ix < 0 || ix >= l.in.W {
						continue
					}
					px := in.Data[(iy*l.in.W+ix)*cin : (iy*l.in.W+ix+1)*cin]
					kbase := (ky*l.kw + kx) * cin * f
					for c, v := range px {
						if v == 0 {
							continue
						}
						row := k[kbase+c*f : kbase+(c+1)*f]
						for j := range o {
							o[j] += v * row[j]
						}
					}
				}
			}
		}
	}
	if l.act != nil {
		l.act(out.Data, f)
	}
	return out
}

// ---- Dense ----

type dense struct {
	cfg          DenseConfig
	inUnits      int
	act          activation
	kernel, bias *Variable
}

func newDense(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg DenseConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	if cfg.Units <= 0 {
		return nil, fmt.Errorf("units must be positive")
	}
	if in.H != 1 || in.W != 1 {
		return nil, fmt.Errorf("dense input must be flat, got %s (add Flatten or GlobalAveragePooling2D)", in)
	}
	act, err := lookupActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	l := &dense{cfg: cfg, inUnits: in.C, act: act, kernel: newVariable("kernel", in.C, cfg.Units)}
	if boolOr(cfg.UseBias, true) {
		l.bias = newVariable("bias", cfg.Units)
	}
	return l, nil
}

func (l *dense) Name() string       { return l.cfg.Name }
func (l *dense) ClassName() string  { return "Dense" }
func (l *dense) Config() any        { return l.cfg }
func (l *dense) OutputShape() Shape { return Shape{H: 1, W: 1, C: l.cfg.Units} }

func (l *dense) Variables() []*Variable {
	if l.bias == nil {
		return []*Variable{l.kernel}
	}
	return []*Variable{l.kernel, l.bias}
}

func (l *dense) Forward(in Tensor) Tensor {
	u := l.cfg.Units
	out := NewTensor(l.OutputShape())
	if l.bias != nil {
		copy(out.Data, l.bias.Data)
	}
	for i, v := range in.Data {
		if v == 0 {
			continue
		}
		row := l.kernel.Data[i*u : (i+1)*u]
		for j := range out.Data {
			out.Data[j] += v * row[j]
		}
	}
	if l.act != nil {
		l.act(out.Data, u)
	}
	return out
}

// ---- MaxPooling2D / AveragePooling2D ----

type pooling2D struct {
	cfg             Pooling2DConfig
	max             bool
	in, out         Shape
	ph, pw, sh, sw  int
	padTop, padLeft int
}

func newPooling(isMax bool) layerFactory {
	return func(raw json.RawMessage, in Shape, strict bool) (layer, error) {
		var cfg Pooling2DConfig
		if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
			return nil, err
		}
		if err := checkChannelsLast(cfg.DataFormat); err != nil {
			return nil, err
		}
		ph, pw, err := pair(cfg.PoolSize, 2)
		if err != nil {
			return nil, fmt.Errorf("pool_size: %w", err)
		}
		sh, sw := ph, pw
		if len(cfg.Strides) > 0 {
			if sh, sw, err = pair(cfg.Strides, 1); err != nil {
				return nil, fmt.Errorf("strides: %w", err)
			}
		}
		oh, pt, err := windowOutput(in.H, ph, sh, cfg.Padding)
		if err != nil {
			return nil, err
		}
		ow, pl, err := windowOutput(in.W, pw, sw, cfg.Padding)
		if err != nil {
			return nil, err
		}
		return &pooling2D{cfg: cfg, max: isMax, in: in, out: Shape{H: oh, W: ow, C: in.C},
			ph: ph, pw: pw, sh: sh, sw: sw, padTop: pt, padLeft: pl}, nil
	}
}

func (l *pooling2D) Name() string { return l.cfg.Name }

func (l *pooling2D) ClassName() string {
	if l.max {
		return "MaxPooling2D"
	}
	return "AveragePooling2D"
}

func (l *pooling2D) Config() any            { return l.cfg }
func (l *pooling2D) OutputShape() Shape     { return l.out }
func (l *pooling2D) Variables() []*Variable { return nil }

func (l *pooling2D) Forward(in Tensor) Tensor {
	out := NewTensor(l.out)
	c := l.in.C
	for oy := 0; oy < l.out.H; oy++ {
		for ox := 0; ox < l.out.W; ox++ {
			for ch := 0; ch < c; ch++ {
				acc := float32(0)
				if l.max {
					acc = float32(math.Inf(-1))
				}
				n := 0
				for ky := 0; ky < l.ph; ky++ {
					iy := oy*l.sh + ky - l.padTop
					if iy < 0 || iy >= l.in.H {
						continue
					}
					for kx := 0; kx < l.pw; kx++ {
						ix := ox*l.sw + kx - l.padLeft
						if ix < 0 || ix >= l.in.W {
							continue
						}
						v := in.At(iy, ix, ch)
						if l.max {
							if v > acc {
								acc = v
							}
						} else {
							acc += v
						}
						n++
					}
				}
				if !l.max && n > 0 {
					acc /= float32(n)
				}
				out.Data[(oy*l.out.W+ox)*c+ch] = acc
			}
		}
	}
	return out
}

// ---- GlobalAveragePooling2D ----

type globalAvgPool struct {
	cfg GlobalPooling2DConfig
	in  Shape
}

func newGlobalAvgPool(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg GlobalPooling2DConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	if err := checkChannelsLast(cfg.DataFormat); err != nil {
		return nil, err
	}
	return &globalAvgPool{cfg: cfg, in: in}, nil
}

func (l *globalAvgPool) Name() string           { return l.cfg.Name }
func (l *globalAvgPool) ClassName() string      { return "GlobalAveragePooling2D" }
func (l *globalAvgPool) Config() any            { return l.cfg }
func (l *globalAvgPool) OutputShape() Shape     { return Shape{H: 1, W: 1, C: l.in.C} }
func (l *globalAvgPool) Variables() []*Variable { return nil }

func (l *globalAvgPool) Forward(in Tensor) Tensor {
	out := NewTensor(l.OutputShape())
	c := l.in.C
	acc := make([]float64, c)
	for i, v := range in.Data {
		acc[i%c] += float64(v)
	}
	n := float64(l.in.H * l.in.W)
	for i := range acc {
		out.Data[i] = float32(acc[i] / n)
	}
	return out
}

// ---- Flatten ----

type flatten struct {
	cfg FlattenConfig
	in  Shape
}

func newFlatten(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg FlattenConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	if err := checkChannelsLast(cfg.DataFormat); err != nil {
		return nil, err
	}
	return &flatten{cfg: cfg, in: in}, nil
}

func (l *flatten) Name() string           { return l.cfg.Name }
func (l *flatten) ClassName() string      { return "Flatten" }
func (l *flatten) Config() any            { return l.cfg }
func (l *flatten) OutputShape() Shape     { return Shape{H: 1, W: 1, C: l.in.Size()} }
func (l *flatten) Variables() []*Variable { return nil }

// Forward reuses the input buffer: HWC row-major is already the flattened order.
func (l *flatten) Forward(in Tensor) Tensor {
	return Tensor{Shape: l.OutputShape(), Data: in.Data}
}

// ---- Dropout ----

type dropout struct {
	cfg   DropoutConfig
	shape Shape
}

func newDropout(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg DropoutConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	return &dropout{cfg: cfg, shape: in}, nil
}

func (l *dropout) Name() string             { return l.cfg.Name }
func (l *dropout) ClassName() string        { return "Dropout" }
func (l *dropout) Config() any              { return l.cfg }
func (l *dropout) OutputShape() Shape       { return l.shape }
func (l *dropout) Variables() []*Variable   { return nil }
func (l *dropout) Forward(in Tensor) Tensor { return in }

// ---- Activation ----

type activationLayer struct {
	cfg   ActivationConfig
	shape Shape
	act   activation
}

func newActivationLayer(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg ActivationConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	act, err := lookupActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	return &activationLayer{cfg: cfg, shape: in, act: act}, nil
}

func (l *activationLayer) Name() string           { return l.cfg.Name }
func (l *activationLayer) ClassName() string      { return "Activation" }
func (l *activationLayer) Config() any            { return l.cfg }
func (l *activationLayer) OutputShape() Shape     { return l.shape }
func (l *activationLayer) Variables() []*Variable { return nil }

func (l *activationLayer) Forward(in Tensor) Tensor {
	out := Tensor{Shape: l.shape, Data: append([]float32(nil), in.Data...)}
	if l.act != nil {
		l.act(out.Data, l.shape.C)
	}
	return out
}

// ---- BatchNormalization ----

type batchNorm struct {
	cfg                          BatchNormalizationConfig
	shape                        Shape
	eps                          float64
	gamma, beta, movMean, movVar *Variable
}

func newBatchNorm(raw json.RawMessage, in Shape, strict bool) (layer, error) {
	var cfg BatchNormalizationConfig
	if err := decodeLayerConfig(raw, &cfg, strict); err != nil {
		return nil, err
	}
	if len(cfg.Axis) > 0 {
		var axis int
		if err := json.Unmarshal(cfg.Axis, &axis); err != nil {
			var axes []int
			if err := json.Unmarshal(cfg.Axis, &axes); err != nil || len(axes) != 1 {
				return nil, fmt.Errorf("unsupported axis %s", cfg.Axis)
			}
			axis = axes[0]
		}
		if axis != -1 && axis != 3 {
			return nil, fmt.Errorf("only channel axis normalization is supported, got axis %d", axis)
		}
	}
	eps := cfg.Epsilon
	if eps == 0 {
		eps = 1e-3
	}
	l := &batchNorm{cfg: cfg, shape: in, eps: eps,
		movMean: newVariable("moving_mean", in.C),
		movVar:  newVariable("moving_variance", in.C),
	}
	if boolOr(cfg.Scale, true) {
		l.gamma = newVariable("gamma", in.C)
	}
	if boolOr(cfg.Center, true) {
		l.beta = newVariable("beta", in.C)
	}
	return l, nil
}

func (l *batchNorm) Name() string       { return l.cfg.Name }
func (l *batchNorm) ClassName() string  { return "BatchNormalization" }
func (l *batchNorm) Config() any        { return l.cfg }
func (l *batchNorm) OutputShape() Shape { return l.shape }

func (l *batchNorm) Variables() []*Variable {
	vars := make([]*Variable, 0, 4)
	if l.gamma != nil {
		vars = append(vars, l.gamma)
	}
	if l.beta != nil {
		vars = append(vars, l.beta)
	}
	return append(vars, l.movMean, l.movVar)
}

func (l *batchNorm) Forward(in Tensor) Tensor {
	c := l.shape.C
	scale := make([]float32, c)
	shift := make([]float32, c)
	for i := 0; i < c; i++ {
		s := float32(1 / math.Sqrt(float64(l.movVar.Data[i])+l.eps))
		if l.gamma != nil {
			s *= l.gamma.Data[i]
		}
		scale[i] = s
		shift[i] = -l.movMean.Data[i] * s
		if l.beta != nil {
			shift[i] += l.beta.Data[i]
		}
	}
	out := NewTensor(l.shape)
	for i, v := range in.Data {
		ch := i % c
		out.Data[i] = v*scale[ch] + shift[ch]
	}
	return out
}
