package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// SynthOptions configures the reference architecture built by Synthesize.
type SynthOptions struct {
	// Input is the HxWxC input; ignored when Backbone is set.
	Input Shape
	// Classes is the size of the classification head.
	Classes int
	// Seed makes initialization reproducible.
	Seed int64
	// Filters is the backbone convolution width (default 16).
	Filters int
	// Backbone, when set, supplies pretrained feature layers (everything
	// before its first Dense layer). Its weights are copied, not shared.
	Backbone *Network
}

// HeadLayerName names the freshly initialized classification layer.
const HeadLayerName = "classifier"

// Synthesize builds the reference classifier: a convolutional backbone
// followed by global average pooling and a softmax head sized to Classes.
// The head is never trained; predictions carry no signal beyond the backbone.
func Synthesize(opts SynthOptions) (*Network, error) {
	if opts.Classes <= 0 {
		return nil, errors.New("synthesize: classes must be positive")
	}
	if opts.Filters <= 0 {
		opts.Filters = 16
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var layers []LayerSpec
	var err error
	if opts.Backbone != nil {
		layers, err = backboneLayers(opts.Backbone)
	} else {
		layers, err = referenceBackbone(opts.Input, opts.Filters)
	}
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	head, err := json.Marshal(DenseConfig{
		layerBase:  layerBase{Name: HeadLayerName, DType: "float32"},
		Units:      opts.Classes,
		Activation: "softmax",
		UseBias:    ptr(true),
	})
	if err != nil {
		return nil, err
	}
	layers = append(layers, LayerSpec{ClassName: "Dense", Config: head})

	spec := ModelSpec{ClassName: "Sequential", Config: SequentialConfig{Name: "synthesized", Layers: layers}}
	net, err := Build(spec, DecodeOptions{})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	var pretrained map[string][]float32
	if opts.Backbone != nil {
		pretrained = map[string][]float32{}
		for _, v := range opts.Backbone.Variables() {
			pretrained[v.Name] = v.Data
		}
	}
	for _, l := range net.layers {
		for _, v := range l.Variables() {
			if src, ok := pretrained[l.Name()+"/"+v.Name]; ok && len(src) == len(v.Data) {
				copy(v.Data, src)
				continue
			}
			initVariable(rng, v)
		}
	}
	return net, nil
}

func referenceBackbone(in Shape, filters int) ([]LayerSpec, error) {
	if in.H <= 0 || in.W <= 0 || in.C <= 0 {
		return nil, fmt.Errorf("input shape %s must be positive", in)
	}
	input, err := json.Marshal(InputLayerConfig{
		layerBase:  layerBase{Name: "input_layer", DType: "float32"},
		BatchShape: []*int{nil, ptr(in.H), ptr(in.W), ptr(in.C)},
	})
	if err != nil {
		return nil, err
	}
	conv, err := json.Marshal(Conv2DConfig{
		layerBase:  layerBase{Name: "backbone_conv", DType: "float32"},
		Filters:    filters,
		KernelSize: []int{3, 3},
		Strides:    []int{2, 2},
		Padding:    "same",
		Activation: "relu",
		UseBias:    ptr(true),
	})
	if err != nil {
		return nil, err
	}
	pool, err := json.Marshal(GlobalPooling2DConfig{layerBase: layerBase{Name: "backbone_pool", DType: "float32"}})
	if err != nil {
		return nil, err
	}
	return []LayerSpec{
		{ClassName: "InputLayer", Config: input},
		{ClassName: "Conv2D", Config: conv},
		{ClassName: "GlobalAveragePooling2D", Config: pool},
	}, nil
}

// backboneLayers keeps the feature extractor of a pretrained network and
// appends global pooling when its output is still spatial.
func backboneLayers(bb *Network) ([]LayerSpec, error) {
	spec, err := bb.Spec()
	if err != nil {
		return nil, err
	}
	layers := []LayerSpec{spec.Config.Layers[0]}
	out := bb.inShape
	for i, l := range bb.layers {
		if l.ClassName() == "Dense" {
			break
		}
		if l.Name() == HeadLayerName {
			break
		}
		layers = append(layers, spec.Config.Layers[i+1])
		out = l.OutputShape()
	}
	if out.H != 1 || out.W != 1 {
		pool, err := json.Marshal(GlobalPooling2DConfig{layerBase: layerBase{Name: "backbone_pool_synth", DType: "float32"}})
		if err != nil {
			return nil, err
		}
		layers = append(layers, LayerSpec{ClassName: "GlobalAveragePooling2D", Config: pool})
	}
	return layers, nil
}

// initVariable applies He-normal to conv kernels, Glorot-uniform to dense
// kernels, ones to gamma/variance and zeros elsewhere.
func initVariable(rng *rand.Rand, v *Variable) {
	switch {
	case v.Name == "kernel" && len(v.Shape) == 4:
		fanIn := v.Shape[0] * v.Shape[1] * v.Shape[2]
		std := math.Sqrt(2 / float64(fanIn))
		for i := range v.Data {
			v.Data[i] = float32(rng.NormFloat64() * std)
		}
	case v.Name == "kernel" && len(v.Shape) == 2:
		limit := math.Sqrt(6 / float64(v.Shape[0]+v.Shape[1]))
		for i := range v.Data {
			v.Data[i] = float32((rng.Float64()*2 - 1) * limit)
		}
	case v.Name == "gamma" || v.Name == "moving_variance":
		for i := range v.Data {
			v.Data[i] = 1
		}
	default:
		for i := range v.Data {
			v.Data[i] = 0
		}
	}
}

func ptr[T any](v T) *T { return &v }
