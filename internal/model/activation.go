package model

import (
	"fmt"
	"math"
)

// activation applies an element-wise (or per-pixel softmax) function in place.
type activation func(data []float32, channels int)

func lookupActivation(name string) (activation, error) {
	switch name {
	case "", "linear":
		return nil, nil
	case "relu":
		return func(d []float32, _ int) {
			for i, v := range d {
				if v < 0 {
					d[i] = 0
				}
			}
		}, nil
	case "relu6":
		return func(d []float32, _ int) {
			for i, v := range d {
				d[i] = float32(math.Min(math.Max(float64(v), 0), 6))
			}
		}, nil
	case "sigmoid":
		return func(d []float32, _ int) {
			for i, v := range d {
				d[i] = sigmoid(v)
			}
		}, nil
	case "swish", "silu":
		return func(d []float32, _ int) {
			for i, v := range d {
				d[i] = v * sigmoid(v)
			}
		}, nil
	case "tanh":
		return func(d []float32, _ int) {
			for i, v := range d {
				d[i] = float32(math.Tanh(float64(v)))
			}
		}, nil
	case "softmax":
		return func(d []float32, channels int) {
			for off := 0; off+channels <= len(d); off += channels {
				softmax(d[off : off+channels])
			}
		}, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}

func sigmoid(v float32) float32 { return float32(1 / (1 + math.Exp(-float64(v)))) }

// softmax normalizes v in place with the max-subtraction trick.
func softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}
