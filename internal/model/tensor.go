package model

import "fmt"

// Shape is a height x width x channels activation shape. Vectors use H=W=1.
type Shape struct {
	H int `json:"h"`
	W int `json:"w"`
	C int `json:"c"`
}

// Size returns the number of elements.
func (s Shape) Size() int { return s.H * s.W * s.C }

func (s Shape) String() string { return fmt.Sprintf("%dx%dx%d", s.H, s.W, s.C) }

// Tensor is a single HWC activation in row-major order (channels fastest).
type Tensor struct {
	Shape Shape
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(s Shape) Tensor {
	return Tensor{Shape: s, Data: make([]float32, s.Size())}
}

// At returns the value at (y, x, c).
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Shape.W+x)*t.Shape.C+c]
}

// Argmax returns the index of the largest value, or -1 for an empty slice.
func Argmax(v []float32) int {
	best := -1
	for i := range v {
		if best < 0 || v[i] > v[best] {
			best = i
		}
	}
	return best
}
