//go:build tflite

package model

import (
	"fmt"
	"sync"

	"github.com/mattn/go-tflite"
)

// tfliteHandle runs a .tflite flatbuffer through the TensorFlow Lite C API.
// The interpreter is not re-entrant, so Predict serializes on mu.
type tfliteHandle struct {
	mu     sync.Mutex
	model  *tflite.Model
	opts   *tflite.InterpreterOptions
	interp *tflite.Interpreter
	in     Shape
	out    int
}

// TFLiteAvailable reports whether this build links the TFLite runtime.
const TFLiteAvailable = true

// OpenTFLite loads a TFLite model and allocates its tensors. The model must
// take a single float32 [1, H, W, C] input and produce a float32 vector.
func OpenTFLite(path string, threads int) (Handle, error) {
	m := tflite.NewModelFromFile(path)
	if m == nil {
		return nil, fmt.Errorf("tflite: cannot load model %s", path)
	}
	opts := tflite.NewInterpreterOptions()
	if threads > 0 {
		opts.SetNumThread(threads)
	}
	interp := tflite.NewInterpreter(m, opts)
	if interp == nil {
		opts.Delete()
		m.Delete()
		return nil, fmt.Errorf("tflite: cannot create interpreter for %s", path)
	}
	h := &tfliteHandle{model: m, opts: opts, interp: interp}
	if st := interp.AllocateTensors(); st != tflite.OK {
		h.Close()
		return nil, fmt.Errorf("tflite: allocate tensors: status %v", st)
	}
	input := interp.GetInputTensor(0)
	if input == nil || input.Type() != tflite.Float32 || input.NumDims() != 4 {
		h.Close()
		return nil, fmt.Errorf("tflite: expected a float32 [1,H,W,C] input")
	}
	h.in = Shape{H: input.Dim(1), W: input.Dim(2), C: input.Dim(3)}
	output := interp.GetOutputTensor(0)
	if output == nil || output.Type() != tflite.Float32 || output.NumDims() == 0 {
		h.Close()
		return nil, fmt.Errorf("tflite: expected a float32 output vector")
	}
	h.out = output.Dim(output.NumDims() - 1)
	return h, nil
}

func (h *tfliteHandle) InputShape() Shape { return h.in }
func (h *tfliteHandle) OutputSize() int   { return h.out }

func (h *tfliteHandle) Predict(in Tensor) ([]float32, error) {
	if in.Shape != h.in {
		return nil, fmt.Errorf("input shape %s does not match model input %s", in.Shape, h.in)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.interp.GetInputTensor(0).SetFloat32s(in.Data); err != nil {
		return nil, fmt.Errorf("tflite: set input: %w", err)
	}
	if st := h.interp.Invoke(); st != tflite.OK {
		return nil, fmt.Errorf("tflite: invoke: status %v", st)
	}
	res := h.interp.GetOutputTensor(0).Float32s()
	out := make([]float32, len(res))
	copy(out, res)
	return out, nil
}

func (h *tfliteHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interp != nil {
		h.interp.Delete()
		h.interp = nil
	}
	if h.opts != nil {
		h.opts.Delete()
		h.opts = nil
	}
	if h.model != nil {
		h.model.Delete()
		h.model = nil
	}
	return nil
}
