package model

import (
	"encoding/json"
	"math"
	"testing"
)

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// allocated sizes the variables of a layer built outside Build.
func allocated(t *testing.T, l layer) layer {
	t.Helper()
	if err := (&Network{layers: []layer{l}}).allocate(DefaultMaxParams); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestWindowOutput(t *testing.T) {
	cases := []struct {
		in, k, s      int
		pad           string
		out, padFront int
	}{
		{8, 3, 1, "valid", 6, 0},
		{8, 3, 2, "valid", 3, 0},
		{8, 3, 2, "same", 4, 0},
		{7, 3, 1, "same", 7, 1},
		{5, 2, 2, "same", 3, 0},
	}
	for _, c := range cases {
		out, p, err := windowOutput(c.in, c.k, c.s, c.pad)
		if err != nil || out != c.out || p != c.padFront {
			t.Fatalf("%+v: got out=%d pad=%d err=%v", c, out, p, err)
		}
	}
	if _, _, err := windowOutput(2, 3, 1, "valid"); err == nil {
		t.Fatalf("expected error for window larger than input")
	}
}

func TestConv2DForward(t *testing.T) {
	l, err := newConv2D(mustRaw(t, Conv2DConfig{
		layerBase:  layerBase{Name: "c"},
		Filters:    1,
		KernelSize: []int{2, 2},
	}), Shape{H: 3, W: 3, C: 1}, true)
	if err != nil {
		t.Fatal(err)
	}
	c := allocated(t, l).(*conv2D)
	copy(c.kernel.Data, []float32{1, 0, 0, 1})
	c.bias.Data[0] = 0.5
	in := Tensor{Shape: Shape{H: 3, W: 3, C: 1}, Data: []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	out := l.Forward(in)
	want := []float32{6.5, 8.5, 12.5, 14.5}
	if out.Shape != (Shape{H: 2, W: 2, C: 1}) {
		t.Fatalf("shape=%s", out.Shape)
	}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Fatalf("out=%v want=%v", out.Data, want)
		}
	}
}

func TestPoolingForward(t *testing.T) {
	in := Tensor{Shape: Shape{H: 2, W: 2, C: 1}, Data: []float32{1, 4, 2, 3}}
	mx, err := newPooling(true)(mustRaw(t, Pooling2DConfig{layerBase: layerBase{Name: "p"}, PoolSize: []int{2, 2}}), in.Shape, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := mx.Forward(in).Data[0]; got != 4 {
		t.Fatalf("max=%v", got)
	}
	avg, err := newPooling(false)(mustRaw(t, Pooling2DConfig{layerBase: layerBase{Name: "a"}, PoolSize: []int{2, 2}}), in.Shape, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := avg.Forward(in).Data[0]; got != 2.5 {
		t.Fatalf("avg=%v", got)
	}
}

func TestBatchNormForward(t *testing.T) {
	l, err := newBatchNorm(mustRaw(t, BatchNormalizationConfig{layerBase: layerBase{Name: "bn"}, Epsilon: 1e-12}), Shape{H: 1, W: 1, C: 2}, true)
	if err != nil {
		t.Fatal(err)
	}
	bn := allocated(t, l).(*batchNorm)
	copy(bn.gamma.Data, []float32{2, 1})
	copy(bn.beta.Data, []float32{0, 1})
	copy(bn.movMean.Data, []float32{1, 0})
	copy(bn.movVar.Data, []float32{4, 1})
	out := l.Forward(Tensor{Shape: Shape{H: 1, W: 1, C: 2}, Data: []float32{3, 2}})
	if math.Abs(float64(out.Data[0]-2)) > 1e-5 || math.Abs(float64(out.Data[1]-3)) > 1e-5 {
		t.Fatalf("out=%v", out.Data)
	}
}

func TestSoftmaxActivation(t *testing.T) {
	act, err := lookupActivation("softmax")
	if err != nil {
		t.Fatal(err)
	}
	d := []float32{1, 2, 3, 1000, 1000, 1000}
	act(d, 3)
	for off := 0; off < len(d); off += 3 {
		s := d[off] + d[off+1] + d[off+2]
		if math.Abs(float64(s-1)) > 1e-5 {
			t.Fatalf("group %d sums to %v", off/3, s)
		}
	}
	if d[2] <= d[1] || d[1] <= d[0] {
		t.Fatalf("softmax not monotonic: %v", d[:3])
	}
	if _, err := lookupActivation("gelu_new"); err == nil {
		t.Fatalf("unknown activation accepted")
	}
}

func TestPatchSpec(t *testing.T) {
	var doc map[string]any
	raw := `{"class_name":"Sequential","training_config":{},"config":{"layers":[
		{"class_name":"InputLayer","config":{"name":"in","batch_input_shape":[null,4,4,3],"ragged":false}},
		{"class_name":"Conv2D","config":{"name":"c","groups":1,"dtype":{"class_name":"DTypePolicy","config":{"name":"mixed_float16"}}}}]}}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}
	notes := PatchSpec(doc)
	if len(notes) != 5 {
		t.Fatalf("notes=%v", notes)
	}
	layers := doc["config"].(map[string]any)["layers"].([]any)
	in := layers[0].(map[string]any)["config"].(map[string]any)
	if _, ok := in["batch_shape"]; !ok {
		t.Fatalf("batch_shape missing after patch: %v", in)
	}
	conv := layers[1].(map[string]any)["config"].(map[string]any)
	if conv["dtype"] != "mixed_float16" {
		t.Fatalf("dtype=%v", conv["dtype"])
	}
	if _, ok := doc["training_config"]; ok {
		t.Fatalf("training_config kept")
	}
}

func TestArgmax(t *testing.T) {
	if Argmax(nil) != -1 {
		t.Fatalf("empty argmax")
	}
	if Argmax([]float32{0.1, 0.7, 0.7, 0.2}) != 1 {
		t.Fatalf("argmax tie should pick first")
	}
}

func TestShapeProductOverflow(t *testing.T) {
	if n, ok := shapeProduct([]int{3, 3, 16, 32}); !ok || n != 4608 {
		t.Fatalf("got %d %v", n, ok)
	}
	if _, ok := shapeProduct([]int{1 << 40, 1 << 30}); ok {
		t.Fatalf("overflow not detected")
	}
	if _, ok := shapeProduct([]int{4, -1}); ok {
		t.Fatalf("negative dim accepted")
	}
}

func TestReadFloatsBounds(t *testing.T) {
	blob := make([]byte, 16)
	dst := make([]float32, 2)
	if err := readFloats(blob, 8, dst); err != nil {
		t.Fatalf("in-range read: %v", err)
	}
	for _, off := range []int64{-4, 12, 17, math.MaxInt64 - 2} {
		if err := readFloats(blob, off, dst); err == nil {
			t.Fatalf("offset %d accepted", off)
		}
	}
}
