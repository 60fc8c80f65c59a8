package inference

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dermd/internal/model"
	"dermd/internal/model/modeltest"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessResizesAndScales(t *testing.T) {
	raw := pngBytes(t, 40, 20, color.RGBA{R: 255, G: 0, B: 51, A: 255})
	tensor, err := Preprocess(bytes.NewReader(raw), model.Shape{H: 6, W: 6, C: 3})
	require.NoError(t, err)
	assert.Equal(t, model.Shape{H: 6, W: 6, C: 3}, tensor.Shape)
	require.Len(t, tensor.Data, 108)
	assert.InDelta(t, 1.0, tensor.At(3, 3, 0), 1e-3)
	assert.InDelta(t, 0.0, tensor.At(3, 3, 1), 1e-3)
	assert.InDelta(t, 0.2, tensor.At(3, 3, 2), 1e-3)
}

func TestPreprocessGrayscale(t *testing.T) {
	raw := pngBytes(t, 3, 3, color.White)
	tensor, err := Preprocess(bytes.NewReader(raw), model.Shape{H: 3, W: 3, C: 1})
	require.NoError(t, err)
	for _, v := range tensor.Data {
		assert.InDelta(t, 1.0, v, 1e-5)
	}
}

func TestPreprocessIgnoresAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i, a := range []uint8{0, 64, 128, 255} {
		img.SetNRGBA(i%2, i/2, color.NRGBA{R: 255, G: 0, B: 102, A: a})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	tensor, err := Preprocess(&buf, model.Shape{H: 2, W: 2, C: 3})
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.InDelta(t, 1.0, tensor.At(y, x, 0), 1e-3)
			assert.InDelta(t, 0.4, tensor.At(y, x, 2), 1e-3)
		}
	}
}

func TestPreprocessRejectsBadInput(t *testing.T) {
	shape := model.Shape{H: 4, W: 4, C: 3}
	for name, r := range map[string]*bytes.Reader{
		"empty":   bytes.NewReader(nil),
		"garbage": bytes.NewReader([]byte("definitely not an image")),
		"html":    bytes.NewReader([]byte("<html></html>")),
	} {
		_, err := Preprocess(r, shape)
		assert.True(t, IsInferenceInputInvalid(err), "%s: %v", name, err)
	}
	_, err := Preprocess(nil, shape)
	assert.True(t, IsInferenceInputInvalid(err))

	_, err = Preprocess(bytes.NewReader(pngBytes(t, 2, 2, color.Black)), model.Shape{H: 2, W: 2, C: 4})
	assert.Error(t, err)
	assert.False(t, IsInferenceInputInvalid(err))
}

type fixedHandle struct {
	in   model.Shape
	out  []float32
	fail error
}

func (f fixedHandle) InputShape() model.Shape { return f.in }
func (f fixedHandle) OutputSize() int         { return len(f.out) }
func (f fixedHandle) Close() error            { return nil }
func (f fixedHandle) Predict(model.Tensor) ([]float32, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.out, nil
}

func TestClassifier(t *testing.T) {
	h := fixedHandle{in: model.Shape{H: 2, W: 2, C: 3}, out: []float32{0.05, 0.1, 0.7, 0.1, 0.05}}
	_, err := NewClassifier(h, []string{"a", "b"})
	require.Error(t, err)

	c, err := NewClassifier(h, DefaultLabels)
	require.NoError(t, err)
	p, err := c.Classify(context.Background(), model.NewTensor(h.in))
	require.NoError(t, err)
	assert.Equal(t, "Mange", p.Label)
	assert.Equal(t, 2, p.Index)
	assert.InDelta(t, 0.7, p.Confidence, 1e-6)
	assert.Len(t, p.Probabilities, 5)
	require.NotNil(t, p.Info)
	assert.Contains(t, p.Info.Treatment, "ivermectin")

	_, err = c.Classify(context.Background(), model.NewTensor(model.Shape{H: 3, W: 3, C: 3}))
	assert.True(t, IsInferenceInputInvalid(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Classify(ctx, model.NewTensor(h.in))
	assert.ErrorIs(t, err, context.Canceled)

	boom := errors.New("runtime failure")
	c, err = NewClassifier(fixedHandle{in: h.in, out: h.out, fail: boom}, DefaultLabels)
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), model.NewTensor(h.in))
	assert.ErrorIs(t, err, boom)
}

func TestClassifyImageWithNetwork(t *testing.T) {
	c, err := NewClassifier(modeltest.Tiny(t, 1), modeltest.Labels)
	require.NoError(t, err)
	p, err := c.ClassifyImage(context.Background(), bytes.NewReader(pngBytes(t, 30, 30, color.RGBA{R: 120, G: 80, B: 60, A: 255})))
	require.NoError(t, err)
	assert.Contains(t, modeltest.Labels, p.Label)
	var sum float64
	for _, v := range p.Probabilities {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-4)

	_, err = c.ClassifyImage(context.Background(), strings.NewReader("nope"))
	assert.True(t, IsInferenceInputInvalid(err))
}

func TestDiseaseTableCoversDefaultLabels(t *testing.T) {
	for _, l := range DefaultLabels {
		d, ok := LookupDisease(l)
		require.True(t, ok, l)
		assert.Len(t, d.Symptoms, 7)
		assert.NotEmpty(t, d.Treatment)
	}
	_, ok := LookupDisease("Dermatitis")
	assert.False(t, ok)
}
