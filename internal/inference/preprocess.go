package inference

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"

	"dermd/internal/model"
)

const (
	// MaxImageBytes bounds an uploaded image.
	MaxImageBytes = 16 << 20
	// maxPixels bounds decoded dimensions before full decoding.
	maxPixels = 40_000_000
)

// Preprocess decodes an image, converts it to the model's channel layout,
// resizes it to the model input with bilinear interpolation and scales pixel
// values to [0, 1]. Any decode failure is InferenceInputInvalid.
func Preprocess(r io.Reader, shape model.Shape) (model.Tensor, error) {
	if r == nil {
		return model.Tensor{}, ErrInferenceInputInvalid("no image provided", nil)
	}
	if shape.C != 1 && shape.C != 3 {
		return model.Tensor{}, fmt.Errorf("model input has %d channels; only 1 or 3 are supported", shape.C)
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return model.Tensor{}, ErrInferenceInputInvalid("read image", err)
	}
	if len(raw) == 0 {
		return model.Tensor{}, ErrInferenceInputInvalid("empty image", nil)
	}
	if len(raw) > MaxImageBytes {
		return model.Tensor{}, ErrInferenceInputInvalid(fmt.Sprintf("image larger than %d bytes", MaxImageBytes), nil)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return model.Tensor{}, ErrInferenceInputInvalid("unsupported or corrupt image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return model.Tensor{}, ErrInferenceInputInvalid(fmt.Sprintf("image dimensions %dx%d out of range", cfg.Width, cfg.Height), nil)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return model.Tensor{}, ErrInferenceInputInvalid("unsupported or corrupt image", err)
	}
	return FromImage(img, shape), nil
}

// FromImage resizes img to shape and converts it to a [0,1] tensor.
func FromImage(img image.Image, shape model.Shape) model.Tensor {
	b := img.Bounds()
	if b.Dx() != shape.W || b.Dy() != shape.H {
		img = resize.Resize(uint(shape.W), uint(shape.H), img, resize.Bilinear)
		b = img.Bounds()
	}
	t := model.NewTensor(shape)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			// Channels are read with straight alpha so transparency does not darken them.
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rf, gf, bf := float32(c.R)/255, float32(c.G)/255, float32(c.B)/255
			if shape.C == 1 {
				t.Data[i] = 0.299*rf + 0.587*gf + 0.114*bf
				i++
				continue
			}
			t.Data[i], t.Data[i+1], t.Data[i+2] = rf, gf, bf
			i += 3
		}
	}
	return t
}
