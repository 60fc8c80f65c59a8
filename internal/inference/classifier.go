package inference

import (
	"context"
	"fmt"
	"io"

	"dermd/internal/model"
)

// Prediction is the outcome of classifying one image.
type Prediction struct {
	Label         string             `json:"disease"`
	Index         int                `json:"index"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Info          *DiseaseInfo       `json:"info,omitempty"`
}

// Classifier binds a read-only model handle to its label set.
type Classifier struct {
	h      model.Handle
	labels []string
}

// NewClassifier fails when the label count differs from the model output size.
func NewClassifier(h model.Handle, labels []string) (*Classifier, error) {
	if h == nil {
		return nil, fmt.Errorf("nil model handle")
	}
	if n := h.OutputSize(); n != len(labels) {
		return nil, fmt.Errorf("model produces %d classes but %d labels are configured", n, len(labels))
	}
	return &Classifier{h: h, labels: append([]string(nil), labels...)}, nil
}

// Labels returns the configured labels in model output order.
func (c *Classifier) Labels() []string { return append([]string(nil), c.labels...) }

// InputShape is the tensor shape Classify expects.
func (c *Classifier) InputShape() model.Shape { return c.h.InputShape() }

// Classify runs the model on a preprocessed tensor.
func (c *Classifier) Classify(ctx context.Context, in model.Tensor) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if in.Shape != c.h.InputShape() {
		return Prediction{}, ErrInferenceInputInvalid(fmt.Sprintf("tensor shape %s does not match model input %s", in.Shape, c.h.InputShape()), nil)
	}
	probs, err := c.h.Predict(in)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if len(probs) != len(c.labels) {
		return Prediction{}, fmt.Errorf("model returned %d values for %d labels", len(probs), len(c.labels))
	}
	idx := model.Argmax(probs)
	p := Prediction{
		Label:         c.labels[idx],
		Index:         idx,
		Confidence:    float64(probs[idx]),
		Probabilities: make(map[string]float64, len(probs)),
	}
	for i, v := range probs {
		p.Probabilities[c.labels[i]] = float64(v)
	}
	if info, ok := LookupDisease(p.Label); ok {
		p.Info = &info
	}
	return p, nil
}

// ClassifyImage preprocesses an encoded image and classifies it.
func (c *Classifier) ClassifyImage(ctx context.Context, r io.Reader) (Prediction, error) {
	t, err := Preprocess(r, c.h.InputShape())
	if err != nil {
		return Prediction{}, err
	}
	return c.Classify(ctx, t)
}
