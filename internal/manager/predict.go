package manager

import (
	"context"
	"io"
	"time"

	"dermd/internal/inference"
	"dermd/pkg/types"
)

// Predict classifies one encoded image. It fails with ModelUnavailable before
// the model is ready, InferenceInputInvalid for undecodable input, and
// tooBusy when admission control rejects the request.
func (m *Manager) Predict(ctx context.Context, r io.Reader, filename string) (types.PredictResponse, error) {
	m.mu.RLock()
	clf := m.classifier
	degraded := m.cur != nil && m.cur.Degraded
	m.mu.RUnlock()
	if clf == nil {
		predictionsTotal.WithLabelValues("unavailable", "").Inc()
		return types.PredictResponse{}, ErrModelUnavailable("")
	}

	release, err := m.beginPrediction(ctx)
	if err != nil {
		if IsTooBusy(err) {
			predictionsTotal.WithLabelValues("busy", "").Inc()
		}
		return types.PredictResponse{}, err
	}
	defer release()

	start := time.Now()
	p, err := clf.ClassifyImage(ctx, r)
	if err != nil {
		outcome := "error"
		if inference.IsInferenceInputInvalid(err) {
			outcome = "invalid"
		}
		predictionsTotal.WithLabelValues(outcome, "").Inc()
		m.log.Debug().Err(err).Str("filename", filename).Msg("infer failed")
		return types.PredictResponse{}, err
	}
	dur := time.Since(start)
	predictionDuration.Observe(dur.Seconds())
	predictionsTotal.WithLabelValues("success", p.Label).Inc()
	m.predictions.Add(1)
	m.log.Debug().Str("filename", filename).Str("disease", p.Label).Float64("confidence", p.Confidence).
		Dur("dur", dur).Msg("infer end")

	resp := types.PredictResponse{
		Disease:       p.Label,
		Confidence:    p.Confidence,
		Filename:      filename,
		Probabilities: p.Probabilities,
		Degraded:      degraded,
	}
	if p.Info != nil {
		resp.Symptoms = p.Info.Symptoms
		resp.Treatment = p.Info.Treatment
	}
	return resp, nil
}
