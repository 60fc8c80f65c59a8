package loader

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dermd/internal/model"
	"dermd/internal/model/modeltest"
)

type fakeStrategy struct {
	name  string
	err   error
	panic bool
	nilH  bool
	calls *[]string
}

func (f fakeStrategy) Name() string { return f.name }

func (f fakeStrategy) Load(context.Context, string) (Result, error) {
	*f.calls = append(*f.calls, f.name)
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return Result{}, f.err
	}
	if f.nilH {
		return Result{}, nil
	}
	return Result{Handle: modelStub{}}, nil
}

type modelStub struct{ model.Handle }

func TestChainStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	var observed []Attempt
	c := NewChain(zerolog.Nop(),
		fakeStrategy{name: "a", err: errors.New("bad key"), calls: &calls},
		fakeStrategy{name: "b", calls: &calls},
		fakeStrategy{name: "c", calls: &calls},
	)
	c.OnAttempt = func(a Attempt) { observed = append(observed, a) }
	res, attempts, err := c.Run(context.Background(), "m.dmz")
	require.NoError(t, err)
	assert.NotNil(t, res.Handle)
	assert.Equal(t, []string{"a", "b"}, calls)
	require.Len(t, attempts, 2)
	assert.Equal(t, Attempt{Strategy: "a", Outcome: Failure, Reason: "bad key"}, Attempt{Strategy: attempts[0].Strategy, Outcome: attempts[0].Outcome, Reason: attempts[0].Reason})
	assert.Equal(t, Success, attempts[1].Outcome)
	assert.Len(t, observed, 2)
	assert.Equal(t, []string{"a", "b", "c"}, c.Strategies())
}

func TestChainExhausted(t *testing.T) {
	var calls []string
	c := NewChain(zerolog.Nop(),
		fakeStrategy{name: "a", err: errors.New("one"), calls: &calls},
		fakeStrategy{name: "b", panic: true, calls: &calls},
		fakeStrategy{name: "c", nilH: true, calls: &calls},
	)
	_, attempts, err := c.Run(context.Background(), "m.dmz")
	require.Error(t, err)
	assert.True(t, IsAllStrategiesExhausted(err))
	assert.False(t, IsLoadStrategyFailed(err))
	assert.Equal(t, []string{"a", "b", "c"}, calls)
	require.Len(t, attempts, 3)
	assert.Equal(t, "panic: boom", attempts[1].Reason)
	assert.Equal(t, "strategy returned no model", attempts[2].Reason)
	for _, a := range attempts {
		assert.Equal(t, Failure, a.Outcome)
	}
	assert.Contains(t, err.Error(), "a: one")
}

func TestChainHonorsCancellation(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, attempts, err := NewChain(zerolog.Nop(), fakeStrategy{name: "a", calls: &calls}).Run(ctx, "m.dmz")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, attempts)
	assert.Empty(t, calls)
}

func TestLoadStrategyFailedWraps(t *testing.T) {
	cause := errors.New("shape mismatch")
	err := LoadStrategyFailed("split", cause)
	assert.True(t, IsLoadStrategyFailed(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "split: shape mismatch", err.Error())
}

func strategyNames(attempts []Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Strategy + ":" + string(a.Outcome)
	}
	return out
}

func defaultChain(allowSynth bool) *Chain {
	return NewChain(zerolog.Nop(), DefaultStrategies(Options{
		PersistRepaired:  true,
		AllowSynthesized: allowSynth,
		Synth:            SynthConfig{Labels: modeltest.Labels, Input: modeltest.Input, Seed: 11},
	})...)
}

func input() model.Tensor {
	in := model.NewTensor(modeltest.Input)
	for i := range in.Data {
		in.Data[i] = float32(i%7) / 7
	}
	return in
}

func TestDefaultStrategiesOrder(t *testing.T) {
	assert.Equal(t, []string{"direct", "relaxed", "split"}, defaultChain(false).Strategies())
	assert.Equal(t, []string{"direct", "relaxed", "split", "synthesize"}, defaultChain(true).Strategies())
}

func TestCurrentArchiveLoadsDirect(t *testing.T) {
	path := modeltest.Write(t, t.TempDir(), "m.dmz", modeltest.Tiny(t, 1), modeltest.Current)
	res, attempts, err := defaultChain(true).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct:success"}, strategyNames(attempts))
	assert.False(t, res.Degraded)
	assert.Equal(t, modeltest.Labels, res.Labels)
}

func TestLegacyConfigLoadsRelaxed(t *testing.T) {
	path := modeltest.Write(t, t.TempDir(), "m.dmz", modeltest.Tiny(t, 2), modeltest.LegacyConfig)
	res, attempts, err := defaultChain(true).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct:failure", "relaxed:success"}, strategyNames(attempts))
	assert.NotEmpty(t, res.Notes)
}

func TestRenamedWeightsRepairedBySplit(t *testing.T) {
	orig := modeltest.Tiny(t, 3)
	path := modeltest.Write(t, t.TempDir(), "m.dmz", orig, modeltest.RenamedWeights)

	res, attempts, err := defaultChain(true).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct:failure", "relaxed:failure", "split:success"}, strategyNames(attempts))
	assert.Contains(t, res.Notes, "persisted repaired archive")

	want, err := orig.Predict(input())
	require.NoError(t, err)
	got, err := res.Handle.Predict(input())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The persisted archive now loads directly.
	res, attempts, err = defaultChain(true).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct:success"}, strategyNames(attempts))
	got, err = res.Handle.Predict(input())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTruncatedFallsBackToSynthesize(t *testing.T) {
	path := modeltest.Write(t, t.TempDir(), "m.dmz", modeltest.Tiny(t, 4), modeltest.Truncated)

	_, attempts, err := defaultChain(false).Run(context.Background(), path)
	assert.True(t, IsAllStrategiesExhausted(err))
	assert.Len(t, attempts, 3)

	res, attempts, err := defaultChain(true).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct:failure", "relaxed:failure", "split:failure", "synthesize:success"}, strategyNames(attempts))
	assert.True(t, res.Degraded)
	assert.Equal(t, len(modeltest.Labels), res.Handle.OutputSize())
}

func TestOversizedLayerFallsBackToSynthesize(t *testing.T) {
	path := modeltest.Write(t, t.TempDir(), "m.dmz", modeltest.Tiny(t, 5), modeltest.Current)
	modeltest.EditJSON(t, path, model.ConfigFile, modeltest.SetUnits(1<<40))

	res, attempts, err := defaultChain(true).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct:failure", "relaxed:failure", "split:failure", "synthesize:success"}, strategyNames(attempts))
	for _, a := range attempts[:3] {
		assert.Contains(t, a.Reason, model.ErrTooManyParams.Error(), a.Strategy)
	}
	assert.True(t, res.Degraded)
	assert.Equal(t, len(modeltest.Labels), res.Handle.OutputSize())
}

func TestSynthesizeIsReproducible(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.dmz")
	a, _, err := defaultChain(true).Run(context.Background(), missing)
	require.NoError(t, err)
	b, _, err := defaultChain(true).Run(context.Background(), missing)
	require.NoError(t, err)
	pa, err := a.Handle.Predict(input())
	require.NoError(t, err)
	pb, err := b.Handle.Predict(input())
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestSynthesizeWithBackboneArchive(t *testing.T) {
	dir := t.TempDir()
	bb := modeltest.Write(t, dir, "backbone.dmz", modeltest.Tiny(t, 5), modeltest.Current)
	s := Synthesize{Config: SynthConfig{Labels: []string{"a", "b", "c", "d", "e", "f"}, Seed: 1, BackbonePath: bb}}
	res, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Handle.OutputSize())
	assert.Equal(t, modeltest.Input, res.Handle.InputShape())

	_, err = Synthesize{Config: SynthConfig{Labels: []string{"a"}, BackbonePath: filepath.Join(dir, "nope.dmz")}}.Load(context.Background(), "")
	assert.Error(t, err)
	_, err = Synthesize{}.Load(context.Background(), "")
	assert.Error(t, err)
}

func TestNonArchiveRejectedByRepairStrategies(t *testing.T) {
	path := modeltest.WriteFile(t, t.TempDir(), "page.dmz", []byte("<html>not a model</html>"))
	_, attempts, err := defaultChain(false).Run(context.Background(), path)
	assert.True(t, IsAllStrategiesExhausted(err))
	for _, a := range attempts[1:] {
		assert.Contains(t, a.Reason, "not a model archive")
	}
}
