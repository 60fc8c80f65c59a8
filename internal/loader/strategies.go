package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"dermd/internal/model"
)

// Strategy names, in chain order.
const (
	StrategyDirect     = "direct"
	StrategyRelaxed    = "relaxed"
	StrategySplit      = "split"
	StrategySynthesize = "synthesize"
)

// Options configures DefaultStrategies.
type Options struct {
	// Threads for the TFLite interpreter (0 lets the runtime decide).
	Threads int
	// PersistRepaired makes split write the reconstructed archive back.
	PersistRepaired bool
	// AllowSynthesized appends the synthesize fallback.
	AllowSynthesized bool
	Synth            SynthConfig
	Logger           zerolog.Logger
}

// SynthConfig configures the synthesize fallback.
type SynthConfig struct {
	// Labels sizes the classification head.
	Labels []string
	Input  model.Shape
	Seed   int64
	// BackbonePath optionally points at an archive whose feature layers are reused.
	BackbonePath string
}

// DefaultStrategies returns direct, relaxed and split, plus synthesize when
// allowed.
func DefaultStrategies(o Options) []Strategy {
	s := []Strategy{
		Direct{Threads: o.Threads},
		Relaxed{},
		Split{Persist: o.PersistRepaired, Log: o.Logger},
	}
	if o.AllowSynthesized {
		s = append(s, Synthesize{Config: o.Synth})
	}
	return s
}

var errNotArchive = errors.New("not a model archive")

func requireArchive(path string) (model.Format, error) {
	f, err := model.DetectFormat(path)
	if err != nil {
		return f, err
	}
	if f != model.FormatArchive {
		return f, fmt.Errorf("%w (detected %s)", errNotArchive, f)
	}
	return f, nil
}

// Direct loads the artifact exactly as stored: strict archive decoding or the
// TFLite runtime.
type Direct struct{ Threads int }

func (Direct) Name() string { return StrategyDirect }

func (d Direct) Load(_ context.Context, path string) (Result, error) {
	f, err := model.DetectFormat(path)
	if err != nil {
		return Result{}, err
	}
	switch f {
	case model.FormatTFLite:
		h, err := model.OpenTFLite(path, d.Threads)
		if err != nil {
			return Result{}, err
		}
		return Result{Handle: h, Format: f}, nil
	case model.FormatArchive:
		lr, err := model.LoadArchive(path, model.DecodeOptions{})
		if err != nil {
			return Result{}, err
		}
		return Result{Handle: lr.Network, Labels: lr.Metadata.Labels, Format: f, Notes: lr.Notes}, nil
	case model.FormatHDF5:
		return Result{}, errors.New("HDF5 artifacts are not supported; export a model archive")
	default:
		return Result{}, fmt.Errorf("unrecognized artifact format (%s)", f)
	}
}

// Relaxed reloads the archive tolerating version drift in the architecture
// and metadata. Weights must still match by name.
type Relaxed struct{}

func (Relaxed) Name() string { return StrategyRelaxed }

func (Relaxed) Load(_ context.Context, path string) (Result, error) {
	f, err := requireArchive(path)
	if err != nil {
		return Result{}, err
	}
	lr, err := model.LoadArchive(path, model.DecodeOptions{Relaxed: true})
	if err != nil {
		return Result{Notes: lr.Notes}, err
	}
	return Result{Handle: lr.Network, Labels: lr.Metadata.Labels, Format: f, Notes: lr.Notes}, nil
}

// Split rebuilds the model from the architecture and the raw weights blob
// independently, assigning weights by position. With Persist the repaired
// archive replaces the original so the next start loads it directly.
type Split struct {
	Persist bool
	Log     zerolog.Logger
}

func (Split) Name() string { return StrategySplit }

func (s Split) Load(_ context.Context, path string) (Result, error) {
	f, err := requireArchive(path)
	if err != nil {
		return Result{}, err
	}
	net, md, notes, err := Reconstruct(path)
	if err != nil {
		return Result{Notes: notes}, err
	}
	res := Result{Handle: net, Labels: md.Labels, Format: f, Notes: notes}
	if s.Persist {
		if err := model.Save(path, net, md); err != nil {
			s.Log.Warn().Err(err).Str("path", path).Msg("persist repaired archive failed")
			res.Notes = append(res.Notes, "persist failed: "+err.Error())
		} else {
			s.Log.Info().Str("path", path).Msg("repaired archive persisted")
			res.Notes = append(res.Notes, "persisted repaired archive")
		}
	}
	return res, nil
}

// Reconstruct reads config.json and weights.bin separately and rebuilds the
// network. Metadata is best effort; only its labels are kept.
func Reconstruct(path string) (*model.Network, model.Metadata, []string, error) {
	var md model.Metadata
	a, err := model.OpenArchive(path)
	if err != nil {
		return nil, md, nil, err
	}
	if m, err := a.Metadata(); err == nil {
		md.Labels = m.Labels
	}
	raw, err := a.Entry(model.ConfigFile)
	if err != nil {
		return nil, md, nil, err
	}
	spec, notes, err := model.DecodeSpec(model.LegacyConfigShim(raw), model.DecodeOptions{Relaxed: true})
	if err != nil {
		return nil, md, notes, err
	}
	blob, err := a.Entry(model.WeightsFile)
	if err != nil {
		return nil, md, notes, err
	}
	net, err := model.Build(spec, model.DecodeOptions{Relaxed: true, MaxParams: model.ParamBudget(blob)})
	if err != nil {
		return nil, md, notes, err
	}
	if err := net.LoadWeightsPositional(blob); err != nil {
		return nil, md, notes, err
	}
	return net, md, append(notes, "weights assigned by position"), nil
}

// Synthesize builds the reference classifier from scratch. The result is
// always degraded: the head is untrained.
type Synthesize struct{ Config SynthConfig }

func (Synthesize) Name() string { return StrategySynthesize }

func (s Synthesize) Load(_ context.Context, _ string) (Result, error) {
	c := s.Config
	if len(c.Labels) == 0 {
		return Result{}, errors.New("no labels configured to size the classification head")
	}
	opts := model.SynthOptions{Input: c.Input, Classes: len(c.Labels), Seed: c.Seed}
	var notes []string
	if c.BackbonePath != "" {
		lr, err := model.LoadArchive(c.BackbonePath, model.DecodeOptions{Relaxed: true})
		if err != nil {
			return Result{}, fmt.Errorf("load backbone %s: %w", c.BackbonePath, err)
		}
		opts.Backbone = lr.Network
		notes = append(notes, "backbone from "+c.BackbonePath)
	} else {
		notes = append(notes, fmt.Sprintf("reference backbone seed=%d", c.Seed))
	}
	net, err := model.Synthesize(opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Handle: net, Labels: c.Labels, Degraded: true, Format: model.FormatArchive, Notes: notes}, nil
}
