package manager

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"dermd/internal/artifact"
	"dermd/internal/loader"
)

// Defaults for admission control.
const (
	DefaultMaxQueueDepth = 64
	DefaultMaxWait       = 30 * time.Second
)

// Fetcher downloads a resolved plan. *artifact.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, plan artifact.Plan) (artifact.FetchResult, error)
}

// ManagerConfig configures a Manager. Zero values select defaults.
type ManagerConfig struct {
	// Descriptor names the artifact and where it lives locally.
	Descriptor artifact.Descriptor
	// Labels in model output order. When empty the labels stored in the
	// artifact are used, then inference.DefaultLabels.
	Labels []string

	// Fetcher defaults to an artifact.Fetcher with anonymous GitHub access.
	Fetcher Fetcher
	// Strategies overrides the loader chain; nil builds it from Loader.
	Strategies []loader.Strategy
	Loader     loader.Options

	Logger zerolog.Logger

	// MaxConcurrent bounds predictions running at once (default NumCPU).
	MaxConcurrent int
	// MaxQueueDepth bounds predictions waiting or running (default 64).
	MaxQueueDepth int
	// MaxWait bounds how long a prediction waits for a slot (default 30s).
	MaxWait time.Duration
}

func (c *ManagerConfig) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = runtime.NumCPU()
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxQueueDepth < c.MaxConcurrent {
		c.MaxQueueDepth = c.MaxConcurrent
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.Fetcher == nil {
		c.Fetcher = artifact.NewFetcher(artifact.FetcherConfig{
			Releases: artifact.NewGitHubReleases(""),
			Logger:   c.Logger,
		})
	}
	if c.Strategies == nil {
		o := c.Loader
		if len(o.Synth.Labels) == 0 {
			o.Synth.Labels = effectiveLabels(c.Labels, nil)
		}
		o.Logger = c.Logger
		c.Strategies = loader.DefaultStrategies(o)
	}
}
