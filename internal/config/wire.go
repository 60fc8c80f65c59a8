package config

import (
	"github.com/rs/zerolog"

	"dermd/internal/artifact"
	"dermd/internal/loader"
	"dermd/internal/logging"
	"dermd/internal/model"
)

// InputShapeValue returns loader.input_shape as a model shape, falling back
// to DefaultInputShape.
func (c Config) InputShapeValue() model.Shape {
	s := c.Loader.InputShape
	if len(s) != 3 {
		s = DefaultInputShape
	}
	return model.Shape{H: s[0], W: s[1], C: s[2]}
}

// LoaderOptions builds the loader chain options. Synthesized models are
// sized to the configured labels; the manager fills in defaults when none
// are configured.
func (c Config) LoaderOptions(log zerolog.Logger) loader.Options {
	return loader.Options{
		Threads:          c.Loader.Threads,
		PersistRepaired:  c.Loader.PersistRepairedOrDefault(),
		AllowSynthesized: c.Loader.AllowSynthesizedFallback,
		Synth: loader.SynthConfig{
			Labels:       append([]string(nil), c.Labels...),
			Input:        c.InputShapeValue(),
			Seed:         c.Loader.Seed,
			BackbonePath: c.Loader.BackbonePath,
		},
		Logger: log,
	}
}

// NewFetcher builds the artifact fetcher with the configured timeout and
// GitHub credentials.
func (c Config) NewFetcher(log zerolog.Logger) *artifact.Fetcher {
	return artifact.NewFetcher(artifact.FetcherConfig{
		Timeout:  c.Artifact.TimeoutDuration(),
		Releases: artifact.NewGitHubReleases(c.Artifact.GitHubToken),
		Logger:   log,
	})
}

// LoggingOptions maps the log section onto logging.New options.
func (c Config) LoggingOptions() []logging.Option {
	return []logging.Option{
		logging.WithLevel(c.Log.Level),
		logging.WithPretty(c.Log.Pretty),
		logging.WithLogFile(c.Log.File),
		logging.WithRotation(c.Log.MaxSizeMB, c.Log.MaxBackups, c.Log.MaxAgeDays),
	}
}
