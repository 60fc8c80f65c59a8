package config

import (
	"fmt"
	"time"

	"dermd/internal/artifact"
	"dermd/internal/inference"
)

// Default values applied by ApplyDefaults.
const (
	DefaultAddr         = ":8080"
	DefaultModelsDir    = "models"
	DefaultLogLevel     = "info"
	DefaultLogMaxSizeMB = 50
	DefaultLogBackups   = 3

	// DefaultMaxBodyBytes admits the largest accepted image plus multipart
	// framing.
	DefaultMaxBodyBytes = inference.MaxImageBytes + 1<<20
)

// DefaultInputShape is the H, W, C input of the published classifiers.
var DefaultInputShape = []int{300, 300, 3}

// Defaults returns a configuration with every default applied.
func Defaults() Config {
	var c Config
	ApplyDefaults(&c)
	return c
}

// ApplyDefaults fills unspecified fields in place.
func ApplyDefaults(c *Config) {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Artifact.Timeout == "" {
		c.Artifact.Timeout = artifact.DefaultTimeout.String()
	}
	if len(c.Loader.InputShape) == 0 {
		c.Loader.InputShape = append([]int(nil), DefaultInputShape...)
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultLogBackups
	}
	if len(c.CORS.Methods) == 0 {
		c.CORS.Methods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.CORS.Headers) == 0 {
		c.CORS.Headers = []string{"Accept", "Content-Type", "X-Log-Level"}
	}
}

// Validate checks cross-field rules the schema cannot express.
func (c Config) Validate() error {
	if c.Artifact.ID == "" && c.Artifact.Dest == "" {
		return fmt.Errorf("artifact: id or dest is required")
	}
	if c.Artifact.ID != "" {
		d, err := c.Descriptor()
		if err == nil {
			_, err = artifact.Resolve(d)
		}
		if err != nil {
			return fmt.Errorf("artifact: %w", err)
		}
	}
	if c.Artifact.Timeout != "" {
		if d, err := time.ParseDuration(c.Artifact.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("artifact.timeout %q is not a positive duration", c.Artifact.Timeout)
		}
	}
	if n := len(c.Loader.InputShape); n != 0 && n != 3 {
		return fmt.Errorf("loader.input_shape must be [H, W, C]")
	}
	seen := map[string]bool{}
	for _, l := range c.Labels {
		if seen[l] {
			return fmt.Errorf("duplicate label %q", l)
		}
		seen[l] = true
	}
	return nil
}
