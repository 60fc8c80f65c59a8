package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"dermd/internal/artifact"
)

//go:embed config.schema.json
var schemaJSON string

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr         string         `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string         `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Labels       []string       `json:"labels" yaml:"labels" toml:"labels"`
	MaxBodyBytes int64          `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	Artifact     ArtifactConfig `json:"artifact" yaml:"artifact" toml:"artifact"`
	Loader       LoaderConfig   `json:"loader" yaml:"loader" toml:"loader"`
	Log          LogConfig      `json:"log" yaml:"log" toml:"log"`
	CORS         CORSConfig     `json:"cors" yaml:"cors" toml:"cors"`
}

// ArtifactConfig describes where the model comes from.
type ArtifactConfig struct {
	// Source is one of local, drive_share, drive_direct, github_release,
	// github_raw; empty infers it from ID.
	Source      string `json:"source" yaml:"source" toml:"source"`
	ID          string `json:"id" yaml:"id" toml:"id"`
	Dest        string `json:"dest" yaml:"dest" toml:"dest"`
	SHA256      string `json:"sha256" yaml:"sha256" toml:"sha256"`
	GitHubToken string `json:"github_token" yaml:"github_token" toml:"github_token"`
	Timeout     string `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type LoaderConfig struct {
	AllowSynthesizedFallback bool   `json:"allow_synthesized_fallback" yaml:"allow_synthesized_fallback" toml:"allow_synthesized_fallback"`
	Seed                     int64  `json:"seed" yaml:"seed" toml:"seed"`
	BackbonePath             string `json:"backbone_path" yaml:"backbone_path" toml:"backbone_path"`
	PersistRepaired          *bool  `json:"persist_repaired" yaml:"persist_repaired" toml:"persist_repaired"`
	Threads                  int    `json:"threads" yaml:"threads" toml:"threads"`
	// InputShape is [H, W, C] for the synthesized fallback.
	InputShape []int `json:"input_shape" yaml:"input_shape" toml:"input_shape"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Pretty     bool   `json:"pretty" yaml:"pretty" toml:"pretty"`
}

type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension and validates it
// against the embedded schema. Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var raw any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &raw); err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &raw); err != nil {
			return cfg, err
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := validateSchema(raw); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

var compiledSchema *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	s, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	compiledSchema = s
	return s, nil
}

// validateSchema checks a decoded document. The document is normalized
// through JSON first so YAML and TOML scalars validate like JSON ones.
func validateSchema(raw any) error {
	if raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}
	s, err := schema()
	if err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// TimeoutDuration returns the fetch timeout, falling back to the default.
func (a ArtifactConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil || d <= 0 {
		return artifact.DefaultTimeout
	}
	return d
}

// Descriptor builds the artifact descriptor from configuration.
// Without an ID the destination is treated as a local path.
func (c Config) Descriptor() (artifact.Descriptor, error) {
	if c.Artifact.ID == "" {
		return artifact.Descriptor{Kind: artifact.LocalPath, Identifier: c.Artifact.Dest, ModelsDir: c.ModelsDir}, nil
	}
	kind, err := artifact.ParseSourceKind(c.Artifact.Source, c.Artifact.ID)
	if err != nil {
		return artifact.Descriptor{}, err
	}
	return artifact.Descriptor{
		Kind:        kind,
		Identifier:  c.Artifact.ID,
		Destination: c.Artifact.Dest,
		ModelsDir:   c.ModelsDir,
		SHA256:      c.Artifact.SHA256,
	}, nil
}

// PersistRepairedOrDefault reports whether split reconstruction writes back (default true).
func (l LoaderConfig) PersistRepairedOrDefault() bool {
	return l.PersistRepaired == nil || *l.PersistRepaired
}
