package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ModelSpec is the architecture document stored as config.json.
type ModelSpec struct {
	ClassName     string           `json:"class_name"`
	Config        SequentialConfig `json:"config"`
	CompileConfig json.RawMessage  `json:"compile_config,omitempty"`
}

// SequentialConfig lists the layers of a Sequential model in execution order.
type SequentialConfig struct {
	Name   string      `json:"name"`
	Layers []LayerSpec `json:"layers"`
}

// LayerSpec is one serialized layer. Config is decoded by the layer's constructor.
type LayerSpec struct {
	ClassName      string          `json:"class_name"`
	Config         json.RawMessage `json:"config"`
	Module         string          `json:"module,omitempty"`
	RegisteredName *string         `json:"registered_name,omitempty"`
	BuildConfig    json.RawMessage `json:"build_config,omitempty"`
}

// DecodeOptions controls how tolerant architecture decoding is.
type DecodeOptions struct {
	// Relaxed rewrites known version-dependent fields and ignores unknown keys.
	Relaxed bool
	// MaxParams caps the weight values Build may allocate; 0 selects
	// DefaultMaxParams.
	MaxParams int
}

// DecodeSpec parses config.json. In strict mode unknown keys anywhere in the
// model or layer documents are errors. In relaxed mode the document is first
// patched with PatchSpec and unknown keys are ignored. The returned notes
// describe every rewrite that was applied.
func DecodeSpec(raw []byte, opts DecodeOptions) (ModelSpec, []string, error) {
	var spec ModelSpec
	if !opts.Relaxed {
		if err := decodeStrict(raw, &spec); err != nil {
			return spec, nil, fmt.Errorf("decode model config: %w", err)
		}
		if err := checkSpec(spec); err != nil {
			return spec, nil, err
		}
		return spec, nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return spec, nil, fmt.Errorf("decode model config: %w", err)
	}
	notes := PatchSpec(doc)
	patched, err := json.Marshal(doc)
	if err != nil {
		return spec, notes, fmt.Errorf("re-encode patched config: %w", err)
	}
	if err := json.Unmarshal(patched, &spec); err != nil {
		return spec, notes, fmt.Errorf("decode patched config: %w", err)
	}
	if err := checkSpec(spec); err != nil {
		return spec, notes, err
	}
	return spec, notes, nil
}

func checkSpec(spec ModelSpec) error {
	if spec.ClassName != "Sequential" {
		return fmt.Errorf("unsupported model class %q (only Sequential)", spec.ClassName)
	}
	if len(spec.Config.Layers) == 0 {
		return fmt.Errorf("model config has no layers")
	}
	return nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// versionVaryingFields are layer config keys that exist in some releases of
// the upstream format and not in others. They carry no inference semantics.
var versionVaryingFields = []string{"groups", "synchronized", "ragged", "batch_size", "quantization_config"}

// PatchSpec rewrites a generic config document in place so that it decodes
// with the current layer schema:
//
//   - "training_config" is dropped (training-only state is never restored);
//   - InputLayer "batch_input_shape" is renamed to "batch_shape";
//   - dtype policy objects are collapsed to their policy name;
//   - version-varying fields are removed.
//
// It returns a sorted list of the changes made.
func PatchSpec(doc map[string]any) []string {
	var notes []string
	if _, ok := doc["training_config"]; ok {
		delete(doc, "training_config")
		notes = append(notes, "drop training_config")
	}
	cfg, _ := doc["config"].(map[string]any)
	if cfg == nil {
		return notes
	}
	layers, _ := cfg["layers"].([]any)
	for _, l := range layers {
		ls, ok := l.(map[string]any)
		if !ok {
			continue
		}
		lc, ok := ls["config"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := lc["name"].(string)
		for _, n := range patchLayerConfig(lc) {
			notes = append(notes, name+": "+n)
		}
	}
	sort.Strings(notes)
	return notes
}

func patchLayerConfig(lc map[string]any) []string {
	var notes []string
	if v, ok := lc["batch_input_shape"]; ok {
		if _, has := lc["batch_shape"]; !has {
			lc["batch_shape"] = v
		}
		delete(lc, "batch_input_shape")
		notes = append(notes, "rename batch_input_shape")
	}
	if dt, ok := lc["dtype"].(map[string]any); ok {
		name := "float32"
		if inner, ok := dt["config"].(map[string]any); ok {
			if s, ok := inner["name"].(string); ok && s != "" {
				name = s
			}
		}
		lc["dtype"] = name
		notes = append(notes, "collapse dtype policy")
	}
	for _, f := range versionVaryingFields {
		if _, ok := lc[f]; ok {
			delete(lc, f)
			notes = append(notes, "drop "+f)
		}
	}
	return notes
}

// LegacyConfigShim renames the legacy input-shape key by plain text
// substitution. It is a compatibility shim for archives from older exporters;
// PatchSpec is the typed equivalent and runs afterwards.
func LegacyConfigShim(raw []byte) []byte {
	return bytes.ReplaceAll(raw, []byte(`"batch_input_shape"`), []byte(`"batch_shape"`))
}

// EncodeSpec serializes a spec as indented JSON.
func EncodeSpec(spec ModelSpec) ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}
