// Package modeltest builds small model archives for tests, including archives
// with the format drift the loader chain has to repair.
package modeltest

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dermd/internal/model"
)

// Labels is the label set used by Tiny networks.
var Labels = []string{"Allergy", "Infection", "Mange", "Normal", "Tumor"}

// Input is the input shape of Tiny networks.
var Input = model.Shape{H: 8, W: 8, C: 3}

// Drift selects how an archive deviates from the current format.
type Drift int

const (
	// Current writes an archive the strict loader accepts.
	Current Drift = iota
	// LegacyConfig uses the old input-shape key, dtype policy objects,
	// version-varying layer fields and an old metadata version.
	LegacyConfig
	// RenamedWeights is LegacyConfig with manifest names that match no layer
	// and no metadata entry.
	RenamedWeights
	// Truncated is RenamedWeights with a short weights blob.
	Truncated
)

// Tiny synthesizes a small deterministic classifier over Labels.
func Tiny(t testing.TB, seed int64) *model.Network {
	t.Helper()
	net, err := model.Synthesize(model.SynthOptions{Input: Input, Classes: len(Labels), Seed: seed, Filters: 4})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	return net
}

// Write stores net at dir/name with the requested drift and returns the path.
func Write(t testing.TB, dir, name string, net *model.Network, drift Drift) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if drift == Current {
		if err := model.Save(path, net, model.Metadata{Labels: Labels}); err != nil {
			t.Fatalf("save: %v", err)
		}
		return path
	}
	spec, err := net.Spec()
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	raw, err := model.EncodeSpec(spec)
	if err != nil {
		t.Fatalf("encode spec: %v", err)
	}
	cfg := legacyConfig(t, raw)

	manifest, blob := encode(net, drift != Current && drift != LegacyConfig)
	if drift == Truncated {
		blob = blob[:len(blob)/2]
	}
	man, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	entries := map[string][]byte{
		model.ConfigFile:   cfg,
		model.ManifestFile: man,
		model.WeightsFile:  blob,
	}
	if drift == LegacyConfig {
		entries[model.MetadataFile] = []byte(`{"format":"keras","format_version":"2.15.0"}`)
	}
	if err := model.WriteArchive(path, entries); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

// WriteFile writes raw bytes at dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, b []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// EditJSON rewrites the JSON entry name of the archive at path in place.
func EditJSON(t testing.TB, path, name string, edit func(doc map[string]any)) {
	t.Helper()
	a, err := model.OpenArchive(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	entries := make(map[string][]byte)
	for _, n := range []string{model.MetadataFile, model.ConfigFile, model.ManifestFile, model.WeightsFile} {
		if b, err := a.Entry(n); err == nil {
			entries[n] = b
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(entries[name], &doc); err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
	edit(doc)
	if entries[name], err = json.Marshal(doc); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	if err := model.WriteArchive(path, entries); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

// SetUnits overrides the units of every Dense layer in a config document.
func SetUnits(units int) func(map[string]any) {
	return func(doc map[string]any) {
		for _, l := range doc["config"].(map[string]any)["layers"].([]any) {
			ls := l.(map[string]any)
			if ls["class_name"] == "Dense" {
				ls["config"].(map[string]any)["units"] = units
			}
		}
	}
}

func legacyConfig(t testing.TB, raw []byte) []byte {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode spec: %v", err)
	}
	doc["training_config"] = map[string]any{"loss": "categorical_crossentropy", "optimizer_config": map[string]any{"class_name": "Adam"}}
	layers := doc["config"].(map[string]any)["layers"].([]any)
	for _, l := range layers {
		ls := l.(map[string]any)
		lc := ls["config"].(map[string]any)
		if ls["class_name"] == "InputLayer" {
			lc["batch_input_shape"] = lc["batch_shape"]
			delete(lc, "batch_shape")
		}
		if ls["class_name"] == "Conv2D" {
			lc["groups"] = 1
		}
		lc["dtype"] = map[string]any{
			"module":     "keras",
			"class_name": "DTypePolicy",
			"config":     map[string]any{"name": "float32"},
		}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("encode legacy spec: %v", err)
	}
	return out
}

func encode(net *model.Network, rename bool) (model.WeightManifest, []byte) {
	m := model.WeightManifest{DType: "float32"}
	var blob []byte
	for _, v := range net.Variables() {
		name := v.Name
		if rename {
			layer, variable, _ := strings.Cut(name, "/")
			name = "model_1/" + layer + "_1/" + variable + ":0"
		}
		m.Tensors = append(m.Tensors, model.TensorEntry{Name: name, Shape: v.Shape, Offset: int64(len(blob))})
		for _, f := range v.Data {
			blob = binary.LittleEndian.AppendUint32(blob, math.Float32bits(f))
		}
	}
	return m, blob
}
