package model_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"dermd/internal/model"
	"dermd/internal/model/modeltest"
)

func sampleInput() model.Tensor {
	in := model.NewTensor(modeltest.Input)
	for i := range in.Data {
		in.Data[i] = float32(i%17) / 17
	}
	return in
}

func TestSaveLoadRoundTrip(t *testing.T) {
	net := modeltest.Tiny(t, 7)
	path := modeltest.Write(t, t.TempDir(), "m.dmz", net, modeltest.Current)

	res, err := model.LoadArchive(path, model.DecodeOptions{})
	if err != nil {
		t.Fatalf("strict load: %v", err)
	}
	if len(res.Notes) != 0 {
		t.Fatalf("unexpected notes: %v", res.Notes)
	}
	if !slices.Equal(res.Metadata.Labels, modeltest.Labels) {
		t.Fatalf("labels=%v", res.Metadata.Labels)
	}
	want, err := net.Predict(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	got, err := res.Network.Predict(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("predictions differ after round trip: %v vs %v", got, want)
	}
}

func TestLoadArchiveLegacyConfig(t *testing.T) {
	net := modeltest.Tiny(t, 1)
	path := modeltest.Write(t, t.TempDir(), "legacy.dmz", net, modeltest.LegacyConfig)

	if _, err := model.LoadArchive(path, model.DecodeOptions{}); !errors.Is(err, model.ErrUnsupportedVersion) {
		t.Fatalf("strict load err=%v, want ErrUnsupportedVersion", err)
	}
	res, err := model.LoadArchive(path, model.DecodeOptions{Relaxed: true})
	if err != nil {
		t.Fatalf("relaxed load: %v", err)
	}
	for _, want := range []string{"input_layer: rename batch_input_shape", "backbone_conv: drop groups", "drop training_config"} {
		if !slices.Contains(res.Notes, want) {
			t.Fatalf("notes %v missing %q", res.Notes, want)
		}
	}
	a, _ := net.Predict(sampleInput())
	b, _ := res.Network.Predict(sampleInput())
	if !slices.Equal(a, b) {
		t.Fatalf("relaxed load changed predictions")
	}
}

func TestStrictDecodeRejectsLegacyKeys(t *testing.T) {
	raw := []byte(`{"class_name":"Sequential","config":{"name":"m","layers":[
		{"class_name":"InputLayer","config":{"name":"in","batch_input_shape":[null,2,2,1]}},
		{"class_name":"Flatten","config":{"name":"f"}}]}}`)
	spec, _, err := model.DecodeSpec(raw, model.DecodeOptions{})
	if err != nil {
		t.Fatalf("model-level decode should pass: %v", err)
	}
	if _, err := model.Build(spec, model.DecodeOptions{}); err == nil {
		t.Fatalf("strict build accepted batch_input_shape")
	}
	spec, notes, err := model.DecodeSpec(raw, model.DecodeOptions{Relaxed: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notes=%v", notes)
	}
	net, err := model.Build(spec, model.DecodeOptions{Relaxed: true})
	if err != nil {
		t.Fatalf("relaxed build: %v", err)
	}
	if net.InputShape() != (model.Shape{H: 2, W: 2, C: 1}) || net.OutputSize() != 4 {
		t.Fatalf("in=%s out=%d", net.InputShape(), net.OutputSize())
	}
}

func TestRenamedWeightsNeedPositionalLoad(t *testing.T) {
	net := modeltest.Tiny(t, 3)
	path := modeltest.Write(t, t.TempDir(), "renamed.dmz", net, modeltest.RenamedWeights)

	if _, err := model.LoadArchive(path, model.DecodeOptions{Relaxed: true}); err == nil {
		t.Fatalf("relaxed load matched renamed weights")
	}
	a, err := model.OpenArchive(path)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := a.Entry(model.ConfigFile)
	if err != nil {
		t.Fatal(err)
	}
	spec, _, err := model.DecodeSpec(model.LegacyConfigShim(raw), model.DecodeOptions{Relaxed: true})
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := model.Build(spec, model.DecodeOptions{Relaxed: true})
	if err != nil {
		t.Fatal(err)
	}
	blob, _ := a.Entry(model.WeightsFile)
	if err := rebuilt.LoadWeightsPositional(blob); err != nil {
		t.Fatalf("positional: %v", err)
	}
	if err := rebuilt.LoadWeightsPositional(blob[:len(blob)-4]); err == nil {
		t.Fatalf("short blob accepted")
	}
	want, _ := net.Predict(sampleInput())
	got, _ := rebuilt.Predict(sampleInput())
	if !slices.Equal(got, want) {
		t.Fatalf("positional load changed predictions")
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	a := modeltest.Tiny(t, 42)
	b := modeltest.Tiny(t, 42)
	c := modeltest.Tiny(t, 43)
	va, vb, vc := a.Variables(), b.Variables(), c.Variables()
	if len(va) != len(vb) {
		t.Fatalf("variable count differs")
	}
	same := true
	for i := range va {
		if va[i].Name != vb[i].Name || !slices.Equal(va[i].Data, vb[i].Data) {
			t.Fatalf("seed 42 not reproducible at %s", va[i].Name)
		}
		if !slices.Equal(va[i].Data, vc[i].Data) {
			same = false
		}
	}
	if same {
		t.Fatalf("different seeds produced identical weights")
	}
	out, err := a.Predict(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	var sum float32
	for _, p := range out {
		sum += p
	}
	if len(out) != len(modeltest.Labels) || sum < 0.999 || sum > 1.001 {
		t.Fatalf("out=%v sum=%v", out, sum)
	}
}

func TestSynthesizeWithBackbone(t *testing.T) {
	bb := modeltest.Tiny(t, 5)
	net, err := model.Synthesize(model.SynthOptions{Classes: 3, Seed: 9, Backbone: bb})
	if err != nil {
		t.Fatal(err)
	}
	if net.OutputSize() != 3 || net.InputShape() != bb.InputShape() {
		t.Fatalf("in=%s out=%d", net.InputShape(), net.OutputSize())
	}
	want := map[string][]float32{}
	for _, v := range bb.Variables() {
		want[v.Name] = v.Data
	}
	for _, v := range net.Variables() {
		if v.Name == "backbone_conv/kernel" && !slices.Equal(v.Data, want[v.Name]) {
			t.Fatalf("backbone weights not copied")
		}
	}
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	arc := modeltest.Write(t, dir, "m.dmz", modeltest.Tiny(t, 1), modeltest.Current)
	cases := map[string]model.Format{
		arc: model.FormatArchive,
		modeltest.WriteFile(t, dir, "m.tflite", []byte("\x1c\x00\x00\x00TFL3\x00\x00")): model.FormatTFLite,
		modeltest.WriteFile(t, dir, "m.h5", []byte("\x89HDF\r\n\x1a\nrest")):          model.FormatHDF5,
		modeltest.WriteFile(t, dir, "page.html", []byte("<html>")):                    model.FormatUnknown,
	}
	for path, want := range cases {
		got, err := model.DetectFormat(path)
		if err != nil || got != want {
			t.Fatalf("%s: got %s err %v, want %s", path, got, err, want)
		}
	}
}

func TestLoadArchiveRefusesOversizedLayer(t *testing.T) {
	path := modeltest.Write(t, t.TempDir(), "huge.dmz", modeltest.Tiny(t, 2), modeltest.Current)
	modeltest.EditJSON(t, path, model.ConfigFile, modeltest.SetUnits(1<<40))

	for _, relaxed := range []bool{false, true} {
		if _, err := model.LoadArchive(path, model.DecodeOptions{Relaxed: relaxed}); !errors.Is(err, model.ErrTooManyParams) {
			t.Fatalf("relaxed=%v err=%v, want ErrTooManyParams", relaxed, err)
		}
	}
}

func TestLoadArchiveRejectsBadManifest(t *testing.T) {
	cases := map[string]func(doc map[string]any){
		"offset past blob": func(doc map[string]any) {
			doc["tensors"].([]any)[0].(map[string]any)["offset"] = int64(math.MaxInt64 - 2)
		},
		"negative offset": func(doc map[string]any) {
			doc["tensors"].([]any)[0].(map[string]any)["offset"] = -8
		},
		"negative dim": func(doc map[string]any) {
			doc["tensors"].([]any)[0].(map[string]any)["shape"] = []int{-3, 3, 3, 4}
		},
	}
	for name, edit := range cases {
		t.Run(name, func(t *testing.T) {
			path := modeltest.Write(t, t.TempDir(), "m.dmz", modeltest.Tiny(t, 4), modeltest.Current)
			modeltest.EditJSON(t, path, model.ManifestFile, edit)
			if _, err := model.LoadArchive(path, model.DecodeOptions{}); err == nil {
				t.Fatalf("load accepted manifest")
			}
		})
	}
}
