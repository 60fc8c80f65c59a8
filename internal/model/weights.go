package model

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// WeightManifest indexes the tensors stored in weights.bin.
type WeightManifest struct {
	DType   string        `json:"dtype"`
	Tensors []TensorEntry `json:"tensors"`
}

// TensorEntry locates one tensor. Offset is in bytes.
type TensorEntry struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
}

// validate rejects entries that cannot describe a tensor in any blob.
func (m WeightManifest) validate() error {
	for _, e := range m.Tensors {
		if e.Offset < 0 {
			return fmt.Errorf("tensor %s has negative offset %d", e.Name, e.Offset)
		}
		if _, ok := shapeProduct(e.Shape); !ok {
			return fmt.Errorf("tensor %s has invalid shape %v", e.Name, e.Shape)
		}
	}
	return nil
}

// LoadWeightsByName fills every variable from the manifest entry with the
// same qualified name. Missing, extra or mis-shaped tensors are errors.
func (n *Network) LoadWeightsByName(m WeightManifest, blob []byte) error {
	if m.DType != "" && m.DType != "float32" {
		return fmt.Errorf("unsupported weight dtype %q", m.DType)
	}
	index := make(map[string]TensorEntry, len(m.Tensors))
	for _, e := range m.Tensors {
		index[e.Name] = e
	}
	vars := n.Variables()
	for _, v := range vars {
		e, ok := index[v.Name]
		if !ok {
			return fmt.Errorf("weights for %s not found in manifest", v.Name)
		}
		if !slices.Equal(e.Shape, v.Shape) {
			return fmt.Errorf("weights for %s have shape %v, want %v", v.Name, e.Shape, v.Shape)
		}
		if err := readFloats(blob, e.Offset, v.Data); err != nil {
			return fmt.Errorf("weights for %s: %w", v.Name, err)
		}
		delete(index, v.Name)
	}
	if len(index) > 0 {
		extra := make([]string, 0, len(index))
		for name := range index {
			extra = append(extra, name)
		}
		slices.Sort(extra)
		return fmt.Errorf("manifest has tensors not used by the model: %v", extra)
	}
	return nil
}

// LoadWeightsPositional fills variables in execution order from a contiguous
// blob, ignoring names. The blob must contain exactly the expected values.
func (n *Network) LoadWeightsPositional(blob []byte) error {
	want := int64(n.ParamCount()) * 4
	if int64(len(blob)) != want {
		return fmt.Errorf("weights blob has %d bytes, model needs %d", len(blob), want)
	}
	var off int64
	for _, v := range n.Variables() {
		if err := readFloats(blob, off, v.Data); err != nil {
			return fmt.Errorf("weights for %s: %w", v.Name, err)
		}
		off += int64(len(v.Data)) * 4
	}
	return nil
}

// encodeWeights serializes variables in execution order.
func (n *Network) encodeWeights() (WeightManifest, []byte) {
	vars := n.Variables()
	m := WeightManifest{DType: "float32", Tensors: make([]TensorEntry, 0, len(vars))}
	blob := make([]byte, 0, n.ParamCount()*4)
	for _, v := range vars {
		m.Tensors = append(m.Tensors, TensorEntry{Name: v.Name, Shape: slices.Clone(v.Shape), Offset: int64(len(blob))})
		for _, f := range v.Data {
			blob = binary.LittleEndian.AppendUint32(blob, math.Float32bits(f))
		}
	}
	return m, blob
}

func readFloats(blob []byte, off int64, dst []float32) error {
	size := int64(len(blob))
	if off < 0 || off > size || int64(len(dst)) > (size-off)/4 {
		return fmt.Errorf("%d values at offset %d outside blob of %d bytes", len(dst), off, size)
	}
	for i := range dst {
		p := off + int64(i)*4
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[p : p+4]))
	}
	return nil
}
