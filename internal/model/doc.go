// Package model defines the dermd model archive and the in-memory runtime
// that executes it.
//
// An archive (conventionally *.dmz) is a zip container:
//
//   - metadata.json: format name and version, producer, save time.
//   - config.json:   architecture as a Sequential model description
//     ({"class_name": "Sequential", "config": {"layers": [...]}}).
//   - weights.json:  manifest of named tensors ("<layer>/<variable>") with
//     shape and offset into weights.bin.
//   - weights.bin:   little-endian float32 values.
//
// The layout intentionally mirrors the upstream training framework so that
// exporters can write it directly; the same version drift applies too
// (legacy "batch_input_shape", dtype policy objects, version-specific
// fields). Decoding is strict by default; DecodeOptions.Relaxed rewrites the
// known incompatible fields before decoding.
//
// Networks are immutable after Build and safe for concurrent Predict calls.
// A TensorFlow Lite runtime is available with the 'tflite' build tag.
package model
