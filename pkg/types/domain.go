package types

// Artifact is a model file discovered in the models directory.
type Artifact struct {
	// File name relative to the models directory.
	// example: skin_disease_model.dmz
	Name string `json:"name" example:"skin_disease_model.dmz"`
	// Absolute path on disk.
	// example: /var/lib/dermd/models/skin_disease_model.dmz
	Path string `json:"path" example:"/var/lib/dermd/models/skin_disease_model.dmz"`
	// Container format detected from the file header (archive, tflite, hdf5, unknown).
	// example: archive
	Format string `json:"format" example:"archive"`
	// Size in bytes.
	// example: 1048576
	SizeBytes int64 `json:"size_bytes" example:"1048576"`
	// Last modification time, unix seconds.
	// example: 1760000000
	ModTime int64 `json:"mod_time" example:"1760000000"`
	// True when this is the artifact the service loaded.
	// example: true
	Active bool `json:"active" example:"true"`
}
