package model

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dermd/internal/common/fsutil"
)

// Archive layout constants.
const (
	ArchiveFormat = "dermd-archive"
	FormatVersion = "3.1"

	MetadataFile = "metadata.json"
	ConfigFile   = "config.json"
	ManifestFile = "weights.json"
	WeightsFile  = "weights.bin"
)

// maxEntryBytes bounds a single archive entry read into memory.
const maxEntryBytes = 1 << 30

var (
	// ErrMissingEntry reports an archive without a required file.
	ErrMissingEntry = errors.New("archive entry missing")
	// ErrUnsupportedVersion reports a metadata format version the strict loader refuses.
	ErrUnsupportedVersion = errors.New("unsupported archive format version")
)

// Metadata is stored as metadata.json.
type Metadata struct {
	Format        string   `json:"format"`
	FormatVersion string   `json:"format_version"`
	Producer      string   `json:"producer,omitempty"`
	SavedAt       string   `json:"saved_at,omitempty"`
	Labels        []string `json:"labels,omitempty"`
}

// Archive is an opened model archive with its entries held in memory.
type Archive struct {
	Path    string
	entries map[string][]byte
}

// OpenArchive reads every entry of the zip container at path.
func OpenArchive(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()
	a := &Archive{Path: path, entries: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		if len(b) > maxEntryBytes {
			return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, maxEntryBytes)
		}
		a.entries[f.Name] = b
	}
	return a, nil
}

// Entry returns the raw bytes of a named entry.
func (a *Archive) Entry(name string) ([]byte, error) {
	b, ok := a.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, name)
	}
	return b, nil
}

// Metadata decodes metadata.json without validating the version.
func (a *Archive) Metadata() (Metadata, error) {
	var md Metadata
	b, err := a.Entry(MetadataFile)
	if err != nil {
		return md, err
	}
	if err := json.Unmarshal(b, &md); err != nil {
		return md, fmt.Errorf("decode %s: %w", MetadataFile, err)
	}
	return md, nil
}

// Manifest decodes and validates weights.json.
func (a *Archive) Manifest() (WeightManifest, error) {
	var m WeightManifest
	b, err := a.Entry(ManifestFile)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode %s: %w", ManifestFile, err)
	}
	if err := m.validate(); err != nil {
		return m, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	return m, nil
}

// ParamBudget is the most float32 values blob can supply. A network that
// declares more cannot be filled from it, so Build refuses to allocate it.
func ParamBudget(blob []byte) int {
	if n := len(blob) / 4; n > 0 {
		return n
	}
	return 1
}

// CheckVersion validates the metadata against what the strict loader supports.
func CheckVersion(md Metadata) error {
	if md.Format != ArchiveFormat {
		return fmt.Errorf("%w: format %q", ErrUnsupportedVersion, md.Format)
	}
	major, _, _ := strings.Cut(md.FormatVersion, ".")
	want, _, _ := strings.Cut(FormatVersion, ".")
	if major != want {
		return fmt.Errorf("%w: %q (want %s.x)", ErrUnsupportedVersion, md.FormatVersion, want)
	}
	return nil
}

// LoadResult carries a loaded network and what had to change to load it.
type LoadResult struct {
	Network  *Network
	Metadata Metadata
	Notes    []string
}

// LoadArchive materializes a network from a complete archive, matching
// weights by name. With opts.Relaxed, version drift in config.json and an
// absent or foreign metadata version are tolerated.
func LoadArchive(path string, opts DecodeOptions) (LoadResult, error) {
	var res LoadResult
	a, err := OpenArchive(path)
	if err != nil {
		return res, err
	}
	md, err := a.Metadata()
	switch {
	case err != nil && !opts.Relaxed:
		return res, err
	case err != nil:
		res.Notes = append(res.Notes, "ignore metadata: "+err.Error())
	default:
		res.Metadata = md
		if verr := CheckVersion(md); verr != nil {
			if !opts.Relaxed {
				return res, verr
			}
			res.Notes = append(res.Notes, "accept format version "+md.FormatVersion)
		}
	}
	raw, err := a.Entry(ConfigFile)
	if err != nil {
		return res, err
	}
	spec, notes, err := DecodeSpec(raw, opts)
	if err != nil {
		return res, err
	}
	res.Notes = append(res.Notes, notes...)
	manifest, err := a.Manifest()
	if err != nil {
		return res, err
	}
	blob, err := a.Entry(WeightsFile)
	if err != nil {
		return res, err
	}
	opts.MaxParams = ParamBudget(blob)
	net, err := Build(spec, opts)
	if err != nil {
		return res, err
	}
	if err := net.LoadWeightsByName(manifest, blob); err != nil {
		return res, err
	}
	res.Network = net
	return res, nil
}

// Save writes net as a current-format archive at path. The file is written to
// a temporary sibling and renamed into place.
func Save(path string, net *Network, md Metadata) error {
	spec, err := net.Spec()
	if err != nil {
		return err
	}
	cfg, err := EncodeSpec(spec)
	if err != nil {
		return err
	}
	manifest, blob := net.encodeWeights()
	man, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	md.Format = ArchiveFormat
	md.FormatVersion = FormatVersion
	if md.Producer == "" {
		md.Producer = "dermd"
	}
	if md.SavedAt == "" {
		md.SavedAt = time.Now().UTC().Format(time.RFC3339)
	}
	meta, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return WriteArchive(path, map[string][]byte{
		MetadataFile: meta,
		ConfigFile:   cfg,
		ManifestFile: man,
		WeightsFile:  blob,
	})
}

// WriteArchive writes raw entries as a zip container atomically. Entries are
// written in a fixed order so identical inputs produce identical files.
func WriteArchive(path string, entries map[string][]byte) error {
	af, err := fsutil.CreateAtomic(path, 0o644)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(af)
	order := []string{MetadataFile, ConfigFile, ManifestFile, WeightsFile}
	for name := range entries {
		if !containsString(order, name) {
			order = append(order, name)
		}
	}
	for _, name := range order {
		b, ok := entries[name]
		if !ok {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			af.Abort()
			return err
		}
		if _, err := io.Copy(w, bytes.NewReader(b)); err != nil {
			af.Abort()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Format identifies an artifact container by its leading bytes.
type Format string

const (
	FormatArchive Format = "archive"
	FormatTFLite  Format = "tflite"
	FormatHDF5    Format = "hdf5"
	FormatUnknown Format = "unknown"
)

var hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

// DetectFormat sniffs the artifact container type.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()
	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	return sniffFormat(head[:n]), nil
}

func sniffFormat(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return FormatArchive
	case len(head) >= 8 && string(head[4:8]) == "TFL3":
		return FormatTFLite
	case bytes.HasPrefix(head, hdf5Signature):
		return FormatHDF5
	default:
		return FormatUnknown
	}
}
