package artifact

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// SourceKind names where a model artifact comes from.
type SourceKind string

const (
	LocalPath       SourceKind = "local"
	DriveShareLink  SourceKind = "drive_share"
	DriveDirectLink SourceKind = "drive_direct"
	GithubRelease   SourceKind = "github_release"
	GithubRaw       SourceKind = "github_raw"
)

// Kinds lists every supported source kind.
var Kinds = []SourceKind{LocalPath, DriveShareLink, DriveDirectLink, GithubRelease, GithubRaw}

// ParseSourceKind validates a configured source kind. An empty string infers
// the kind from the identifier.
func ParseSourceKind(s, identifier string) (SourceKind, error) {
	if s == "" {
		return InferSourceKind(identifier), nil
	}
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown artifact source %q", s)
}

// InferSourceKind guesses the kind from the shape of an identifier.
func InferSourceKind(identifier string) SourceKind {
	switch {
	case strings.Contains(identifier, "drive.google.com/file/d/"):
		return DriveShareLink
	case strings.Contains(identifier, "drive.google.com/"):
		return DriveDirectLink
	case strings.Contains(identifier, "/releases/download/"), releaseShorthand.MatchString(identifier):
		return GithubRelease
	case strings.Contains(identifier, "raw.githubusercontent.com/"), strings.Contains(identifier, "github.com/"):
		return GithubRaw
	default:
		return LocalPath
	}
}

// Descriptor identifies a model artifact. It is built once from configuration.
type Descriptor struct {
	Kind       SourceKind
	Identifier string
	// Destination is the local path of the artifact. When empty it becomes
	// ModelsDir/<basename of the identifier or release asset>.
	Destination string
	ModelsDir   string
	// SHA256, when set, is the expected hex digest of the fetched bytes.
	SHA256 string
}

// ReleaseRef is a GitHub release asset addressed by tag; Tag "latest" means
// the most recent release.
type ReleaseRef struct {
	Owner string
	Repo  string
	Tag   string
	Asset string
}

func (r ReleaseRef) String() string {
	return fmt.Sprintf("%s/%s@%s/%s", r.Owner, r.Repo, r.Tag, r.Asset)
}

// Plan is the resolved form of a Descriptor. A LocalPath plan has no URL.
type Plan struct {
	Kind        SourceKind
	URL         string
	Release     *ReleaseRef
	Destination string
	SHA256      string
}

// Remote reports whether the plan needs network access to materialize.
func (p Plan) Remote() bool { return p.URL != "" || p.Release != nil }

// Source is the URL or release reference the plan downloads from.
func (p Plan) Source() string {
	if p.Release != nil {
		return p.Release.String()
	}
	return p.URL
}

var (
	// ErrInvalidDescriptor reports an identifier that does not fit its kind.
	ErrInvalidDescriptor = errors.New("invalid artifact descriptor")

	driveFileID      = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)
	releaseShorthand = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)@([^/]+)/(.+)$`)
)

const (
	driveDownload = "https://drive.google.com/uc?export=download&id="
	rawHost       = "https://raw.githubusercontent.com/"
)

// Resolve maps a descriptor to a fetch plan without touching the network or
// the filesystem. It is deterministic: the same descriptor always yields the
// same plan.
func Resolve(d Descriptor) (Plan, error) {
	id := strings.TrimSpace(d.Identifier)
	if id == "" {
		return Plan{}, fmt.Errorf("%w: empty identifier", ErrInvalidDescriptor)
	}
	p := Plan{Kind: d.Kind, SHA256: strings.ToLower(strings.TrimSpace(d.SHA256))}
	base := ""
	switch d.Kind {
	case LocalPath:
		p.Destination = filepath.Clean(id)
		if d.Destination != "" && filepath.Clean(d.Destination) != p.Destination {
			return Plan{}, fmt.Errorf("%w: local path %q conflicts with destination %q", ErrInvalidDescriptor, id, d.Destination)
		}
		return p, nil
	case DriveShareLink, DriveDirectLink:
		fid, err := driveID(id)
		if err != nil {
			return Plan{}, err
		}
		p.URL = driveDownload + fid
		base = fid
	case GithubRaw:
		u, err := rawURL(id)
		if err != nil {
			return Plan{}, err
		}
		p.URL = u
		base = path.Base(u)
	case GithubRelease:
		if m := releaseShorthand.FindStringSubmatch(id); m != nil {
			p.Release = &ReleaseRef{Owner: m[1], Repo: m[2], Tag: m[3], Asset: m[4]}
			base = m[4]
			break
		}
		u, err := url.Parse(id)
		if err != nil || u.Host != "github.com" || !strings.Contains(u.Path, "/releases/download/") {
			return Plan{}, fmt.Errorf("%w: %q is not a GitHub release asset URL", ErrInvalidDescriptor, id)
		}
		p.URL = u.String()
		base = path.Base(u.Path)
	default:
		return Plan{}, fmt.Errorf("%w: unknown source kind %q", ErrInvalidDescriptor, d.Kind)
	}
	p.Destination = d.Destination
	if p.Destination == "" {
		dir := d.ModelsDir
		if dir == "" {
			dir = "."
		}
		p.Destination = filepath.Join(dir, base)
	}
	p.Destination = filepath.Clean(p.Destination)
	return p, nil
}

// driveID extracts the file ID from a share link, a direct link or a bare ID.
func driveID(id string) (string, error) {
	if driveFileID.MatchString(id) {
		return id, nil
	}
	u, err := url.Parse(id)
	if err != nil || !strings.HasSuffix(u.Host, "drive.google.com") {
		return "", fmt.Errorf("%w: %q is not a Google Drive link", ErrInvalidDescriptor, id)
	}
	if fid := u.Query().Get("id"); fid != "" {
		return fid, nil
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "d" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: no file id in %q", ErrInvalidDescriptor, id)
}

// rawURL normalizes blob links, raw links and owner/repo/ref/path shorthand.
func rawURL(id string) (string, error) {
	if !strings.Contains(id, "://") {
		parts := strings.SplitN(strings.Trim(id, "/"), "/", 4)
		if len(parts) < 4 || strings.Contains(parts[0], ".") {
			return "", fmt.Errorf("%w: %q is not owner/repo/ref/path", ErrInvalidDescriptor, id)
		}
		return rawHost + strings.Join(parts, "/"), nil
	}
	u, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch u.Host {
	case "raw.githubusercontent.com":
		if len(parts) < 4 {
			break
		}
		return rawHost + strings.Join(parts, "/"), nil
	case "github.com":
		// owner/repo/blob|raw/ref/path...
		if len(parts) < 5 || (parts[2] != "blob" && parts[2] != "raw") {
			break
		}
		return rawHost + strings.Join(append(parts[:2:2], parts[3:]...), "/"), nil
	}
	return "", fmt.Errorf("%w: %q is not a GitHub file link", ErrInvalidDescriptor, id)
}
