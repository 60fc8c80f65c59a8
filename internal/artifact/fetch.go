package artifact

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"dermd/internal/common/fsutil"
)

const (
	// DefaultTimeout bounds a whole fetch, confirmation round trip included.
	DefaultTimeout = 120 * time.Second

	chunkSize    = 32 << 10
	sniffLen     = 512
	maxPageBytes = 1 << 20

	// lockSlack is added to the fetch timeout before a destination lock
	// counts as abandoned: no live holder keeps it longer than that.
	lockSlack = time.Minute
)

// FetchResult describes one download. A HtmlWarningPage result never
// produces an artifact, whatever BytesWritten says.
type FetchResult struct {
	BytesWritten int64       `json:"bytes_written"`
	Succeeded    bool        `json:"succeeded"`
	ContentKind  ContentKind `json:"content_kind"`
	// AlreadyPresent is set when another process completed the fetch while
	// this one waited for the destination lock.
	AlreadyPresent bool      `json:"already_present,omitempty"`
	Source         string    `json:"source,omitempty"`
	Destination    string    `json:"destination"`
	SHA256         string    `json:"sha256,omitempty"`
	Duration       string    `json:"duration,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}

// FetcherConfig configures a Fetcher. Zero values select defaults.
type FetcherConfig struct {
	Client   *http.Client
	Timeout  time.Duration
	Releases ReleaseResolver
	Logger   zerolog.Logger
	// Progress, when set, is called with the byte count of every chunk written.
	Progress func(n int)
}

// Fetcher downloads remote artifacts into local storage. Partial downloads
// are never visible at the destination path.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	releases ReleaseResolver
	log      zerolog.Logger
	progress func(int)
}

// NewFetcher builds a Fetcher. The default client keeps cookies across the
// confirmation round trip.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	c := cfg.Client
	if c == nil {
		jar, _ := cookiejar.New(nil)
		c = &http.Client{Jar: jar}
	}
	t := cfg.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	return &Fetcher{client: c, timeout: t, releases: cfg.Releases, log: cfg.Logger, progress: cfg.Progress}
}

// lockStaleAfter is how old a destination lock must be before another fetch
// may take it over.
func (f *Fetcher) lockStaleAfter() time.Duration { return f.timeout + lockSlack }

// Fetch downloads plan's source to plan.Destination. Concurrent fetches of
// the same destination are serialized through <dest>.lock and the holder
// re-checks presence before downloading. There are no retries.
func (f *Fetcher) Fetch(ctx context.Context, plan Plan) (FetchResult, error) {
	res := FetchResult{Source: plan.Source(), Destination: plan.Destination, ContentKind: Binary}
	if !plan.Remote() {
		return res, &FetchError{Source: plan.Destination, Reason: "local artifact is missing and has no remote source"}
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(plan.Destination), 0o755); err != nil {
		return res, &FetchError{Source: res.Source, Reason: "create destination directory", Err: err}
	}
	lock, err := fsutil.AcquireLock(ctx, plan.Destination+".lock", f.lockStaleAfter())
	if err != nil {
		return res, &FetchError{Source: res.Source, Reason: "acquire destination lock", Err: err}
	}
	defer func() { _ = lock.Release() }()
	if p, _ := Locate(plan.Destination); p == Present {
		f.log.Info().Str("dest", plan.Destination).Msg("artifact appeared while waiting for lock")
		res.Succeeded = true
		res.AlreadyPresent = true
		res.FinishedAt = time.Now()
		return res, nil
	}

	src := plan.URL
	if plan.Release != nil {
		if f.releases == nil {
			return res, &FetchError{Source: res.Source, Reason: "no release resolver configured"}
		}
		u, err := f.releases.ResolveRelease(ctx, *plan.Release)
		if err != nil {
			return res, &FetchError{Source: res.Source, Reason: "resolve release", Err: err}
		}
		f.log.Debug().Str("release", plan.Release.String()).Str("url", u).Msg("release resolved")
		src = u
	}

	resp, err := f.open(ctx, src)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind != "" {
			res.ContentKind = fe.Kind
		}
		res.FinishedAt = time.Now()
		return res, err
	}
	defer resp.Body.Close()

	n, sum, kind, err := f.store(resp, plan)
	res.BytesWritten = n
	res.ContentKind = kind
	res.Duration = time.Since(start).Round(time.Millisecond).String()
	res.FinishedAt = time.Now()
	if err != nil {
		return res, err
	}
	res.Succeeded = true
	res.SHA256 = sum
	return res, nil
}

// open issues the GET and follows at most one confirmation step.
func (f *Fetcher) open(ctx context.Context, src string) (*http.Response, error) {
	resp, err := f.get(ctx, src)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK || !isHTML(resp.Header.Get("Content-Type")) {
		return resp, nil
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	resp.Body.Close()
	if err != nil {
		return nil, &FetchError{Source: src, Status: resp.StatusCode, Reason: "read response", Err: err}
	}
	reqURL := resp.Request.URL
	next := confirmationURL(reqURL, resp, page)
	if next == "" {
		return nil, &FetchError{Source: src, Status: resp.StatusCode, Kind: HtmlWarningPage, Reason: "server returned an HTML page instead of the artifact"}
	}
	f.log.Info().Str("url", src).Msg("confirming large-file download")
	resp, err = f.get(ctx, next)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) get(ctx context.Context, src string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, &FetchError{Source: src, Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/octet-stream, */*")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: redact(src), Reason: "request failed", Err: err}
	}
	return resp, nil
}

// store validates the response and streams it into the destination.
func (f *Fetcher) store(resp *http.Response, plan Plan) (int64, string, ContentKind, error) {
	src := redact(resp.Request.URL.String())
	if resp.StatusCode != http.StatusOK {
		return 0, "", Binary, &FetchError{Source: src, Status: resp.StatusCode, Reason: "unexpected status"}
	}
	br := bufio.NewReaderSize(resp.Body, chunkSize)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, "", Binary, &FetchError{Source: src, Status: resp.StatusCode, Reason: "read body", Err: err}
	}
	if len(head) == 0 {
		return 0, "", Binary, &FetchError{Source: src, Status: resp.StatusCode, Reason: "empty body"}
	}
	if isHTML(resp.Header.Get("Content-Type")) || isHTML(http.DetectContentType(head)) {
		return int64(len(head)), "", HtmlWarningPage, &FetchError{Source: src, Status: resp.StatusCode, Kind: HtmlWarningPage,
			Reason: "server returned an HTML page instead of the artifact"}
	}

	af, err := fsutil.CreateAtomic(plan.Destination, 0o644)
	if err != nil {
		return 0, "", Binary, &FetchError{Source: src, Reason: "create temp file", Err: err}
	}
	h := sha256.New()
	w := io.MultiWriter(af, h)
	var written int64
	buf := make([]byte, chunkSize)
	for {
		nr, rerr := br.Read(buf)
		if nr > 0 {
			if _, werr := w.Write(buf[:nr]); werr != nil {
				af.Abort()
				return written, "", Binary, &FetchError{Source: src, Reason: "write artifact", Err: werr}
			}
			written += int64(nr)
			if f.progress != nil {
				f.progress(nr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			af.Abort()
			return written, "", Binary, &FetchError{Source: src, Status: resp.StatusCode, Reason: "read body", Err: rerr}
		}
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if plan.SHA256 != "" && plan.SHA256 != sum {
		af.Abort()
		return written, sum, Binary, &FetchError{Source: src, Reason: fmt.Sprintf("sha256 mismatch: got %s, want %s", sum, plan.SHA256)}
	}
	if err := af.Commit(); err != nil {
		return written, sum, Binary, &FetchError{Source: src, Reason: "commit artifact", Err: err}
	}
	f.log.Info().Str("dest", plan.Destination).Int64("bytes", written).Str("sha256", sum).Msg("artifact stored")
	return written, sum, Binary, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// redact drops confirmation tokens from URLs that end up in logs and errors.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has("confirm") && !q.Has("uuid") {
		return raw
	}
	q.Del("confirm")
	q.Del("uuid")
	u.RawQuery = q.Encode()
	return u.String()
}
