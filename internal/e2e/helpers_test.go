package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"dermd/internal/artifact"
	"dermd/internal/httpapi"
	"dermd/internal/loader"
	"dermd/internal/manager"
	"dermd/internal/model/modeltest"
	"dermd/pkg/types"
)

// rewriteTransport sends every request to target, keeping path and query, so
// real Drive and GitHub URLs resolve to a local test server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.URL.Scheme = rt.target.Scheme
	r2.URL.Host = rt.target.Host
	r2.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r2)
}

// fetcherFor returns an artifact fetcher whose traffic lands on srv.
func fetcherFor(t *testing.T, srv *httptest.Server) *artifact.Fetcher {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	jar, _ := cookiejar.New(nil)
	return artifact.NewFetcher(artifact.FetcherConfig{
		Client: &http.Client{Transport: rewriteTransport{target: u}, Jar: jar},
	})
}

// unreachableFetcher fails the test when a fetch is attempted.
type unreachableFetcher struct{ t *testing.T }

func (f unreachableFetcher) Fetch(_ context.Context, plan artifact.Plan) (artifact.FetchResult, error) {
	f.t.Errorf("unexpected fetch of %s", plan.Source())
	return artifact.FetchResult{}, &artifact.FetchError{Source: plan.Source(), Reason: "unexpected"}
}

func newManager(t *testing.T, d artifact.Descriptor, f manager.Fetcher, o loader.Options) (*manager.Manager, *manager.MemoryPublisher) {
	t.Helper()
	if o.Synth.Input.Size() == 0 {
		o.Synth.Input = modeltest.Input
	}
	m := manager.NewWithConfig(manager.ManagerConfig{
		Descriptor: d,
		Labels:     modeltest.Labels,
		Fetcher:    f,
		Loader:     o,
	})
	pub := manager.NewMemoryPublisher()
	m.SetEventPublisher(pub)
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

func serve(t *testing.T, m *manager.Manager) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewMux(m))
	t.Cleanup(srv.Close)
	return srv
}

func localDescriptor(path string) artifact.Descriptor {
	return artifact.Descriptor{Kind: artifact.LocalPath, Identifier: path}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: uint8(200 - x*4), G: uint8(60 + y*3), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// postImage uploads img as the "image" form field and returns the status and body.
func postImage(t *testing.T, base string, img []byte) (int, []byte) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "paw.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(img)
	_ = mw.Close()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, base+"/predict", &body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func getJSON(t *testing.T, u string, v any) int {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("get %s: %v", u, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", u, err)
		}
	}
	return resp.StatusCode
}

func mustPredict(t *testing.T, base string) types.PredictResponse {
	t.Helper()
	code, b := postImage(t, base, pngBytes(t))
	if code != http.StatusOK {
		t.Fatalf("/predict %d %s", code, b)
	}
	var pr types.PredictResponse
	if err := json.Unmarshal(b, &pr); err != nil {
		t.Fatalf("decode predict: %v", err)
	}
	if len(pr.Probabilities) != len(modeltest.Labels) {
		t.Fatalf("probabilities: %+v", pr.Probabilities)
	}
	return pr
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}
