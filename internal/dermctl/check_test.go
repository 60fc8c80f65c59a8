package dermctl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dermd/internal/artifact"
	"dermd/internal/httpapi"
	"dermd/internal/manager"
	"dermd/internal/model/modeltest"
)

func TestCheckReadyServer(t *testing.T) {
	dir := t.TempDir()
	path := modeltest.Write(t, dir, "skin.dmz", modeltest.Tiny(t, 20), modeltest.Current)
	m := manager.NewWithConfig(manager.ManagerConfig{
		Descriptor: artifact.Descriptor{Kind: artifact.LocalPath, Identifier: path},
	})
	defer m.Close()
	if _, err := m.EnsureModelReady(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(m))
	defer srv.Close()

	out, err := run(t, "--json", "check", "--url", srv.URL, "--image", writePNG(t, dir))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var got checkResult
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Status.Ready || got.Predict == nil || got.Predict.Filename != "lesion.png" {
		t.Fatalf("check result: %+v", got)
	}
}

func TestCheckTimesOutWhenNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := run(t, "check", "--url", srv.URL, "--wait", "300ms")
	if err == nil || !strings.Contains(err.Error(), "timed out") || !strings.Contains(err.Error(), "503") {
		t.Fatalf("want timeout error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("check ignored --wait")
	}
}
