package httpapi

import (
	"bytes"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo, // default
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("legacy query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
}

func TestLogPredictEnd_FallsBackToStdLog(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	defer log.SetOutput(orig)
	log.SetOutput(&buf)
	zlog = nil

	r := httptest.NewRequest("POST", "/predict", nil)
	logPredictEnd(r, LevelInfo, 200, time.Now(), "Mange", nil)
	logPredictEnd(r, LevelOff, 500, time.Now(), "", nil)
	out := buf.String()
	if !strings.Contains(out, "predict end status=200") || !strings.Contains(out, "disease=Mange") {
		t.Fatalf("missing log line: %q", out)
	}
	if strings.Count(out, "predict end") != 1 {
		t.Fatalf("LevelOff should not log: %q", out)
	}
}

func TestLogPredictEnd_ErrorLevelSkipsSuccess(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()

	r := httptest.NewRequest("POST", "/predict", nil)
	logPredictEnd(r, LevelError, 200, time.Now(), "Mange", nil)
	if buf.Len() != 0 {
		t.Fatalf("success logged at error level: %q", buf.String())
	}
	logPredictEnd(r, LevelError, 400, time.Now(), "", errTest)
	if !strings.Contains(buf.String(), `"status":400`) {
		t.Fatalf("failure not logged: %q", buf.String())
	}
}

var errTest = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "bad image" }
