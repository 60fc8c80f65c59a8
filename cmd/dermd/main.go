package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dermd/internal/config"
	"dermd/internal/httpapi"
	"dermd/internal/logging"
	"dermd/internal/manager"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "dermd:", err)
		os.Exit(1)
	}
}

// options holds flag values; only flags set on the command line override the
// config file.
type options struct {
	configPath     string
	addr           string
	modelsDir      string
	source         string
	id             string
	dest           string
	labels         string
	allowSynth     bool
	logLevel       string
	logFile        string
	corsEnabled    bool
	corsOrigins    string
	predictTimeout time.Duration
	maxConcurrent  int
	startupTimeout time.Duration
}

func parseFlags(args []string) (options, map[string]bool, error) {
	// Flags with environment variable defaults
	defaultAddr := config.DefaultAddr
	if v := os.Getenv("DERMD_ADDR"); v != "" {
		defaultAddr = v
	}
	var o options
	fs := flag.NewFlagSet("dermd", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", os.Getenv("DERMD_CONFIG"), "Path to YAML/JSON/TOML config file")
	fs.StringVar(&o.addr, "addr", defaultAddr, "HTTP listen address, e.g. :8080")
	fs.StringVar(&o.modelsDir, "models-dir", config.DefaultModelsDir, "Directory holding model artifacts")
	fs.StringVar(&o.source, "artifact-source", "", "Artifact source kind (local, drive_share, drive_direct, github_release, github_raw)")
	fs.StringVar(&o.id, "artifact-id", "", "Artifact identifier: URL, Drive file ID, owner/repo@tag/asset or path")
	fs.StringVar(&o.dest, "artifact-dest", "", "Local path of the artifact")
	fs.StringVar(&o.labels, "labels", "", "Comma-separated class labels in model output order")
	fs.BoolVar(&o.allowSynth, "allow-synthesized", false, "Serve a synthesized (degraded) model when every load strategy fails")
	fs.StringVar(&o.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFile, "log-file", "", "Also write JSON logs to this file, rotated")
	fs.BoolVar(&o.corsEnabled, "cors-enabled", false, "Enable CORS")
	fs.StringVar(&o.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins")
	fs.DurationVar(&o.predictTimeout, "predict-timeout", 0, "Maximum duration of one /predict request (0 disables)")
	fs.IntVar(&o.maxConcurrent, "max-concurrent", 0, "Maximum concurrent predictions (0 = number of CPUs)")
	fs.DurationVar(&o.startupTimeout, "startup-timeout", 10*time.Minute, "Bound on fetching and loading the model at startup")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if os.Getenv("DERMD_ADDR") != "" {
		set["addr"] = true
	}
	return o, set, nil
}

// resolveConfig loads the config file (if any) and applies flag overrides.
func resolveConfig(o options, set map[string]bool) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if set["addr"] || cfg.Addr == "" {
		cfg.Addr = o.addr
	}
	if set["models-dir"] || cfg.ModelsDir == "" {
		cfg.ModelsDir = o.modelsDir
	}
	if set["artifact-source"] {
		cfg.Artifact.Source = o.source
	}
	if set["artifact-id"] {
		cfg.Artifact.ID = o.id
	}
	if set["artifact-dest"] {
		cfg.Artifact.Dest = o.dest
	}
	if set["labels"] {
		cfg.Labels = splitCSV(o.labels)
	}
	if set["allow-synthesized"] {
		cfg.Loader.AllowSynthesizedFallback = o.allowSynth
	}
	if set["log-level"] {
		cfg.Log.Level = o.logLevel
	}
	if set["log-file"] {
		cfg.Log.File = o.logFile
	}
	if set["cors-enabled"] {
		cfg.CORS.Enabled = o.corsEnabled
	}
	if set["cors-origins"] {
		cfg.CORS.Origins = splitCSV(o.corsOrigins)
	}
	config.ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(args []string) error {
	o, set, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(o, set)
	if err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.LoggingOptions()...)
	if err != nil {
		return err
	}
	defer closer.Close()

	desc, err := cfg.Descriptor()
	if err != nil {
		return err
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Descriptor:    desc,
		Labels:        cfg.Labels,
		Fetcher:       cfg.NewFetcher(log),
		Loader:        cfg.LoaderOptions(log),
		Logger:        log,
		MaxConcurrent: o.maxConcurrent,
	})
	defer mgr.Close()
	sanity := mgr.SanityCheck()
	log.Info().Str("artifact", sanity.ArtifactPath).Bool("present", sanity.ArtifactPresent).
		Bool("remote", sanity.Remote).Bool("tflite", sanity.TFLiteAvailable).Str("error", sanity.Error).Msg("sanity")

	// Graceful shutdown (Ctrl+C / SIGTERM); also aborts a startup fetch.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup is synchronous: the listener starts only once the model is ready.
	startCtx, cancel := context.WithTimeout(ctx, o.startupTimeout)
	_, err = mgr.EnsureModelReady(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("model not ready: %w", err)
	}
	return serve(ctx, cfg, o, mgr, log)
}

func serve(ctx context.Context, cfg config.Config, o options, mgr *manager.Manager, log zerolog.Logger) error {
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetPredictTimeoutSeconds(int64(o.predictTimeout / time.Second))
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("dermd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("dermd stopped")
	return nil
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
