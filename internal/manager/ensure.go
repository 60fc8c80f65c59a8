package manager

import (
	"context"
	"time"

	"dermd/internal/artifact"
	"dermd/internal/inference"
	"dermd/internal/loader"
	"dermd/internal/model"
	"dermd/pkg/types"
)

// EnsureModelReady locates the artifact, fetches it when missing and loads it
// through the strategy chain. The handle is assigned once: later calls return
// it without touching storage or the network. A failed call leaves the
// manager in the error state and may be retried.
func (m *Manager) EnsureModelReady(ctx context.Context) (model.Handle, error) {
	m.ensureMu.Lock()
	defer m.ensureMu.Unlock()
	if h := m.Handle(); h != nil {
		return h, nil
	}
	start := time.Now()
	m.setState(StateLoading, "")
	m.publish(EventEnsureStart, map[string]any{"kind": string(m.plan.Kind), "source": m.plan.Source()})
	m.log.Info().Str("kind", string(m.plan.Kind)).Str("dest", m.plan.Destination).Msg("ensure_start")
	if m.planErr != nil {
		return nil, m.fail(m.planErr, start)
	}

	if err := m.ensureArtifact(ctx); err != nil {
		return nil, m.fail(err, start)
	}

	m.mu.Lock()
	m.attempts = nil
	m.mu.Unlock()
	chain := loader.NewChain(m.log, m.strategies...)
	chain.OnAttempt = m.recordAttempt
	res, attempts, err := chain.Run(ctx, m.plan.Destination)
	if err != nil {
		return nil, m.fail(err, start)
	}

	labels := effectiveLabels(m.labels, res.Labels)
	clf, err := inference.NewClassifier(res.Handle, labels)
	if err != nil {
		_ = res.Handle.Close()
		return nil, m.fail(labelMismatchError{msg: err.Error()}, start)
	}

	info := &ModelInfo{
		Path:     m.plan.Destination,
		Format:   string(res.Format),
		Strategy: attempts[len(attempts)-1].Strategy,
		Degraded: res.Degraded,
		LoadedAt: time.Now(),
	}
	m.mu.Lock()
	m.handle = res.Handle
	m.classifier = clf
	m.cur = info
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	modelReady.Set(1)
	modelDegraded.Set(b2f(res.Degraded))

	ev := m.log.Info()
	if res.Degraded {
		ev = m.log.Warn()
	}
	ev.Str("strategy", info.Strategy).Str("format", info.Format).Bool("degraded", res.Degraded).
		Strs("labels", labels).Dur("dur", time.Since(start)).Msg("ensure_ready")
	m.publish(EventEnsureReady, map[string]any{
		"strategy": info.Strategy,
		"degraded": res.Degraded,
		"duration": time.Since(start).String(),
	})
	return res.Handle, nil
}

// ensureArtifact fetches the artifact when it is missing locally. A missing
// local-path artifact is left to the loader chain, which reports it.
func (m *Manager) ensureArtifact(ctx context.Context) error {
	p, reason := artifact.Locate(m.plan.Destination)
	if p == artifact.Present {
		m.log.Info().Str("path", m.plan.Destination).Msg("artifact present")
		return nil
	}
	ev := m.log.Info()
	if reason != nil {
		ev = m.log.Warn().Err(reason)
	}
	ev.Str("path", m.plan.Destination).Bool("remote", m.plan.Remote()).Msg("artifact missing")
	if !m.plan.Remote() {
		return nil
	}

	m.publish(EventFetchStart, map[string]any{"source": m.plan.Source()})
	res, err := m.fetcher.Fetch(ctx, m.plan)
	fs := &types.FetchStatus{
		Source:       res.Source,
		BytesWritten: res.BytesWritten,
		Succeeded:    res.Succeeded && err == nil,
		ContentKind:  string(res.ContentKind),
		SHA256:       res.SHA256,
		Duration:     res.Duration,
	}
	if fs.Source == "" {
		fs.Source = m.plan.Source()
	}
	if err != nil {
		if !artifact.IsFetchFailed(err) {
			err = &artifact.FetchError{Source: fs.Source, Reason: "download", Err: err}
		}
		fs.Error = err.Error()
		m.mu.Lock()
		m.fetch = fs
		m.mu.Unlock()
		fetchTotal.WithLabelValues("failure").Inc()
		m.log.Error().Err(err).Str("source", fs.Source).Str("content_kind", fs.ContentKind).Msg("fetch_failed")
		m.publish(EventFetchFailed, map[string]any{"error": err.Error(), "content_kind": fs.ContentKind})
		return err
	}
	m.mu.Lock()
	m.fetch = fs
	m.mu.Unlock()
	fetchTotal.WithLabelValues("success").Inc()
	fetchBytes.Add(float64(res.BytesWritten))
	m.log.Info().Str("source", fs.Source).Int64("bytes", res.BytesWritten).Str("sha256", res.SHA256).
		Bool("already_present", res.AlreadyPresent).Msg("fetch_done")
	m.publish(EventFetchDone, map[string]any{
		"bytes":           res.BytesWritten,
		"content_kind":    fs.ContentKind,
		"already_present": res.AlreadyPresent,
	})
	return nil
}

func (m *Manager) recordAttempt(a loader.Attempt) {
	loadAttemptsTotal.WithLabelValues(a.Strategy, string(a.Outcome)).Inc()
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	m.mu.Unlock()
	fields := map[string]any{"strategy": a.Strategy, "outcome": string(a.Outcome)}
	if a.Reason != "" {
		fields["reason"] = a.Reason
	}
	m.publish(EventLoadAttempt, fields)
}

func (m *Manager) fail(err error, start time.Time) error {
	m.setState(StateError, err.Error())
	modelReady.Set(0)
	m.log.Error().Err(err).Dur("dur", time.Since(start)).Msg("ensure_failed")
	m.publish(EventEnsureFailed, map[string]any{"error": err.Error()})
	return err
}
