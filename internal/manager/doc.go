// Package manager owns the model lifecycle of the service. It is structured
// into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, Snapshot).
//   - errors.go: error types and helpers (IsModelUnavailable, IsTooBusy).
//   - ensure.go: EnsureModelReady: locate, fetch, load through the strategy chain.
//   - admission.go: bounded queueing for concurrent predictions.
//   - predict.go: prediction entry point used by the HTTP layer.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - metrics.go: Prometheus collectors for fetches, load attempts and predictions.
//   - sanity.go: runtime checks for the artifact location and optional runtimes.
//
// The model handle is assigned once and never replaced. After it is assigned
// it is read-only and shared by all requests.
package manager
