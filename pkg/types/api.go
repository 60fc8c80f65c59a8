package types

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	// Most likely condition.
	// example: Mange
	Disease string `json:"disease" example:"Mange"`
	// Probability of the predicted condition in [0, 1].
	// example: 0.87
	Confidence float64 `json:"confidence" example:"0.87"`
	// Name of the uploaded file.
	// example: rex.jpg
	Filename string `json:"filename" example:"rex.jpg"`
	// Probability for every label.
	Probabilities map[string]float64 `json:"probabilities"`
	// Common symptoms of the predicted condition.
	Symptoms []string `json:"symptoms,omitempty"`
	// Typical treatment of the predicted condition.
	Treatment string `json:"treatment,omitempty"`
	// True when the model is a synthesized fallback whose predictions carry no training signal.
	// example: false
	Degraded bool `json:"degraded,omitempty" example:"false"`
}

// LabelsResponse is returned by GET /labels.
type LabelsResponse struct {
	// Labels in model output order.
	Labels []string `json:"labels"`
}

// ModelsResponse wraps the artifacts returned by GET /models.
type ModelsResponse struct {
	Models []Artifact `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: Model not loaded
	Error string `json:"error" example:"Model not loaded"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// AttemptStatus is one entry of the load attempt record.
type AttemptStatus struct {
	// example: relaxed
	Strategy string `json:"strategy" example:"relaxed"`
	// success or failure.
	// example: success
	Outcome string `json:"outcome" example:"success"`
	// Failure reason, empty on success.
	Reason string `json:"reason,omitempty"`
	// Repairs applied while loading.
	Notes []string `json:"notes,omitempty"`
	// example: 12
	DurationMS int64 `json:"duration_ms" example:"12"`
}

// FetchStatus summarizes the artifact download performed at startup, if any.
type FetchStatus struct {
	// example: https://drive.google.com/uc?export=download&id=abc
	Source string `json:"source"`
	// example: 48213504
	BytesWritten int64 `json:"bytes_written" example:"48213504"`
	// example: true
	Succeeded bool `json:"succeeded" example:"true"`
	// binary or html_warning_page.
	// example: binary
	ContentKind string `json:"content_kind" example:"binary"`
	SHA256      string `json:"sha256,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ModelStatus describes the loaded model.
type ModelStatus struct {
	// example: /var/lib/dermd/models/skin_disease_model.dmz
	Path string `json:"path"`
	// example: archive
	Format string `json:"format" example:"archive"`
	// Strategy that produced the model.
	// example: direct
	Strategy string `json:"strategy" example:"direct"`
	// Input tensor as [H, W, C].
	InputShape []int `json:"input_shape"`
	// example: 5
	Classes int `json:"classes" example:"5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// loading, ready or error.
	// example: ready
	State string `json:"state" example:"ready"`
	// example: true
	Ready bool `json:"ready" example:"true"`
	// example: false
	Degraded bool            `json:"degraded" example:"false"`
	Error    string          `json:"error,omitempty"`
	Model    *ModelStatus    `json:"model,omitempty"`
	Labels   []string        `json:"labels,omitempty"`
	Fetch    *FetchStatus    `json:"fetch,omitempty"`
	Attempts []AttemptStatus `json:"attempts"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Number of predictions served.
	// example: 42
	Predictions uint64 `json:"predictions" example:"42"`
}
