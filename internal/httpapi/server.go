package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dermd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Predict(ctx context.Context, image io.Reader, filename string) (types.PredictResponse, error)
	Labels() []string
	Status() types.StatusResponse
	ListModels() ([]types.Artifact, error)
	Ready() bool
}

// imageField is the multipart field carrying the upload.
const imageField = "image"

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 8 << 20

// NewMux builds the router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Post("/predict", h.predict)
	r.Get("/labels", h.labels)
	r.Get("/status", h.status)
	r.Get("/models", h.models)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

func corsOptions() cors.Options {
	o := cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: corsAllowedMethods,
		AllowedHeaders: corsAllowedHeaders,
		MaxAge:         300,
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	if len(o.AllowedMethods) == 0 {
		o.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(o.AllowedHeaders) == 0 {
		o.AllowedHeaders = []string{"Content-Type", "X-Log-Level"}
	}
	return o
}

type handlers struct {
	svc Service
}

// predict godoc
//
//	@Summary		Classify a skin image
//	@Description	Upload an image as multipart field "image"; returns the most likely condition with per-label probabilities.
//	@Tags			inference
//	@Accept			mpfd
//	@Produce		json
//	@Param			image	formData	file	true	"Image (JPEG, PNG or GIF)"
//	@Success		200		{object}	types.PredictResponse
//	@Failure		400		{object}	types.ErrorResponse
//	@Failure		413		{object}	types.ErrorResponse
//	@Failure		429		{object}	types.ErrorResponse
//	@Failure		503		{object}	types.ErrorResponse
//	@Router			/predict [post]
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	lvl := requestLogLevel(r)
	start := time.Now()
	if !h.svc.Ready() {
		writeJSONError(w, http.StatusServiceUnavailable, "Model not loaded")
		logPredictEnd(r, lvl, http.StatusServiceUnavailable, start, "", errors.New("model not loaded"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "image too large")
			logPredictEnd(r, lvl, http.StatusRequestEntityTooLarge, start, "", err)
			return
		}
		writeJSONError(w, http.StatusBadRequest, "No image uploaded")
		logPredictEnd(r, lvl, http.StatusBadRequest, start, "", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, hdr, err := r.FormFile(imageField)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "No image uploaded")
		logPredictEnd(r, lvl, http.StatusBadRequest, start, "", err)
		return
	}
	defer file.Close()

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if predictTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, time.Duration(predictTimeout)*time.Second)
		defer tcancel()
	}

	resp, err := h.svc.Predict(ctx, file, hdr.Filename)
	if err != nil {
		// Client went away or the server is shutting down; nobody reads the answer.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		status := statusFor(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("predict")
		}
		writeJSONError(w, status, err.Error())
		logPredictEnd(r, lvl, status, start, "", err)
		return
	}
	writeJSON(w, resp)
	logPredictEnd(r, lvl, http.StatusOK, start, resp.Disease, nil)
}

// labels godoc
//
//	@Summary	List class labels
//	@Tags		model
//	@Produce	json
//	@Success	200	{object}	types.LabelsResponse
//	@Router		/labels [get]
func (h *handlers) labels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.LabelsResponse{Labels: h.svc.Labels()})
}

// status godoc
//
//	@Summary	Model lifecycle status
//	@Tags		model
//	@Produce	json
//	@Success	200	{object}	types.StatusResponse
//	@Router		/status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Status())
}

// models godoc
//
//	@Summary	List model artifacts on disk
//	@Tags		model
//	@Produce	json
//	@Success	200	{object}	types.ModelsResponse
//	@Failure	500	{object}	types.ErrorResponse
//	@Router		/models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	arts, err := h.svc.ListModels()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, types.ModelsResponse{Models: arts})
}
