// Package server exposes the detection pipeline over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/report"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client-facing error messages.
const (
	MsgURLMissing   = "URL not provided."
	MsgImageMissing = "image not provided."
)

// Pipeline runs detection on an encoded image.
type Pipeline interface {
	DetectBytes(ctx context.Context, data []byte, th detector.Thresholds) (*detector.Result, error)
	Backend() string
}

// Args is the arguments for creating a Server.
type Args struct {
	Pipeline Pipeline
	Fetcher  Fetcher
	// Thresholds are the defaults; requests may override display and IoU.
	Thresholds   detector.Thresholds
	Tool         string
	JPEGQuality  int
	MaxBodyBytes int64
	Profiler     *profiler.Profiler
	Logger       logrus.FieldLogger
	// Now returns the capture time of a request. Defaults to time.Now.
	Now func() time.Time
}

// Server routes /detect, /metrics and /healthz.
type Server struct {
	pipeline     Pipeline
	fetcher      Fetcher
	thresholds   detector.Thresholds
	tool         string
	quality      int
	maxBodyBytes int64
	profiler     *profiler.Profiler
	logger       logrus.FieldLogger
	now          func() time.Time
	router       *mux.Router
}

// New creates a server.
func New(args Args) (*Server, error) {
	if args.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if args.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := args.Thresholds.Validate(); err != nil {
		return nil, errors.Wrap(err, "default thresholds")
	}
	if args.Logger == nil {
		args.Logger = logrus.StandardLogger()
	}
	if args.Profiler == nil {
		args.Profiler = profiler.New(profiler.Options{}, args.Logger)
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	if args.MaxBodyBytes <= 0 {
		args.MaxBodyBytes = 32 << 20
	}

	s := &Server{
		pipeline:     args.Pipeline,
		fetcher:      args.Fetcher,
		thresholds:   args.Thresholds,
		tool:         args.Tool,
		quality:      args.JPEGQuality,
		maxBodyBytes: args.MaxBodyBytes,
		profiler:     args.Profiler,
		logger:       args.Logger,
		now:          args.Now,
	}

	r := mux.NewRouter()
	r.Use(noCache, s.requestLogger)
	r.HandleFunc("/detect", s.handleDetectURL).Methods(http.MethodGet)
	r.HandleFunc("/detect", s.handleDetectBody).Methods(http.MethodPost)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router = r

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeOptions configures the listener.
type ServeOptions struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, opts ServeOptions) error {
	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", opts.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleDetectURL fetches ?url= (with optional user and password) and runs detection.
func (s *Server) handleDetectURL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	src := query.Get("url")
	if src == "" {
		s.writeError(w, r, http.StatusBadRequest, MsgURLMissing, nil)
		return
	}

	th, err := s.requestThresholds(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	start := time.Now()
	done := s.profiler.StartOperation(profiler.StageFetch)
	data, err := s.fetcher.Fetch(r.Context(), FetchRequest{
		URL:      src,
		User:     query.Get("user"),
		Password: query.Get("password"),
	})
	done()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrFetch.Error(), err)
		return
	}

	s.detect(w, r, data, th, time.Since(start))
}

// handleDetectBody runs detection on an uploaded image: a raw body, a JSON
// {"image": "<base64>"} body or a multipart "file" field.
func (s *Server) handleDetectBody(w http.ResponseWriter, r *http.Request) {
	th, err := s.requestThresholds(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	data, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	if len(data) == 0 {
		s.writeError(w, r, http.StatusBadRequest, MsgImageMissing, nil)
		return
	}

	s.detect(w, r, data, th, 0)
}

func readUpload(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.Wrap(err, "invalid json body")
		}
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			return nil, errors.Wrap(err, "invalid base64 image")
		}
		return data, nil
	case strings.HasPrefix(contentType, "multipart/form-data"):
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.Wrap(err, "invalid multipart body")
		}
		defer file.Close()
		return io.ReadAll(file)
	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.Wrap(err, "invalid body")
		}
		return data, nil
	}
}

func (s *Server) detect(w http.ResponseWriter, r *http.Request, data []byte, th detector.Thresholds, camTime time.Duration) {
	s.profiler.IncCounter("requests")
	captured := s.now()

	result, err := s.pipeline.DetectBytes(r.Context(), data, th)
	if err != nil {
		status := http.StatusInternalServerError
		if detector.KindOf(err) == detector.KindInput {
			status = http.StatusBadRequest
		}
		s.writeError(w, r, status, err.Error(), err)
		return
	}

	done := s.profiler.StartOperation(profiler.StageEncode)
	resp, err := report.Build(report.BuildArgs{
		Tool:          s.tool,
		CapturedAt:    captured,
		CameraTime:    camTime,
		InferenceTime: result.InferenceTime,
		Detections:    result.Detections,
		Annotated:     result.Annotated,
		Quality:       s.quality,
	})
	done()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error(), err)
		return
	}

	loggerFrom(r.Context(), s.logger).WithFields(logrus.Fields{
		"entities":   len(resp.Detect.Entities),
		"detections": len(result.Detections),
		"camtime":    resp.Detect.CamTime,
		"inf_time":   resp.Detect.InfTime,
	}).Info("detection served")

	writeJSON(w, http.StatusOK, resp)
}

// requestThresholds applies the ?thresh= (display) and ?nms= (IoU) overrides,
// both given in percent.
func (s *Server) requestThresholds(r *http.Request) (detector.Thresholds, error) {
	th := s.thresholds
	query := r.URL.Query()

	for _, override := range []struct {
		key    string
		target *float64
	}{
		{"thresh", &th.Display},
		{"nms", &th.IoU},
	} {
		raw := query.Get(override.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			return th, errors.Errorf("%s must be a percentage between 0 and 100", override.key)
		}
		*override.target = v / 100
	}

	if err := th.Validate(); err != nil {
		return th, err
	}
	return th, nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backend":  s.pipeline.Backend(),
		"profiler": s.profiler.Snapshot(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, cause error) {
	s.profiler.IncCounter("errors")

	entry := loggerFrom(r.Context(), s.logger).WithField("status", status)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	if status >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Warn(msg)
	}

	writeJSON(w, status, report.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
