package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/report"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPipeline struct {
	err  error
	got  []byte
	th   detector.Thresholds
	runs int
}

func (p *stubPipeline) DetectBytes(_ context.Context, data []byte, th detector.Thresholds) (*detector.Result, error) {
	p.runs++
	p.got = data
	p.th = th
	if p.err != nil {
		return nil, p.err
	}
	return &detector.Result{
		Detections: []postprocess.Detection{
			{Candidate: postprocess.Candidate{CX: 208.7, CY: 100.2, W: 50, H: 80, Class: 0, Confidence: 0.91234}, Label: "person", Box: images.Rect{}},
			{Candidate: postprocess.Candidate{CX: 10, CY: 20, W: 30, H: 40, Class: 2, Confidence: 0.5}, Label: "car"},
			{Candidate: postprocess.Candidate{CX: 300, CY: 300, W: 20, H: 20, Class: 0, Confidence: 0.3}, Label: "person"},
		},
		Annotated:     image.NewRGBA(image.Rect(0, 0, 8, 8)),
		InferenceTime: 42 * time.Millisecond,
	}, nil
}

func (p *stubPipeline) Backend() string { return "stub" }

type stubFetcher struct {
	data []byte
	err  error
	req  FetchRequest
}

func (f *stubFetcher) Fetch(_ context.Context, req FetchRequest) ([]byte, error) {
	f.req = req
	return f.data, f.err
}

func newTestServer(t *testing.T, pipeline Pipeline, fetcher Fetcher) *Server {
	logger, _ := test.NewNullLogger()
	s, err := New(Args{
		Pipeline:   pipeline,
		Fetcher:    fetcher,
		Thresholds: detector.DefaultThresholds(),
		Tool:       "openvino",
		Logger:     logger,
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body report.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func assertNoCache(t *testing.T, rec *httptest.ResponseRecorder) {
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
}

func TestDetectURL(t *testing.T) {
	pipeline := &stubPipeline{}
	fetcher := &stubFetcher{data: []byte("jpeg bytes")}
	s := newTestServer(t, pipeline, fetcher)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/detect?url=http://cam/snap.jpg&user=admin&password=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertNoCache(t, rec)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, FetchRequest{URL: "http://cam/snap.jpg", User: "admin", Password: "secret"}, fetcher.req)
	assert.Equal(t, []byte("jpeg bytes"), pipeline.got)
	assert.Equal(t, detector.DefaultThresholds(), pipeline.th)

	var resp report.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "openvino", resp.Detect.Tool)
	assert.Equal(t, int64(1700000000), resp.Detect.Date)
	assert.Equal(t, 0.042, resp.Detect.InfTime)
	require.Len(t, resp.Detect.Entities, 2)
	assert.Equal(t, "person", resp.Detect.Entities[0].Class)
	assert.Equal(t, []report.Instance{
		{Confidence: 0.912, CX: 208, CY: 100, W: 50, H: 80},
		{Confidence: 0.3, CX: 300, CY: 300, W: 20, H: 20},
	}, resp.Detect.Entities[0].Details)
	assert.Equal(t, "car", resp.Detect.Entities[1].Class)

	_, err := base64.StdEncoding.DecodeString(resp.Detect.Image)
	assert.NoError(t, err)
}

func TestDetectURLMissing(t *testing.T) {
	pipeline := &stubPipeline{}
	s := newTestServer(t, pipeline, &stubFetcher{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/detect", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "URL not provided.", decodeError(t, rec))
	assertNoCache(t, rec)
	assert.Zero(t, pipeline.runs)
}

func TestDetectURLFetchFailure(t *testing.T) {
	pipeline := &stubPipeline{}
	s := newTestServer(t, pipeline, &stubFetcher{err: errors.Wrap(ErrFetch, "status 404")})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/detect?url=http://cam/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unable to get image from camera", decodeError(t, rec))
	assert.Zero(t, pipeline.runs)
}

func TestDetectThresholdOverrides(t *testing.T) {
	pipeline := &stubPipeline{}
	s := newTestServer(t, pipeline, &stubFetcher{data: []byte("x")})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/detect?url=http://cam/&thresh=50&nms=30", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.5, pipeline.th.Display, 1e-12)
	assert.InDelta(t, 0.3, pipeline.th.IoU, 1e-12)
	assert.Equal(t, 0.7, pipeline.th.Decode)

	for _, q := range []string{"thresh=abc", "thresh=150", "nms=0", "nms=-1"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/detect?url=http://cam/&"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestDetectErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"input", detector.InputError(errors.New("unable to decode image")), http.StatusBadRequest},
		{"inference", detector.InferenceError(errors.New("device lost")), http.StatusInternalServerError},
		{"configuration", detector.ConfigurationError(errors.New("labels")), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubPipeline{err: tt.err}, &stubFetcher{data: []byte("x")})
			rec := serve(s, httptest.NewRequest(http.MethodGet, "/detect?url=http://cam/", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.err.Error(), decodeError(t, rec))
			assertNoCache(t, rec)
		})
	}
}

func TestDetectBody(t *testing.T) {
	payload := []byte("raw image")

	t.Run("raw", func(t *testing.T) {
		pipeline := &stubPipeline{}
		s := newTestServer(t, pipeline, &stubFetcher{})
		rec := serve(s, httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(payload)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, payload, pipeline.got)

		var resp report.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Zero(t, resp.Detect.CamTime)
	})

	t.Run("json", func(t *testing.T) {
		pipeline := &stubPipeline{}
		s := newTestServer(t, pipeline, &stubFetcher{})
		body, _ := json.Marshal(map[string]string{"image": base64.StdEncoding.EncodeToString(payload)})
		req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(s, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, payload, pipeline.got)
	})

	t.Run("multipart", func(t *testing.T) {
		pipeline := &stubPipeline{}
		s := newTestServer(t, pipeline, &stubFetcher{})

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "snap.jpg")
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/detect", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := serve(s, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, payload, pipeline.got)
	})

	t.Run("empty", func(t *testing.T) {
		s := newTestServer(t, &stubPipeline{}, &stubFetcher{})
		rec := serve(s, httptest.NewRequest(http.MethodPost, "/detect", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MsgImageMissing, decodeError(t, rec))
	})
}

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(t, &stubPipeline{}, &stubFetcher{data: []byte("x")})
	serve(s, httptest.NewRequest(http.MethodGet, "/detect?url=http://cam/", nil))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics struct {
		Backend  string `json:"backend"`
		Profiler struct {
			Counters map[string]int64 `json:"counters"`
		} `json:"profiler"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, "stub", metrics.Backend)
	assert.Equal(t, int64(1), metrics.Profiler.Counters["requests"])

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assertNoCache(t, rec)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Args{Fetcher: &stubFetcher{}, Thresholds: detector.DefaultThresholds()})
	assert.Error(t, err)
	_, err = New(Args{Pipeline: &stubPipeline{}, Thresholds: detector.DefaultThresholds()})
	assert.Error(t, err)
	_, err = New(Args{Pipeline: &stubPipeline{}, Fetcher: &stubFetcher{}})
	assert.Error(t, err, "zero thresholds are invalid")
}
