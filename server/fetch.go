package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ErrFetch is reported to clients when the source image cannot be retrieved.
var ErrFetch = errors.New("unable to get image from camera")

// FetchRequest identifies a source image.
type FetchRequest struct {
	URL      string
	User     string
	Password string
}

// Fetcher retrieves the encoded bytes of a source image.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]byte, error)
}

// HTTPFetcher fetches images over HTTP with optional basic auth. It does not retry.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher with a per-request timeout and a body size limit.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch implements Fetcher. Every failure wraps ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrFetch, "bad url: %v", err)
	}
	if req.User != "" || req.Password != "" {
		httpReq.SetBasicAuth(req.User, req.Password)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(ErrFetch, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrFetch, "status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.Wrapf(ErrFetch, "reading body: %v", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.Wrapf(ErrFetch, "image larger than %d bytes", f.maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.Wrap(ErrFetch, "empty body")
	}
	return data, nil
}
