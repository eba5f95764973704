package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const defaultMaxFetchBytes = 64 << 20

// Fetcher downloads client-referenced dataset files.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a Fetcher with the given timeout and User-Agent.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  defaultMaxFetchBytes,
	}
}

// Fetch GETs rawURL and returns the body. Any network failure or non-2xx
// status is reported as ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid download link %q", ErrFetch, redactURL(rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyError(redactURL(rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrFetch, redactURL(rawURL), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, classifyError(redactURL(rawURL), err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: GET %s: body exceeds %d bytes", ErrFetch, redactURL(rawURL), f.maxBytes)
	}
	return body, nil
}

// classifyError maps transport-level errors to ErrFetch, marking timeouts.
func classifyError(target string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: GET %s: %v", ErrFetch, ErrFetchTimeout, target, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w: GET %s: %v", ErrFetch, ErrFetchTimeout, target, err)
	}
	return fmt.Errorf("%w: GET %s: %v", ErrFetch, target, err)
}

// redactURL drops the query string, which often carries signed credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	u.Fragment = ""
	return u.String()
}
