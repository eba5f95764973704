// Package dispatch forwards fit requests to a separately deployed compute
// backend and relays its response as the job result.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

// Sentinel errors for remote dispatch failures.
var (
	ErrRemoteDispatch = errors.New("remote compute failed")
	ErrUnreachable    = errors.New("remote compute unreachable")
	ErrTimeout        = errors.New("remote compute timed out")
	ErrToken          = errors.New("identity token unavailable")
)

const (
	runPath         = "/run_mmm"
	maxErrorBodyLen = 512
)

// Dispatcher posts fit payloads to {baseURL}/run_mmm with a bearer identity
// token whose audience is baseURL.
type Dispatcher struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// New creates a Dispatcher. The timeout bounds the whole remote call.
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Dispatcher {
	return &Dispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
	}
}

// remoteResponse holds the fields lifted out of the backend's response.
type remoteResponse struct {
	Status        string          `json:"status"`
	ModelFilename string          `json:"model_filename"`
	Summary       json.RawMessage `json:"summary"`
	Error         string          `json:"error"`
}

// Run forwards payload and returns the backend's response as a job result.
// The body is kept verbatim in Raw.
func (d *Dispatcher) Run(ctx context.Context, payload json.RawMessage) (*models.JobResult, error) {
	token, err := d.tokens.Token(ctx, d.baseURL)
	if err != nil {
		metrics.RemoteDispatchTotal.WithLabelValues("token_error").Inc()
		if !errors.Is(err, ErrToken) {
			err = fmt.Errorf("%w: %v", ErrToken, err)
		}
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+runPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.RemoteDispatchTotal.WithLabelValues("unreachable").Inc()
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RemoteDispatchTotal.WithLabelValues("unreachable").Inc()
		return nil, classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteDispatchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemoteDispatch, resp.StatusCode, truncate(body))
	}

	var rr remoteResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		metrics.RemoteDispatchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: decoding response: %v", ErrRemoteDispatch, err)
	}
	if rr.Status == models.JobStatusFailed {
		metrics.RemoteDispatchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrRemoteDispatch, rr.Error)
	}

	metrics.RemoteDispatchTotal.WithLabelValues("ok").Inc()
	return &models.JobResult{
		ModelFilename: rr.ModelFilename,
		Summary:       summaryText(rr.Summary),
		Raw:           json.RawMessage(body),
	}, nil
}

// Ready checks that the backend answers its health endpoint.
func (d *Dispatcher) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: compute not ready (status %d)", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

// summaryText accepts a summary sent either as a JSON string or as an
// inline JSON value.
func summaryText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %v", ErrRemoteDispatch, ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w: %v", ErrRemoteDispatch, ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w: %v", ErrRemoteDispatch, ErrUnreachable, err)
}
