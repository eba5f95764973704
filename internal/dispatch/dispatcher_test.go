package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTokens struct {
	token     string
	err       error
	audiences []string
}

func (r *recordingTokens) Token(_ context.Context, audience string) (string, error) {
	r.audiences = append(r.audiences, audience)
	return r.token, r.err
}

func TestRun_ForwardsPayloadWithToken(t *testing.T) {
	var (
		gotAuth string
		gotPath string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"completed","model_filename":"mmm_model_x.msgpack","summary":"{\"columns\":[]}"}`))
	}))
	defer srv.Close()

	tokens := &recordingTokens{token: "id-token-1"}
	d := dispatch.New(srv.URL+"/", 5*time.Second, tokens)

	payload := json.RawMessage(`{"df":"x","channel_columns":["tv"]}`)
	res, err := d.Run(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, "Bearer id-token-1", gotAuth)
	assert.Equal(t, "/run_mmm", gotPath)
	assert.JSONEq(t, string(payload), string(gotBody))
	assert.Equal(t, []string{srv.URL}, tokens.audiences)

	assert.Equal(t, "mmm_model_x.msgpack", res.ModelFilename)
	assert.Equal(t, `{"columns":[]}`, res.Summary)
	assert.Contains(t, string(res.Raw), `"status":"completed"`)
}

func TestRun_SummaryAsObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"completed","summary":{"columns":["mean"],"index":["sigma"],"data":[[0.1]]}}`))
	}))
	defer srv.Close()

	res, err := dispatch.New(srv.URL, 5*time.Second, dispatch.StaticTokenSource("t")).Run(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["mean"],"index":["sigma"],"data":[[0.1]]}`, res.Summary)
	assert.Empty(t, res.ModelFilename)
}

func TestRun_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("boom ", 500)))
	}))
	defer srv.Close()

	_, err := dispatch.New(srv.URL, 5*time.Second, dispatch.StaticTokenSource("t")).Run(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatch.ErrRemoteDispatch)
	assert.Contains(t, err.Error(), "status 500")
	assert.Less(t, len(err.Error()), 700)
}

func TestRun_RemoteReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"failed","error":"dataset must have at least 15 rows"}`))
	}))
	defer srv.Close()

	_, err := dispatch.New(srv.URL, 5*time.Second, dispatch.StaticTokenSource("t")).Run(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dispatch.ErrRemoteDispatch)
	assert.Contains(t, err.Error(), "at least 15 rows")
}

func TestRun_TokenFailure(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	tokens := &recordingTokens{err: errors.New("no credentials")}
	_, err := dispatch.New(srv.URL, 5*time.Second, tokens).Run(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dispatch.ErrToken)
	assert.False(t, called, "backend must not be called without a token")
}

func TestRun_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := dispatch.New(srv.URL, 100*time.Millisecond, dispatch.StaticTokenSource("t")).Run(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dispatch.ErrRemoteDispatch)
	assert.ErrorIs(t, err, dispatch.ErrTimeout)
}

func TestRun_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := dispatch.New(url, time.Second, dispatch.StaticTokenSource("t")).Run(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dispatch.ErrUnreachable)
}

func TestRun_NonJSONSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := dispatch.New(srv.URL, time.Second, dispatch.StaticTokenSource("t")).Run(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dispatch.ErrRemoteDispatch)
}

func TestReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	d := dispatch.New(srv.URL, time.Second, dispatch.StaticTokenSource("t"))
	assert.NoError(t, d.Ready(context.Background()))

	srv.Close()
	assert.ErrorIs(t, d.Ready(context.Background()), dispatch.ErrUnreachable)
}
