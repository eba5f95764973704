package codec_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/codec"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fittedState struct {
	Channels    []string             `json:"channels"`
	Coef        []float64            `json:"coef"`
	Scales      map[string]float64   `json:"scales"`
	Covariance  [][]float64          `json:"covariance"`
	Nested      *innerState          `json:"nested,omitempty"`
	Diagnostics map[string][]float64 `json:"diagnostics"`
	FittedAt    time.Time            `json:"fitted_at"`
}

type innerState struct {
	Channels []string `json:"channels"`
}

func sampleState() fittedState {
	return fittedState{
		Channels:    []string{"tv", "online"},
		Coef:        []float64{1.5, -0.25, 3.125e-7},
		Scales:      map[string]float64{"tv": 1200, "online": 340.5},
		Covariance:  [][]float64{{1, 0.1}, {0.1, 2}},
		Nested:      &innerState{Channels: []string{"inner"}},
		Diagnostics: map[string][]float64{"sse": {10.5, 9.25}},
		FittedAt:    time.Date(2026, 3, 2, 10, 4, 5, 0, time.UTC),
	}
}

func allCodecs(t *testing.T) map[string]codec.Codec {
	t.Helper()
	out := map[string]codec.Codec{}
	for _, name := range []string{codec.NameMsgpack, codec.NameJSON} {
		c, err := codec.New(name)
		require.NoError(t, err)
		out[name] = c

		cz, err := codec.New(name, codec.WithCompression())
		require.NoError(t, err)
		out[name+"+zstd"] = cz
	}
	return out
}

func TestRoundTrip_CompositeValue(t *testing.T) {
	for name, c := range allCodecs(t) {
		t.Run(name, func(t *testing.T) {
			in := sampleState()
			data, err := c.Encode(in)
			require.NoError(t, err)

			var out fittedState
			require.NoError(t, c.Decode(data, &out))

			assert.True(t, in.FittedAt.Equal(out.FittedAt))
			out.FittedAt = in.FittedAt
			assert.Equal(t, in, out)
		})
	}
}

func TestRoundTrip_TaskMessage(t *testing.T) {
	c := codec.Default()
	in := models.TaskMessage{
		JobID:      "0f8f7c0e-1111-4a4a-9b9b-222222222222",
		Payload:    json.RawMessage(`{"df":"a,b\n1,2","channel_columns":["tv"]}`),
		EnqueuedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	data, err := c.Encode(in)
	require.NoError(t, err)

	var out models.TaskMessage
	require.NoError(t, c.Decode(data, &out))
	assert.Equal(t, in.JobID, out.JobID)
	assert.JSONEq(t, string(in.Payload), string(out.Payload))
	assert.True(t, in.EnqueuedAt.Equal(out.EnqueuedAt))
}

func TestRoundTrip_JobResult(t *testing.T) {
	c := codec.Default()
	in := models.JobResult{ModelFilename: "mmm_model_20260101000000_x.msgpack", Summary: `{"columns":["mean"]}`}

	data, err := c.Encode(in)
	require.NoError(t, err)

	var out models.JobResult
	require.NoError(t, c.Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestDecode_ForeignBytes(t *testing.T) {
	c := codec.Default()
	var out fittedState

	cases := map[string][]byte{
		"empty":        nil,
		"pickle":       {0x80, 0x04, 0x95, 0x10, 0x00, 0x00},
		"plain json":   []byte(`{"channels":["tv"]}`),
		"short header": {'M', 'Q', 1},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			err := c.Decode(data, &out)
			require.Error(t, err)
			assert.ErrorIs(t, err, codec.ErrDecode)
		})
	}
}

func TestDecode_CorruptedBody(t *testing.T) {
	c, err := codec.New(codec.NameMsgpack, codec.WithCompression())
	require.NoError(t, err)

	data, err := c.Encode(sampleState())
	require.NoError(t, err)

	corrupted := append([]byte{}, data[:5]...)
	corrupted = append(corrupted, 0xde, 0xad, 0xbe, 0xef)

	var out fittedState
	assert.ErrorIs(t, c.Decode(corrupted, &out), codec.ErrDecode)
}

func TestDecode_FormatMismatch(t *testing.T) {
	jc, err := codec.New(codec.NameJSON)
	require.NoError(t, err)

	data, err := jc.Encode(sampleState())
	require.NoError(t, err)

	var out fittedState
	assert.ErrorIs(t, codec.Default().Decode(data, &out), codec.ErrDecode)
}

func TestNew_UnknownCodec(t *testing.T) {
	_, err := codec.New("pickle")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	jc, _ := codec.New(codec.NameJSON)
	assert.Equal(t, "application/json", jc.ContentType())
	assert.Equal(t, "application/vnd.msgpack", codec.Default().ContentType())
	assert.Equal(t, codec.NameMsgpack, codec.Default().Name())
}
