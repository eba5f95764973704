// Package codec encodes queue messages, job results and model artifacts.
//
// Every encoded value is framed with a short header naming the format and
// compression, so bytes written by a different codec, a different version or
// another program are rejected with ErrDecode instead of being misread.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrDecode is returned when bytes are corrupted or were not produced by this package.
var ErrDecode = errors.New("decode error")

// Codec is the encode/decode contract shared by the broker and the artifact store.
type Codec interface {
	Encode(v any) ([]byte, error)
	// Decode unmarshals data into v, which must be a non-nil pointer.
	Decode(data []byte, v any) error
	Name() string
	ContentType() string
}

const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

const (
	version      byte = 1
	flagZstd     byte = 1 << 0
	headerLength      = 5

	formatJSON    byte = 1
	formatMsgpack byte = 2
)

var magic = [2]byte{'M', 'Q'}

type options struct {
	compress bool
}

// Option configures a codec.
type Option func(*options)

// WithCompression zstd-compresses the payload. Used for model artifacts.
func WithCompression() Option {
	return func(o *options) { o.compress = true }
}

// New returns the codec registered under name.
func New(name string, opts ...Option) (Codec, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	switch name {
	case NameMsgpack, "":
		return &framed{format: formatMsgpack, name: NameMsgpack, opts: o}, nil
	case NameJSON:
		return &framed{format: formatJSON, name: NameJSON, opts: o}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Default returns the uncompressed msgpack codec.
func Default() Codec {
	c, _ := New(NameMsgpack)
	return c
}

type framed struct {
	format byte
	name   string
	opts   options
}

func (c *framed) Name() string { return c.name }

func (c *framed) ContentType() string {
	if c.format == formatJSON {
		return "application/json"
	}
	return "application/vnd.msgpack"
}

func (c *framed) Encode(v any) ([]byte, error) {
	body, err := c.marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}

	var flags byte
	if c.opts.compress {
		enc, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.name, err)
		}
		body = enc.EncodeAll(body, nil)
		flags |= flagZstd
	}

	out := make([]byte, 0, headerLength+len(body))
	out = append(out, magic[0], magic[1], version, c.format, flags)
	return append(out, body...), nil
}

func (c *framed) Decode(data []byte, v any) error {
	if len(data) < headerLength || data[0] != magic[0] || data[1] != magic[1] {
		return fmt.Errorf("%w: missing frame header", ErrDecode)
	}
	if data[2] != version {
		return fmt.Errorf("%w: unsupported frame version %d", ErrDecode, data[2])
	}
	if data[3] != c.format {
		return fmt.Errorf("%w: frame format %d does not match %s codec", ErrDecode, data[3], c.name)
	}

	body := data[headerLength:]
	if data[4]&flagZstd != 0 {
		dec, err := zstdDecoder()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		body, err = dec.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("%w: decompress: %v", ErrDecode, err)
		}
	}

	if err := c.unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (c *framed) marshal(v any) ([]byte, error) {
	if c.format == formatJSON {
		return json.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *framed) unmarshal(body []byte, v any) error {
	if c.format == formatJSON {
		return json.Unmarshal(body, v)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(body))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

var (
	zstdOnce sync.Once
	zEnc     *zstd.Encoder
	zDec     *zstd.Decoder
	zErr     error
)

func initZstd() {
	zEnc, zErr = zstd.NewWriter(nil)
	if zErr != nil {
		return
	}
	zDec, zErr = zstd.NewReader(nil)
}

func zstdEncoder() (*zstd.Encoder, error) {
	zstdOnce.Do(initZstd)
	return zEnc, zErr
}

func zstdDecoder() (*zstd.Decoder, error) {
	zstdOnce.Do(initZstd)
	return zDec, zErr
}
