// Package artifact stores serialized fit results as immutable named blobs.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrDuplicateKey = errors.New("artifact name already exists")
)

// Store is the artifact storage interface. Artifacts are written once and
// never updated or deleted by this service.
type Store interface {
	// Upload writes data under a newly generated name and returns the name.
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	// Download returns the bytes stored under name, or ErrNotFound.
	Download(ctx context.Context, name string) ([]byte, error)
	Ping(ctx context.Context) error
}

const (
	DefaultNamePrefix = "mmm_model_"
	DefaultExtension  = ".msgpack"
)

// NameFunc generates a collision-resistant artifact name.
type NameFunc func(now time.Time) string

// NewNameFunc returns a NameFunc producing
// <prefix><YYYYmmddHHMMSS>_<ksuid><ext>. The ksuid suffix keeps names unique
// when several workers upload within the same second.
func NewNameFunc(prefix, ext string) NameFunc {
	return func(now time.Time) string {
		return fmt.Sprintf("%s%s_%s%s", prefix, now.UTC().Format("20060102150405"), ksuid.New().String(), ext)
	}
}

// DefaultNameFunc is NewNameFunc(DefaultNamePrefix, DefaultExtension).
var DefaultNameFunc = NewNameFunc(DefaultNamePrefix, DefaultExtension)
