package dataset

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

// Resolver turns a Source into a Frame.
type Resolver struct {
	fetcher *Fetcher
}

func NewResolver(f *Fetcher) *Resolver {
	return &Resolver{fetcher: f}
}

func (r *Resolver) Resolve(ctx context.Context, src Source) (*Frame, error) {
	switch s := src.(type) {
	case InlineTable:
		switch s.Format {
		case models.DataFormatSplit, "":
			return ParseSplit(s.Text)
		case models.DataFormatCSV:
			return ParseCSV(strings.NewReader(s.Text))
		default:
			return nil, fmt.Errorf("%w: unknown inline format %q", ErrParse, s.Format)
		}
	case FileReference:
		body, err := r.fetcher.Fetch(ctx, s.URL)
		if err != nil {
			return nil, err
		}
		return ParseCSV(bytes.NewReader(body))
	default:
		return nil, ErrNoSource
	}
}
