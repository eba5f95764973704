// Package dataset resolves the table a fit request refers to and checks it
// meets the preconditions of the fitting routine.
package dataset

import (
	"fmt"

	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

// Source is either an InlineTable or a FileReference.
type Source interface {
	isSource()
	String() string
}

// InlineTable is a table sent in the request body.
type InlineTable struct {
	Text   string
	Format string // models.DataFormatSplit or models.DataFormatCSV
}

// FileReference is a CSV file fetched over HTTP.
type FileReference struct {
	URL string
}

func (InlineTable) isSource()   {}
func (FileReference) isSource() {}

func (t InlineTable) String() string {
	return fmt.Sprintf("inline %s table (%d bytes)", t.Format, len(t.Text))
}
func (f FileReference) String() string { return "file " + redactURL(f.URL) }

// SourceFor picks the dataset source of req. An inline table wins when both
// are present.
func SourceFor(req *models.FitRequest) (Source, error) {
	if req.DF != "" {
		format := req.DFFormat
		if format == "" {
			format = models.DataFormatSplit
		}
		return InlineTable{Text: req.DF, Format: format}, nil
	}
	if link := req.FileLink(); link != "" {
		return FileReference{URL: link}, nil
	}
	return nil, ErrNoSource
}
