package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"github.com/kiranshivaraju/mmmqueue/internal/service"
)

// SummaryReader looks up model summaries by task or by artifact name.
type SummaryReader interface {
	SummaryByTask(ctx context.Context, id string) (*service.SummaryView, error)
	SummaryByArtifact(ctx context.Context, name string) (*service.SummaryView, error)
}

// NewSummaryHandler returns an http.HandlerFunc for GET /get_summary_statistics.
// task_id wins when both parameters are given.
func NewSummaryHandler(svc SummaryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		id, name := q.Get("task_id"), q.Get("model_filename")

		var (
			v   *service.SummaryView
			err error
		)
		switch {
		case id != "":
			v, err = svc.SummaryByTask(r.Context(), id)
		case name != "":
			v, err = svc.SummaryByArtifact(r.Context(), name)
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"task_id or model_filename is required", nil)
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, v)
	}
}
