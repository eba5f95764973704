package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"github.com/kiranshivaraju/mmmqueue/internal/schema"
)

// Submitter enqueues validated fit payloads.
type Submitter interface {
	Submit(ctx context.Context, payload json.RawMessage) (string, error)
}

// RequestValidator checks a raw request body.
type RequestValidator interface {
	Validate(body []byte) error
}

type submitResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

// NewSubmitHandler returns an http.HandlerFunc for POST /run_mmm_async.
func NewSubmitHandler(v RequestValidator, svc Submitter, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					"Request body exceeds the size limit", map[string]int64{"limit_bytes": tooLarge.Limit})
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read request body", nil)
			return
		}

		if err := v.Validate(body); err != nil {
			var ve *schema.ValidationError
			switch {
			case errors.As(err, &ve):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"Request does not match the schema", ve.Fields)
			case errors.Is(err, schema.ErrMalformed):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		id, err := svc.Submit(r.Context(), json.RawMessage(body))
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "ENQUEUE_FAILED",
				"The job could not be queued, try again later", nil)
			return
		}

		response.Accepted(w, submitResponse{Status: "accepted", TaskID: id})
	}
}
