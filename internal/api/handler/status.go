package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"github.com/kiranshivaraju/mmmqueue/internal/service"
)

// StatusReader reports job state without blocking.
type StatusReader interface {
	Status(ctx context.Context, id string) (*service.StatusView, error)
}

// NewStatusHandler returns an http.HandlerFunc for GET /get_task_status.
func NewStatusHandler(svc StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("task_id")
		if id == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "task_id is required", nil)
			return
		}

		v, err := svc.Status(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, v)
	}
}

// writeServiceError maps service errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Task or model not found", nil)
	case errors.Is(err, service.ErrUndecodable):
		response.Error(w, http.StatusUnprocessableEntity, "UNDECODABLE_ARTIFACT",
			"The stored model could not be decoded", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
