package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

// FitRunner runs a fit synchronously.
type FitRunner interface {
	Run(ctx context.Context, payload json.RawMessage) (*models.JobResult, error)
}

type computeResponse struct {
	Status        string `json:"status"`
	ModelFilename string `json:"model_filename,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NewComputeHandler returns the compute backend's POST /run_mmm handler.
// isInputError decides between 400 and 500 for failed fits.
func NewComputeHandler(runner FitRunner, maxBodyBytes int64, isInputError func(error) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Status(w, http.StatusRequestEntityTooLarge, computeResponse{
					Status: models.JobStatusFailed, Error: "request body exceeds the size limit",
				})
				return
			}
			response.Status(w, http.StatusBadRequest, computeResponse{
				Status: models.JobStatusFailed, Error: "could not read request body",
			})
			return
		}

		result, err := runner.Run(r.Context(), json.RawMessage(body))
		if err != nil {
			status := http.StatusInternalServerError
			if isInputError(err) {
				status = http.StatusBadRequest
			}
			slog.Error("fit failed", "status", status, "error", err)
			response.Status(w, status, computeResponse{Status: models.JobStatusFailed, Error: err.Error()})
			return
		}

		response.JSON(w, computeResponse{
			Status:        models.JobStatusCompleted,
			ModelFilename: result.ModelFilename,
			Summary:       result.Summary,
		})
	}
}
