// Package pipeline runs a fit request end to end in process: resolve the
// dataset, validate it, fit, and persist the model as an artifact.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/artifact"
	"github.com/kiranshivaraju/mmmqueue/internal/codec"
	"github.com/kiranshivaraju/mmmqueue/internal/dataset"
	"github.com/kiranshivaraju/mmmqueue/internal/fit"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

// ErrInput wraps payloads that cannot be decoded as a fit request.
var ErrInput = errors.New("invalid fit request")

// inputErrors are caused by what the client sent rather than by this
// service or its dependencies.
var inputErrors = []error{
	ErrInput,
	dataset.ErrNoSource,
	dataset.ErrParse,
	dataset.ErrFetch,
	dataset.ErrInsufficientData,
	dataset.ErrDateFormat,
	dataset.ErrMissingColumn,
	dataset.ErrNonNumeric,
	fit.ErrNoChannels,
	fit.ErrTooFewRows,
	fit.ErrSingular,
}

// IsInputError reports whether err was caused by the request or its dataset.
func IsInputError(err error) bool {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Local runs fits in the calling process.
type Local struct {
	resolver *dataset.Resolver
	fitter   fit.Fitter
	store    artifact.Store
	codec    codec.Codec
}

// NewLocal creates a Local pipeline. The codec encodes the fitted model
// before upload; it should be the compressed msgpack codec.
func NewLocal(resolver *dataset.Resolver, fitter fit.Fitter, store artifact.Store, c codec.Codec) *Local {
	return &Local{resolver: resolver, fitter: fitter, store: store, codec: c}
}

// Run decodes payload as a fit request and runs it.
func (l *Local) Run(ctx context.Context, payload json.RawMessage) (*models.JobResult, error) {
	var req models.FitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}
	return l.Fit(ctx, &req)
}

// Fit runs req and returns the artifact name and client summary.
func (l *Local) Fit(ctx context.Context, req *models.FitRequest) (*models.JobResult, error) {
	req.ApplyDefaults()

	src, err := dataset.SourceFor(req)
	if err != nil {
		return nil, err
	}
	frame, err := l.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", src, err)
	}

	params := fit.Params{
		DateColumn:        req.DateColumn,
		TargetColumn:      dataset.ResolveTarget(frame, req.YColumn, models.DefaultYColumn, models.FallbackYColumn),
		ChannelColumns:    req.ChannelColumns,
		ControlColumns:    req.ControlColumns,
		AdstockMaxLag:     *req.AdstockMaxLag,
		YearlySeasonality: *req.YearlySeasonality,
	}
	if err := dataset.Validate(frame, dataset.Requirements{
		DateColumn:     params.DateColumn,
		TargetColumn:   params.TargetColumn,
		ChannelColumns: params.ChannelColumns,
		ControlColumns: params.ControlColumns,
	}); err != nil {
		return nil, fmt.Errorf("validating dataset: %w", err)
	}

	start := time.Now()
	model, err := l.fitter.Fit(ctx, frame, params)
	if err != nil {
		return nil, fmt.Errorf("fitting model: %w", err)
	}
	slog.Info("model fitted",
		"rows", frame.Len(),
		"channels", len(params.ChannelColumns),
		"target", params.TargetColumn,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	summary, err := fit.ClientSummary(model)
	if err != nil {
		return nil, fmt.Errorf("summarizing model: %w", err)
	}

	data, err := l.codec.Encode(model)
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	name, err := l.store.Upload(ctx, data, l.codec.ContentType())
	if err != nil {
		return nil, fmt.Errorf("uploading model: %w", err)
	}

	return &models.JobResult{ModelFilename: name, Summary: summary}, nil
}

// LoadModel downloads and decodes the model stored under name.
func LoadModel(ctx context.Context, store artifact.Store, c codec.Codec, name string) (*fit.Model, error) {
	data, err := store.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	var m fit.Model
	if err := c.Decode(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
