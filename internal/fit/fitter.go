// Package fit holds the fitting routine the workers run: a baseline
// marketing-mix regression with geometric adstock, logistic saturation and
// Fourier seasonality.
package fit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/dataset"
)

var (
	ErrNoChannels = errors.New("at least one channel column is required")
	ErrSingular   = errors.New("design matrix is singular")
	ErrTooFewRows = errors.New("not enough rows for the number of model terms")
)

// Params are the declarative hyperparameters of a fit.
type Params struct {
	DateColumn        string
	TargetColumn      string
	ChannelColumns    []string
	ControlColumns    []string
	AdstockMaxLag     int
	YearlySeasonality int
}

// Fitter fits a model to a validated frame. Implementations must return
// promptly once ctx is done.
type Fitter interface {
	Fit(ctx context.Context, f *dataset.Frame, p Params) (*Model, error)
}

// Model is a fitted model. Every field is exported so the codec can persist
// the whole object as an artifact.
type Model struct {
	Channels          []string `json:"channels"`
	Controls          []string `json:"controls"`
	Target            string   `json:"target"`
	AdstockMaxLag     int      `json:"adstock_max_lag"`
	YearlySeasonality int      `json:"yearly_seasonality"`

	ChannelScale []float64 `json:"channel_scale"`
	ControlScale []float64 `json:"control_scale"`
	TargetScale  float64   `json:"target_scale"`

	Alpha   float64 `json:"alpha"`
	AlphaSD float64 `json:"alpha_sd"`
	Lam     float64 `json:"lam"`
	LamSD   float64 `json:"lam_sd"`

	Intercept     Coefficient   `json:"intercept"`
	BetaChannel   []Coefficient `json:"beta_channel"`
	GammaControl  []Coefficient `json:"gamma_control"`
	GammaFourier  []Coefficient `json:"gamma_fourier"`
	Sigma         float64       `json:"sigma"`
	RSquared      float64       `json:"r_squared"`
	Observations  int           `json:"observations"`
	GridEvaluated int           `json:"grid_evaluated"`
	PeriodStart   string        `json:"period_start"`
	PeriodEnd     string        `json:"period_end"`
	FittedAt      time.Time     `json:"fitted_at"`
	FitterName    string        `json:"fitter"`
}

// Coefficient is a point estimate with its standard error.
type Coefficient struct {
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
}

// FourierLabels returns the term names of the seasonality coefficients in
// model order.
func (m *Model) FourierLabels() []string {
	out := make([]string, 0, 2*m.YearlySeasonality)
	for k := 1; k <= m.YearlySeasonality; k++ {
		out = append(out, "sin_"+strconv.Itoa(k), "cos_"+strconv.Itoa(k))
	}
	return out
}
