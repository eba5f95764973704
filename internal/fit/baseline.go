package fit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/dataset"
)

const baselineName = "baseline-ridge"

var (
	defaultAlphaGrid = []float64{0.1, 0.3, 0.5, 0.7, 0.9}
	defaultLamGrid   = []float64{0.5, 1, 2, 4}
)

// Baseline fits y = intercept + Σ β·saturate(adstock(channel)) + Σ γ·control
// + Σ γ·fourier by ridge-regularised least squares, grid searching the
// adstock decay (alpha) and saturation (lam) shared by all channels.
type Baseline struct {
	Ridge     float64
	AlphaGrid []float64
	LamGrid   []float64
	now       func() time.Time
}

// NewBaseline returns a Baseline with the default grids.
func NewBaseline() *Baseline {
	return &Baseline{
		Ridge:     1e-6,
		AlphaGrid: defaultAlphaGrid,
		LamGrid:   defaultLamGrid,
		now:       time.Now,
	}
}

type inputs struct {
	dates    []time.Time
	y        []float64
	channels [][]float64
	controls [][]float64
}

type gridPoint struct {
	alpha, lam float64
	sse        float64
}

// Fit implements Fitter.
func (b *Baseline) Fit(ctx context.Context, f *dataset.Frame, p Params) (*Model, error) {
	if len(p.ChannelColumns) == 0 {
		return nil, ErrNoChannels
	}
	in, err := loadInputs(f, p)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Channels:          append([]string(nil), p.ChannelColumns...),
		Controls:          append([]string(nil), p.ControlColumns...),
		Target:            p.TargetColumn,
		AdstockMaxLag:     max(p.AdstockMaxLag, 1),
		YearlySeasonality: max(p.YearlySeasonality, 0),
		Observations:      len(in.y),
		FitterName:        baselineName,
	}

	terms := 1 + len(in.channels) + len(in.controls) + 2*m.YearlySeasonality
	if len(in.y) <= terms {
		return nil, fmt.Errorf("%w: %d rows, %d terms", ErrTooFewRows, len(in.y), terms)
	}

	m.TargetScale = scaleOrOne(maxAbs(in.y))
	y := scaled(in.y, m.TargetScale)
	channels := make([][]float64, len(in.channels))
	for i, c := range in.channels {
		s := scaleOrOne(maxAbs(c))
		m.ChannelScale = append(m.ChannelScale, s)
		channels[i] = scaled(c, s)
	}
	controls := make([][]float64, len(in.controls))
	for i, c := range in.controls {
		s := scaleOrOne(maxAbs(c))
		m.ControlScale = append(m.ControlScale, s)
		controls[i] = scaled(c, s)
	}
	fourier := fourierTerms(in.dates, m.YearlySeasonality)

	var (
		grid []gridPoint
		best *solution
	)
	for _, alpha := range b.AlphaGrid {
		for _, lam := range b.LamGrid {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			x := design(channels, controls, fourier, alpha, lam, m.AdstockMaxLag)
			sol, err := b.solve(x, y)
			if err != nil {
				continue
			}
			grid = append(grid, gridPoint{alpha: alpha, lam: lam, sse: sol.sse})
			if best == nil || sol.sse < best.sse {
				sol.alpha, sol.lam = alpha, lam
				best = sol
			}
		}
	}
	if best == nil {
		return nil, ErrSingular
	}

	m.GridEvaluated = len(grid)
	m.Alpha, m.Lam = best.alpha, best.lam
	m.Sigma = best.sigma
	m.AlphaSD, m.LamSD = gridSpread(grid, best)
	m.RSquared = rSquared(y, best.sse)

	coef := best.coefficients()
	m.Intercept = coef[0]
	coef = coef[1:]
	m.BetaChannel, coef = coef[:len(channels)], coef[len(channels):]
	m.GammaControl, coef = coef[:len(controls)], coef[len(controls):]
	m.GammaFourier = coef

	m.PeriodStart = in.dates[0].Format("2006-01-02")
	m.PeriodEnd = in.dates[len(in.dates)-1].Format("2006-01-02")
	m.FittedAt = b.now().UTC()
	return m, nil
}

func loadInputs(f *dataset.Frame, p Params) (*inputs, error) {
	dates, err := dataset.ParseDates(f, p.DateColumn)
	if err != nil {
		return nil, err
	}
	y, err := f.Floats(p.TargetColumn)
	if err != nil {
		return nil, err
	}
	in := &inputs{dates: dates, y: y}
	for _, c := range p.ChannelColumns {
		v, err := f.Floats(c)
		if err != nil {
			return nil, err
		}
		in.channels = append(in.channels, v)
	}
	for _, c := range p.ControlColumns {
		v, err := f.Floats(c)
		if err != nil {
			return nil, err
		}
		in.controls = append(in.controls, v)
	}
	return in, nil
}

type solution struct {
	beta       []float64
	cov        [][]float64
	sse        float64
	sigma      float64
	alpha, lam float64
}

func (s *solution) coefficients() []Coefficient {
	out := make([]Coefficient, len(s.beta))
	for i, b := range s.beta {
		out[i] = Coefficient{Mean: b, SD: math.Sqrt(math.Max(s.cov[i][i], 0))}
	}
	return out
}

func (b *Baseline) solve(x [][]float64, y []float64) (*solution, error) {
	xtx, xty := gram(x, y)
	// The intercept is not penalised.
	for i := 1; i < len(xtx); i++ {
		xtx[i][i] += b.Ridge
	}
	inv, err := invert(xtx)
	if err != nil {
		return nil, err
	}
	beta := matVec(inv, xty)

	var sse float64
	for r, row := range x {
		e := y[r] - dot(row, beta)
		sse += e * e
	}
	dof := len(y) - len(beta)
	variance := sse / float64(dof)

	cov := make([][]float64, len(inv))
	for i := range inv {
		cov[i] = make([]float64, len(inv[i]))
		for j := range inv[i] {
			cov[i][j] = variance * inv[i][j]
		}
	}
	return &solution{beta: beta, cov: cov, sse: sse, sigma: math.Sqrt(variance)}, nil
}

// design builds the row-major design matrix: intercept, transformed
// channels, controls, then Fourier terms.
func design(channels, controls, fourier [][]float64, alpha, lam float64, lmax int) [][]float64 {
	cols := make([][]float64, 0, len(channels)+len(controls)+len(fourier))
	for _, c := range channels {
		cols = append(cols, logisticSaturation(geometricAdstock(c, alpha, lmax), lam))
	}
	cols = append(cols, controls...)
	cols = append(cols, fourier...)

	n := len(channels[0])
	x := make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, 1+len(cols))
		row[0] = 1
		for j, c := range cols {
			row[1+j] = c[r]
		}
		x[r] = row
	}
	return x
}

// geometricAdstock carries spend forward over lmax periods with weights
// alpha^l, normalised to sum to one.
func geometricAdstock(x []float64, alpha float64, lmax int) []float64 {
	w := make([]float64, lmax)
	var sum float64
	for l := range w {
		w[l] = math.Pow(alpha, float64(l))
		sum += w[l]
	}
	out := make([]float64, len(x))
	for t := range x {
		for l := 0; l < lmax && l <= t; l++ {
			out[t] += w[l] / sum * x[t-l]
		}
	}
	return out
}

func logisticSaturation(x []float64, lam float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		e := math.Exp(-lam * v)
		out[i] = (1 - e) / (1 + e)
	}
	return out
}

// fourierTerms returns sin and cos columns for orders 1..k of the yearly
// cycle.
func fourierTerms(dates []time.Time, k int) [][]float64 {
	cols := make([][]float64, 0, 2*k)
	for order := 1; order <= k; order++ {
		s := make([]float64, len(dates))
		c := make([]float64, len(dates))
		for i, d := range dates {
			phase := 2 * math.Pi * float64(order) * float64(d.YearDay()) / 365.25
			s[i] = math.Sin(phase)
			c[i] = math.Cos(phase)
		}
		cols = append(cols, s, c)
	}
	return cols
}

// gridSpread weights every grid point by its likelihood relative to the best
// one and returns the weighted standard deviation of alpha and lam.
func gridSpread(grid []gridPoint, best *solution) (float64, float64) {
	variance := best.sigma * best.sigma
	if variance == 0 {
		return 0, 0
	}
	var wsum, ma, ml float64
	weights := make([]float64, len(grid))
	for i, g := range grid {
		weights[i] = math.Exp(-(g.sse - best.sse) / (2 * variance))
		wsum += weights[i]
		ma += weights[i] * g.alpha
		ml += weights[i] * g.lam
	}
	ma /= wsum
	ml /= wsum
	var va, vl float64
	for i, g := range grid {
		va += weights[i] * (g.alpha - ma) * (g.alpha - ma)
		vl += weights[i] * (g.lam - ml) * (g.lam - ml)
	}
	return math.Sqrt(va / wsum), math.Sqrt(vl / wsum)
}

func rSquared(y []float64, sse float64) float64 {
	mu := mean(y)
	var sst float64
	for _, v := range y {
		sst += (v - mu) * (v - mu)
	}
	if sst == 0 {
		return 0
	}
	return 1 - sse/sst
}

func scaleOrOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func scaled(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / s
	}
	return out
}
