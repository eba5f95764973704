package fit

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

// SummaryColumns are the statistics reported per parameter.
var SummaryColumns = []string{"mean", "sd", "hdi_3%", "hdi_97%"}

// SummaryFilter selects the parameter rows returned to clients.
var SummaryFilter = regexp.MustCompile(`(?i)alpha|beta|sigma|intercept|lam|gamma_control`)

// SummaryPrecision is the number of decimals kept in client summaries.
const SummaryPrecision = 5

// z-score of the 94% interval (3%..97%).
const hdiZ = 1.8807936081512509

// Table is a parameter summary in row order.
type Table struct {
	Columns []string    `json:"columns"`
	Index   []string    `json:"index"`
	Data    [][]float64 `json:"data"`
}

// Summarize builds the full parameter table of m.
func Summarize(m *Model) *Table {
	t := &Table{Columns: append([]string(nil), SummaryColumns...)}

	t.add("intercept", m.Intercept)
	for i, ch := range m.Channels {
		t.add(fmt.Sprintf("beta_channel[%s]", ch), m.BetaChannel[i])
	}
	for _, ch := range m.Channels {
		t.add(fmt.Sprintf("alpha[%s]", ch), Coefficient{Mean: m.Alpha, SD: m.AlphaSD})
	}
	for _, ch := range m.Channels {
		t.add(fmt.Sprintf("lam[%s]", ch), Coefficient{Mean: m.Lam, SD: m.LamSD})
	}
	for i, c := range m.Controls {
		t.add(fmt.Sprintf("gamma_control[%s]", c), m.GammaControl[i])
	}
	for i, label := range m.FourierLabels() {
		t.add(fmt.Sprintf("gamma_fourier[%s]", label), m.GammaFourier[i])
	}
	t.add("sigma", Coefficient{Mean: m.Sigma})
	return t
}

func (t *Table) add(name string, c Coefficient) {
	t.Index = append(t.Index, name)
	t.Data = append(t.Data, []float64{c.Mean, c.SD, c.Mean - hdiZ*c.SD, c.Mean + hdiZ*c.SD})
}

// Filter returns the rows whose name matches re.
func (t *Table) Filter(re *regexp.Regexp) *Table {
	out := &Table{Columns: t.Columns}
	for i, name := range t.Index {
		if re.MatchString(name) {
			out.Index = append(out.Index, name)
			out.Data = append(out.Data, t.Data[i])
		}
	}
	return out
}

// Round returns a copy with every value rounded to decimals places. NaN and
// infinities become zero so the table always encodes as JSON.
func (t *Table) Round(decimals int) *Table {
	p := math.Pow(10, float64(decimals))
	out := &Table{Columns: t.Columns, Index: t.Index, Data: make([][]float64, len(t.Data))}
	for i, row := range t.Data {
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			r[j] = math.Round(v*p) / p
		}
		out.Data[i] = r
	}
	return out
}

// Row returns the values of the named row.
func (t *Table) Row(name string) ([]float64, bool) {
	for i, n := range t.Index {
		if n == name {
			return t.Data[i], true
		}
	}
	return nil, false
}

// MarshalSplit encodes t in split orientation.
func (t *Table) MarshalSplit() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}
	return string(b), nil
}

// ParseSplit decodes a table produced by MarshalSplit.
func ParseSplit(s string) (*Table, error) {
	var t Table
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("decoding summary: %w", err)
	}
	return &t, nil
}

// ClientSummary is the filtered, rounded, split-encoded summary of m.
func ClientSummary(m *Model) (string, error) {
	return Summarize(m).Filter(SummaryFilter).Round(SummaryPrecision).MarshalSplit()
}
