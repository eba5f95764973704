package models

// Defaults applied to fit requests that omit optional fields.
const (
	DefaultDateColumn        = "date"
	DefaultAdstockMaxLag     = 8
	DefaultYearlySeasonality = 2
	DefaultYColumn           = "y"
	FallbackYColumn          = "sales"
)

// Inline table encodings accepted in the df field.
const (
	DataFormatSplit = "split"
	DataFormatCSV   = "csv"
)

// FileRef points at a dataset uploaded elsewhere and reachable over HTTP.
type FileRef struct {
	Name         string `json:"name,omitempty"`
	ID           string `json:"id,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	DownloadLink string `json:"download_link"`
}

// FitRequest is the submission body for POST /run_mmm_async. Either DF or a
// file reference (FileRefs[0] or DownloadLink) supplies the dataset.
type FitRequest struct {
	DF                string    `json:"df,omitempty"`
	DFFormat          string    `json:"df_format,omitempty"`
	FileRefs          []FileRef `json:"openaiFileIdRefs,omitempty"`
	DownloadLink      string    `json:"download_link,omitempty"`
	DateColumn        string    `json:"date_column,omitempty"`
	ChannelColumns    []string  `json:"channel_columns"`
	ControlColumns    []string  `json:"control_columns,omitempty"`
	AdstockMaxLag     *int      `json:"adstock_max_lag,omitempty"`
	YearlySeasonality *int      `json:"yearly_seasonality,omitempty"`
	YColumn           string    `json:"y_column,omitempty"`
}

// FileLink returns the first usable file reference, or "" when the request
// carries an inline table only.
func (r *FitRequest) FileLink() string {
	if len(r.FileRefs) > 0 && r.FileRefs[0].DownloadLink != "" {
		return r.FileRefs[0].DownloadLink
	}
	return r.DownloadLink
}

// ApplyDefaults fills unset optional fields. YColumn is resolved later
// against the dataset columns.
func (r *FitRequest) ApplyDefaults() {
	if r.DateColumn == "" {
		r.DateColumn = DefaultDateColumn
	}
	if r.DFFormat == "" {
		r.DFFormat = DataFormatSplit
	}
	if r.AdstockMaxLag == nil {
		v := DefaultAdstockMaxLag
		r.AdstockMaxLag = &v
	}
	if r.YearlySeasonality == nil {
		v := DefaultYearlySeasonality
		r.YearlySeasonality = &v
	}
}
