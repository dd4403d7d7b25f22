package extraction

import "time"

// Supported declared media types.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeText = "text/plain"
)

// DefaultMinTextChars is the default quality-gate threshold. Structural
// PDF extraction of scanned documents routinely yields a handful of stray
// characters; anything at or below this count is treated as no text.
const DefaultMinTextChars = 10

// Attempt records one extraction strategy run, for diagnostics only.
type Attempt struct {
	Strategy string        `json:"strategy"`
	OK       bool          `json:"ok"`
	Chars    int           `json:"chars"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of running the pipeline over one document.
// Empty Text means no strategy passed the quality gate; LikelyScanned is
// set for PDFs whose text layer is absent, signaling the OCR path.
type Result struct {
	Text          string    `json:"text"`
	StrategyUsed  string    `json:"strategy_used,omitempty"`
	LikelyScanned bool      `json:"likely_scanned"`
	Attempts      []Attempt `json:"attempts"`
}

// Sufficient reports whether extraction produced usable text.
func (r *Result) Sufficient() bool {
	return r.Text != ""
}
