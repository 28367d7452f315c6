package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MetricsVersion tags the metrics document schema. Bump on any field change
// so downstream consumers can refuse documents they do not understand.
const MetricsVersion = "v1"

// RateDecimals is the fixed rounding applied when a rate is rendered into
// the metrics document or matched against report text. Rates are kept at
// full float64 precision until rendering.
const RateDecimals = 6

// Event is one normalized access-log request record. Events are immutable
// once produced by the normalizer; lines that fail parsing never become
// Events and are counted as rejected lines instead.
type Event struct {
	Timestamp time.Time `json:"timestamp"` // always UTC
	ClientIP  string    `json:"client_ip"`
	Method    string    `json:"method"`
	Path      string    `json:"path"` // query string stripped
	Status    int       `json:"status"`
	BytesSent int64     `json:"bytes_sent"`
}

// IsServerError reports whether the event is a 5xx response.
func (e Event) IsServerError() bool {
	return e.Status >= 500
}

// Rate is a ratio in [0, 1]. It marshals with the fixed rounding rule so
// the metrics artifact and the grounding checks agree byte-for-byte.
type Rate float64

// NewRate divides n by d, returning 0 when d is 0 (never NaN).
func NewRate(n, d int) Rate {
	if d == 0 {
		return 0
	}
	return Rate(float64(n) / float64(d))
}

// Canonical returns the canonical decimal rendering, e.g. "0.482456".
// Trailing zeros are trimmed so 0.5 renders as "0.5", not "0.500000".
func (r Rate) Canonical() string {
	s := strconv.FormatFloat(float64(r), 'f', RateDecimals, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// Fixed returns the rendering with all RateDecimals digits,
// e.g. "0.482456" or "0.500000".
func (r Rate) Fixed() string {
	return strconv.FormatFloat(float64(r), 'f', RateDecimals, 64)
}

// Percent returns the percent rendering at the given number of decimals,
// e.g. Percent(2) -> "48.25%".
func (r Rate) Percent(decimals int) string {
	return strconv.FormatFloat(float64(r)*100, 'f', decimals, 64) + "%"
}

// MarshalJSON renders the rate with the canonical rounding rule.
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.Canonical()), nil
}

// FormatTime renders a timestamp the canonical way: RFC 3339 in UTC,
// e.g. "2015-05-20T12:05:00Z".
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Window is a fixed-duration, half-open time bucket [Start, End) anchored
// at the earliest event timestamp. Windows with zero requests are valid
// index-space members but are never emitted.
type Window struct {
	Start        time.Time
	End          time.Time
	RequestCount int
	ErrorCount   int
	ErrorRate    Rate
}

// PeakWindow is the rendered form of the selected incident window inside
// the metrics document. Start and End carry the canonical timestamp
// strings so grounding checks can compare exactly.
type PeakWindow struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	RequestCount int    `json:"request_count"`
	ErrorCount   int    `json:"error_count"`
	ErrorRate    Rate   `json:"error_rate"`
}

// HotspotEndpoint is a request path ranked by error contribution within
// the peak window. ErrorRate is the endpoint's 5xx count divided by the
// requests to that endpoint inside the peak window.
type HotspotEndpoint struct {
	Path       string `json:"path"`
	ErrorCount int    `json:"error_count"`
	ErrorRate  Rate   `json:"error_rate"`
}

// Metrics is the canonical, versioned document and the only factual input
// permitted to flow into report generation. Every value is derivable purely
// from the event set; the document is immutable once produced.
type Metrics struct {
	Version          string            `json:"version"`
	WindowMinutes    int               `json:"window_minutes"`
	TotalRequests    int               `json:"total_requests"`
	TotalErrors      int               `json:"total_errors"`
	OverallErrorRate Rate              `json:"overall_error_rate"`
	RejectedLines    int               `json:"rejected_lines"`
	UniqueIPs        int               `json:"unique_ips"`
	UniquePaths      int               `json:"unique_paths"`
	PeakWindow       *PeakWindow       `json:"peak_window,omitempty"`
	HotspotEndpoints []HotspotEndpoint `json:"hotspot_endpoints"`
}

// Render produces the canonical JSON rendering of the document. Field
// order and rate rounding are fixed, so two computations over the same
// event set render byte-identically.
func (m *Metrics) Render() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ValidationResult is the verdict for a single report instance.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	StructuralErrors []string `json:"structural_errors"`
	GroundingErrors  []string `json:"grounding_errors"`
}

// RunOutcome records one generation attempt inside a stability evaluation.
type RunOutcome struct {
	Run         int      `json:"run"`
	Completed   bool     `json:"completed"`
	Valid       bool     `json:"valid"`
	StructureOK bool     `json:"structure_ok"`
	FactsOK     bool     `json:"facts_ok"`
	DurationMs  int64    `json:"duration_ms"`
	Errors      []string `json:"errors,omitempty"`
}

// LatencySummary describes how long the generation calls took.
type LatencySummary struct {
	MeanMs   float64 `json:"mean_ms"`
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// StabilityReport aggregates pass rates per invariant category across N
// generation runs over identical metrics. Read-only once complete.
type StabilityReport struct {
	Runs              int            `json:"runs"`
	Completed         int            `json:"completed"`
	StructurePassRate float64        `json:"structure_pass_rate"`
	FactPassRate      float64        `json:"fact_pass_rate"`
	ValidityPassRate  float64        `json:"validity_pass_rate"`
	Passed            bool           `json:"passed"`
	Latency           LatencySummary `json:"latency"`
	Outcomes          []RunOutcome   `json:"outcomes"`
}

// TimeRange bounds an ingest query.
type TimeRange struct {
	Start time.Time
	End   time.Time
}
