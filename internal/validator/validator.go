package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"incident-analyzer/pkg/models"
)

var (
	// headingLineRegex matches markdown section headings; numbering like
	// "## 1. Impact" is tolerated and stripped before comparison.
	headingLineRegex = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)
	numberingPrefix  = regexp.MustCompile(`^\d+\s*[\.\)]\s*`)

	// Token extraction is deliberately conservative: it only flags tokens
	// it can confidently classify. Timestamps and paths are removed from
	// the text before the numeric scan so their digits are not re-counted.
	timestampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})`)
	pathRegex      = regexp.MustCompile(`/[A-Za-z_][A-Za-z0-9_\-./]*`)
	numberRegex    = regexp.MustCompile("(^|[\\s\\(\\[`:=,])([0-9]+(?:\\.[0-9]+)?%?)")
)

// GroundingValidator treats free-text report output as untrusted input and
// mechanically verifies it against the metrics document: structural
// conformance to the schema, and traceability of every extracted fact.
// It trades recall for precision: a subtle paraphrase may slip through,
// but nothing it flags is a false positive.
type GroundingValidator struct {
	schema *ReportSchema
}

// NewGroundingValidator creates a validator bound to a report schema.
func NewGroundingValidator(schema *ReportSchema) *GroundingValidator {
	return &GroundingValidator{schema: schema}
}

// Validate checks a report against the metrics document. The verdict is a
// value, never an error: a fabricated fact is a grounding error inside the
// result, not a crash.
func (v *GroundingValidator) Validate(reportText string, metrics *models.Metrics) models.ValidationResult {
	structural := v.checkStructure(reportText)
	grounding := v.checkGrounding(reportText, metrics)

	return models.ValidationResult{
		IsValid:          len(structural) == 0 && len(grounding) == 0,
		StructuralErrors: structural,
		GroundingErrors:  grounding,
	}
}

// checkStructure verifies the required section headings: all present,
// none duplicated, none extra, and in schema order.
func (v *GroundingValidator) checkStructure(reportText string) []string {
	errs := []string{}
	titles := Headings(reportText)

	counts := make(map[string]int, len(titles))
	for _, title := range titles {
		counts[title]++
	}

	required := make(map[string]struct{}, len(v.schema.Sections))
	for _, title := range v.schema.Sections {
		required[title] = struct{}{}
		switch counts[title] {
		case 0:
			errs = append(errs, fmt.Sprintf("missing required heading: ## %s", title))
		case 1:
		default:
			errs = append(errs, fmt.Sprintf("heading appears more than once: ## %s", title))
		}
	}

	for _, title := range titles {
		if _, ok := required[title]; !ok {
			errs = append(errs, fmt.Sprintf("unexpected heading: ## %s", title))
		}
	}

	// With missing, duplicate, or extra headings the ordering check is
	// meaningless; report the primary problems only.
	if len(errs) > 0 {
		return errs
	}

	for i, title := range titles {
		if title != v.schema.Sections[i] {
			errs = append(errs, "headings are out of order")
			break
		}
	}
	return errs
}

// checkGrounding verifies that every extracted numeric, timestamp, and
// path token traces back to the metrics document exactly.
func (v *GroundingValidator) checkGrounding(reportText string, metrics *models.Metrics) []string {
	errs := []string{}
	text := reportText

	allowedTimes := make(map[string]struct{}, 2)
	hotspotPaths := make(map[string]struct{}, len(metrics.HotspotEndpoints))
	if metrics.PeakWindow != nil {
		allowedTimes[metrics.PeakWindow.Start] = struct{}{}
		allowedTimes[metrics.PeakWindow.End] = struct{}{}
	}
	for _, h := range metrics.HotspotEndpoints {
		hotspotPaths[h.Path] = struct{}{}
	}

	for _, ts := range timestampRegex.FindAllString(text, -1) {
		if metrics.PeakWindow == nil {
			errs = append(errs, fmt.Sprintf("report asserts timestamp %s but no incident window was detected", ts))
			continue
		}
		if _, ok := allowedTimes[ts]; !ok {
			errs = append(errs, fmt.Sprintf("timestamp %s does not match the incident window", ts))
		}
	}
	text = timestampRegex.ReplaceAllString(text, " ")

	for _, raw := range pathRegex.FindAllString(text, -1) {
		path := strings.TrimRight(raw, ".,;:")
		if path == "" {
			continue
		}
		if metrics.PeakWindow == nil {
			errs = append(errs, fmt.Sprintf("report mentions endpoint %s but no incident window was detected", path))
			continue
		}
		if _, ok := hotspotPaths[path]; !ok {
			errs = append(errs, fmt.Sprintf("endpoint %s is not in the hotspot list", path))
		}
	}
	text = pathRegex.ReplaceAllString(text, " ")

	allowed := allowedNumbers(metrics)
	for _, match := range numberRegex.FindAllStringSubmatch(text, -1) {
		token := match[2]
		if _, ok := allowed[token]; !ok {
			errs = append(errs, fmt.Sprintf("value %s is not traceable to metrics", token))
		}
	}

	return errs
}

// allowedNumbers renders every numeric value in the metrics document using
// the same fixed rounding rule applied when the document was written.
// Rates are admitted in canonical decimal, full six-decimal, and percent
// forms at zero, one, and two decimals.
func allowedNumbers(metrics *models.Metrics) map[string]struct{} {
	allowed := make(map[string]struct{})
	addInt := func(n int) { allowed[strconv.Itoa(n)] = struct{}{} }
	addRate := func(r models.Rate) {
		allowed[r.Canonical()] = struct{}{}
		allowed[r.Fixed()] = struct{}{}
		for _, decimals := range []int{0, 1, 2} {
			allowed[r.Percent(decimals)] = struct{}{}
		}
	}

	addInt(metrics.TotalRequests)
	addInt(metrics.TotalErrors)
	addInt(metrics.RejectedLines)
	addInt(metrics.UniqueIPs)
	addInt(metrics.UniquePaths)
	addInt(metrics.WindowMinutes)
	addRate(metrics.OverallErrorRate)

	if metrics.PeakWindow != nil {
		addInt(metrics.PeakWindow.RequestCount)
		addInt(metrics.PeakWindow.ErrorCount)
		addRate(metrics.PeakWindow.ErrorRate)
	}
	for _, h := range metrics.HotspotEndpoints {
		addInt(h.ErrorCount)
		addRate(h.ErrorRate)
	}
	return allowed
}

// Headings returns the report's section titles in order of appearance,
// with any numbering prefix stripped.
func Headings(reportText string) []string {
	matches := headingLineRegex.FindAllStringSubmatch(reportText, -1)
	titles := make([]string, 0, len(matches))
	for _, m := range matches {
		titles = append(titles, numberingPrefix.ReplaceAllString(m[1], ""))
	}
	return titles
}

// FactTokens extracts the sorted multiset of grounded fact tokens
// (timestamps, paths, numbers) from report text. The stability evaluator
// compares these across runs to detect factual drift.
func FactTokens(reportText string) []string {
	tokens := []string{}
	text := reportText

	tokens = append(tokens, timestampRegex.FindAllString(text, -1)...)
	text = timestampRegex.ReplaceAllString(text, " ")

	for _, raw := range pathRegex.FindAllString(text, -1) {
		if path := strings.TrimRight(raw, ".,;:"); path != "" {
			tokens = append(tokens, path)
		}
	}
	text = pathRegex.ReplaceAllString(text, " ")

	for _, match := range numberRegex.FindAllStringSubmatch(text, -1) {
		tokens = append(tokens, match[2])
	}

	sort.Strings(tokens)
	return tokens
}
