package generator

import (
	"context"
	"fmt"
	"strings"

	"incident-analyzer/internal/validator"
	"incident-analyzer/pkg/models"
)

// TemplateGenerator is the deterministic stand-in for the external
// collaborator. Offline runs and the stability sanity path use it: every
// fact it emits is copied verbatim from the metrics document, so its
// output must always validate and always compare identical across runs.
type TemplateGenerator struct {
	schema *validator.ReportSchema
}

// NewTemplateGenerator creates a template generator for a report schema.
func NewTemplateGenerator(schema *validator.ReportSchema) *TemplateGenerator {
	return &TemplateGenerator{schema: schema}
}

// Generate renders a fixed-template report from the metrics document.
func (g *TemplateGenerator) Generate(_ context.Context, metrics *models.Metrics) (string, error) {
	var sb strings.Builder
	for _, title := range g.schema.Sections {
		sb.WriteString("## ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
		sb.WriteString(g.sectionBody(title, metrics))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()) + "\n", nil
}

const notAvailable = "Not available from metrics."

// sectionBody picks content by heading keyword so the template keeps
// working when the schema document changes.
func (g *TemplateGenerator) sectionBody(title string, m *models.Metrics) string {
	peak := m.PeakWindow
	switch {
	case containsFold(title, "summary"):
		if peak == nil {
			return fmt.Sprintf(
				"No incident window was detected. The service handled %d requests with %d server errors overall (error rate %s).",
				m.TotalRequests, m.TotalErrors, m.OverallErrorRate.Canonical())
		}
		return fmt.Sprintf(
			"Between %s and %s, the service handled %d requests and returned %d server errors, an error rate of %s (%s).",
			peak.Start, peak.End, peak.RequestCount, peak.ErrorCount,
			peak.ErrorRate.Canonical(), peak.ErrorRate.Percent(2))

	case containsFold(title, "window"):
		if peak == nil {
			return notAvailable
		}
		return fmt.Sprintf("The peak incident window ran from %s to %s, a span of %d minutes.",
			peak.Start, peak.End, m.WindowMinutes)

	case containsFold(title, "impact"):
		if peak == nil {
			return fmt.Sprintf("Overall, %d of %d requests failed with server errors (error rate %s).",
				m.TotalErrors, m.TotalRequests, m.OverallErrorRate.Canonical())
		}
		return fmt.Sprintf(
			"During the peak window, %d of %d requests failed with server errors (%s). Overall, %d of %d requests failed (error rate %s).",
			peak.ErrorCount, peak.RequestCount, peak.ErrorRate.Percent(2),
			m.TotalErrors, m.TotalRequests, m.OverallErrorRate.Canonical())

	case containsFold(title, "hotspot"):
		if peak == nil || len(m.HotspotEndpoints) == 0 {
			return notAvailable
		}
		lines := make([]string, 0, len(m.HotspotEndpoints))
		for _, h := range m.HotspotEndpoints {
			lines = append(lines, fmt.Sprintf("- %s: %d server errors (error rate %s)",
				h.Path, h.ErrorCount, h.ErrorRate.Canonical()))
		}
		return strings.Join(lines, "\n")

	case containsFold(title, "traffic"):
		return fmt.Sprintf(
			"The log covered %d distinct endpoints and %d distinct client addresses. %d lines were rejected during normalization.",
			m.UniquePaths, m.UniqueIPs, m.RejectedLines)

	case containsFold(title, "explanation"):
		if peak == nil {
			return notAvailable
		}
		return "The concentration of server errors within a single window suggests a localized fault rather than a gradual degradation."

	case containsFold(title, "check"):
		return "- Review server logs for the hotspot endpoints listed above.\n" +
			"- Correlate the incident window with deployments and configuration changes."

	default:
		return notAvailable
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
