// Package generator is the boundary to the external report-generation
// collaborator. The collaborator is opaque and non-deterministic; the only
// factual content it receives is the canonical metrics document, plus the
// two static contract documents (report schema, grounding rules).
package generator

import (
	"fmt"
	"os"
	"strings"

	"incident-analyzer/internal/validator"
	"incident-analyzer/pkg/models"
)

// LoadRules reads the grounding rules document. The core never parses it;
// it is handed to the collaborator verbatim as part of its instructions.
func LoadRules(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read grounding rules: %w", err)
	}
	return string(data), nil
}

// BuildPrompt assembles the (system, user) prompt pair. The prompt is
// fully deterministic given (schema, rules, metrics): the metrics document
// is embedded in its canonical rendering so the collaborator has one exact
// source of truth.
func BuildPrompt(schema *validator.ReportSchema, rules string, metrics *models.Metrics) (string, string, error) {
	rendered, err := metrics.Render()
	if err != nil {
		return "", "", fmt.Errorf("failed to render metrics: %w", err)
	}

	system := strings.Join([]string{
		"You are an incident report generator.",
		"You produce clear, professional incident reports for engineers.",
		"You MUST follow the provided report schema exactly.",
		"You MUST follow the provided grounding rules exactly.",
		"If a required detail is not present in the metrics JSON, you must say it is not available.",
		"Do not add extra sections. Do not reorder sections.",
	}, "\n")

	var sb strings.Builder
	sb.WriteString("## Required section headings (exact, in this order)\n")
	for _, title := range schema.Sections {
		sb.WriteString("## ")
		sb.WriteString(title)
		sb.WriteString("\n")
	}
	sb.WriteString("\n## Grounding Rules (must obey)\n")
	sb.WriteString(rules)
	sb.WriteString("\n\n## Metrics JSON (only source of factual truth)\n")
	sb.WriteString("```json\n")
	sb.Write(rendered)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Now generate the incident report in Markdown.\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Use the section headings exactly as written, each exactly once, with no numbering.\n")
	sb.WriteString("- Every number, endpoint, and timestamp MUST be copied verbatim from the metrics JSON.\n")
	sb.WriteString("- Copy window start and end timestamps exactly, including the timezone designator.\n")
	sb.WriteString("- Do NOT compute new rates or ratios; use the exact values provided.\n")
	sb.WriteString("- Mention only endpoints listed under hotspot_endpoints.\n")
	sb.WriteString("- If peak_window is absent, state that no incident was detected; do not assert any window timestamps.\n")
	sb.WriteString("- Keep language cautious (e.g., 'suggests', 'is consistent with').\n")

	return system, sb.String(), nil
}
