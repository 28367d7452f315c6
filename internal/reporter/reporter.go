package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"incident-analyzer/pkg/models"
)

// Artifact file names. One set per run; downstream consumers read the
// metrics artifact as the sole factual source and never the raw log.
const (
	MetricsFile    = "metrics.json"
	ReportFile     = "draft_report.md"
	ValidationFile = "validation.json"
	StabilityFile  = "stability.json"
)

// ArtifactWriter persists run artifacts as flat files under one directory.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter creates a writer rooted at dir.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir}
}

// WriteMetrics writes the canonical metrics document and returns its path.
func (w *ArtifactWriter) WriteMetrics(metrics *models.Metrics) (string, error) {
	rendered, err := metrics.Render()
	if err != nil {
		return "", fmt.Errorf("failed to render metrics: %w", err)
	}
	return w.write(MetricsFile, rendered)
}

// WriteReport writes the generated report text and returns its path.
func (w *ArtifactWriter) WriteReport(reportText string) (string, error) {
	return w.write(ReportFile, []byte(reportText))
}

// WriteValidation writes the validation verdict and returns its path.
func (w *ArtifactWriter) WriteValidation(result models.ValidationResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal validation result: %w", err)
	}
	return w.write(ValidationFile, data)
}

// WriteStability writes the stability report and returns its path.
func (w *ArtifactWriter) WriteStability(report *models.StabilityReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal stability report: %w", err)
	}
	return w.write(StabilityFile, data)
}

func (w *ArtifactWriter) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// ReadMetrics loads a metrics artifact and checks its document version,
// so a stale or foreign document is refused rather than half-understood.
func ReadMetrics(path string) (*models.Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics artifact: %w", err)
	}
	var metrics models.Metrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("failed to parse metrics artifact: %w", err)
	}
	if metrics.Version != models.MetricsVersion {
		return nil, fmt.Errorf("unsupported metrics document version %q (want %q)",
			metrics.Version, models.MetricsVersion)
	}
	return &metrics, nil
}
