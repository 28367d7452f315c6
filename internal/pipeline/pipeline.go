package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"incident-analyzer/internal/aggregator"
	"incident-analyzer/internal/config"
	"incident-analyzer/internal/fetcher"
	"incident-analyzer/internal/generator"
	"incident-analyzer/internal/interfaces"
	"incident-analyzer/internal/normalizer"
	"incident-analyzer/internal/reporter"
	"incident-analyzer/internal/validator"
	"incident-analyzer/pkg/models"
)

// Pipeline orchestrates the full workflow: raw log lines → events →
// metrics document → generated report → validation verdict, writing each
// artifact along the way.
type Pipeline struct {
	cfg        *config.Config
	normalizer *normalizer.EventNormalizer
	aggregator *aggregator.IncidentAggregator
	validator  *validator.GroundingValidator
	generator  interfaces.Generator
	writer     *reporter.ArtifactWriter
}

// NewPipeline wires the pipeline from configuration. Loading the report
// contract documents happens here: a missing schema is a configuration
// error and terminal before any computation starts.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	schema, err := validator.LoadSchema(cfg.Report.SchemaPath)
	if err != nil {
		return nil, err
	}

	var gen interfaces.Generator
	if cfg.Generator.Offline {
		gen = generator.NewTemplateGenerator(schema)
	} else {
		rules, err := generator.LoadRules(cfg.Report.RulesPath)
		if err != nil {
			return nil, err
		}
		gen = generator.NewOpenAIGenerator(cfg.Generator, schema, rules)
	}

	return &Pipeline{
		cfg:        cfg,
		normalizer: normalizer.NewEventNormalizer(),
		aggregator: aggregator.NewIncidentAggregator(cfg.Analysis.WindowSize, cfg.Analysis.HotspotTopK),
		validator:  validator.NewGroundingValidator(schema),
		generator:  gen,
		writer:     reporter.NewArtifactWriter(cfg.Output.ArtifactDir),
	}, nil
}

// Result carries everything a single run produced.
type Result struct {
	Metrics    *models.Metrics
	ReportText string
	Validation models.ValidationResult
}

// Run executes the entire pipeline once.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	// Step 1: read raw lines.
	fmt.Println("📥 Step 1: reading raw access-log lines...")
	lines, err := p.readLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading input failed: %w", err)
	}
	fmt.Printf("✅ Read %d lines\n\n", len(lines))

	// Step 2: normalize.
	fmt.Println("🔄 Step 2: normalizing events...")
	events, rejected := p.normalizer.Normalize(lines)
	normStats := normalizer.GetNormalizationStats(len(events), rejected)
	fmt.Printf("✅ Normalized %d events (%d rejected, %.1f%% accepted)\n\n",
		len(events), rejected, normStats.AcceptRate*100)

	// Step 3: compute metrics.
	fmt.Println("📊 Step 3: computing incident metrics...")
	metrics, err := p.aggregator.Compute(events, rejected)
	if err != nil {
		return nil, fmt.Errorf("metrics computation failed: %w", err)
	}
	aggStats := aggregator.GetAggregationStats(metrics)
	fmt.Printf("✅ Metrics computed:\n")
	fmt.Printf("   - total requests: %d\n", aggStats.TotalRequests)
	fmt.Printf("   - server errors:  %d (rate %s)\n", aggStats.TotalErrors, aggStats.ErrorRate)
	if aggStats.HasIncident {
		fmt.Printf("   - peak window:    %s (rate %s)\n", aggStats.PeakStart, aggStats.PeakErrorRate)
		fmt.Printf("   - hotspots:       %d\n\n", aggStats.HotspotCount)
	} else {
		fmt.Printf("   - no incident window detected\n\n")
	}

	metricsPath, err := p.writer.WriteMetrics(metrics)
	if err != nil {
		return nil, fmt.Errorf("writing metrics artifact failed: %w", err)
	}
	fmt.Printf("💾 Metrics artifact: %s\n\n", metricsPath)

	// Step 4: generate the narrative report.
	fmt.Println("📄 Step 4: generating incident report...")
	reportText, err := p.generator.Generate(ctx, metrics)
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}
	reportPath, err := p.writer.WriteReport(reportText)
	if err != nil {
		return nil, fmt.Errorf("writing report artifact failed: %w", err)
	}
	fmt.Printf("✅ Report generated: %s\n\n", reportPath)

	// Step 5: validate the report against the metrics document.
	fmt.Println("🔍 Step 5: validating report grounding...")
	verdict := p.validator.Validate(reportText, metrics)
	if _, err := p.writer.WriteValidation(verdict); err != nil {
		return nil, fmt.Errorf("writing validation artifact failed: %w", err)
	}
	if verdict.IsValid {
		fmt.Println("✅ Report validation passed (structure + grounding)")
	} else {
		fmt.Printf("❌ Report validation failed: %d structural, %d grounding errors\n",
			len(verdict.StructuralErrors), len(verdict.GroundingErrors))
		for _, e := range verdict.StructuralErrors {
			fmt.Printf("   - %s\n", e)
		}
		for _, e := range verdict.GroundingErrors {
			fmt.Printf("   - %s\n", e)
		}
	}

	return &Result{
		Metrics:    metrics,
		ReportText: reportText,
		Validation: verdict,
	}, nil
}

// readLines pulls raw lines from the configured source.
func (p *Pipeline) readLines(ctx context.Context) ([]string, error) {
	switch p.cfg.Input.Source {
	case "opensearch":
		return p.fetchLines(ctx)
	default:
		return p.readFileLines()
	}
}

func (p *Pipeline) readFileLines() ([]string, error) {
	if p.cfg.Input.LogPath == "" {
		return nil, fmt.Errorf("input.log_path is required")
	}
	// NormalizeReader would also work here, but keeping raw lines lets
	// the pipeline report how many lines were read before normalization.
	data, err := os.ReadFile(p.cfg.Input.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return splitLines(string(data)), nil
}

func (p *Pipeline) fetchLines(ctx context.Context) ([]string, error) {
	f, err := fetcher.NewOpenSearchFetcher(&p.cfg.OpenSearch)
	if err != nil {
		return nil, err
	}

	timeRange, err := time.ParseDuration(p.cfg.OpenSearch.TimeRange)
	if err != nil {
		return nil, fmt.Errorf("invalid opensearch time range: %w", err)
	}
	end := time.Now().UTC()

	return f.Fetch(ctx, interfaces.FetchConfig{
		TimeRange:  models.TimeRange{Start: end.Add(-timeRange), End: end},
		Indices:    p.cfg.OpenSearch.Indices,
		MaxResults: p.cfg.OpenSearch.MaxResults,
		Timeout:    p.cfg.OpenSearch.Timeout,
	})
}

func splitLines(data string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
