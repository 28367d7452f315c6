// Package stability measures whether repeated independent generations from
// identical metrics produce structurally and factually identical reports.
// It only measures and reports; it never retries or fixes a run.
package stability

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"incident-analyzer/internal/interfaces"
	"incident-analyzer/internal/validator"
	"incident-analyzer/pkg/models"
)

// Options controls one evaluation.
type Options struct {
	Runs        int
	Concurrency int
	// RunTimeout bounds each generation call independently; a timed-out
	// call is a failed run, not a failed evaluation.
	RunTimeout time.Duration
	// Budget bounds the whole evaluation wall-clock; once exhausted no new
	// runs are launched and the report covers the completed sample.
	Budget             time.Duration
	StructureThreshold float64
	FactThreshold      float64
}

// Evaluator drives N generation attempts over the same metrics document,
// validates each, and diffs the outputs against a baseline.
type Evaluator struct {
	generator interfaces.Generator
	validator interfaces.Validator
	opts      Options
}

// NewEvaluator creates an evaluator around the generation collaborator and
// the grounding validator.
func NewEvaluator(gen interfaces.Generator, val interfaces.Validator, opts Options) *Evaluator {
	return &Evaluator{generator: gen, validator: val, opts: opts}
}

// runResult is the raw per-run record before comparison.
type runResult struct {
	report    string
	err       error
	duration  time.Duration
	completed bool
}

// Evaluate runs the generate+validate cycle opts.Runs times and produces
// the stability report. Generation calls are independent and issued
// concurrently up to the configured limit.
func (e *Evaluator) Evaluate(ctx context.Context, metrics *models.Metrics) (*models.StabilityReport, error) {
	if e.opts.Runs <= 0 {
		return nil, fmt.Errorf("stability runs must be positive, got %d", e.opts.Runs)
	}
	concurrency := e.opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	if e.opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Budget)
		defer cancel()
	}

	results := make([]runResult, e.opts.Runs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < e.opts.Runs; i++ {
		if gctx.Err() != nil {
			// Budget exhausted: stop launching, keep what completed.
			results[i] = runResult{err: gctx.Err()}
			continue
		}
		i := i
		g.Go(func() error {
			runCtx := gctx
			if e.opts.RunTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(gctx, e.opts.RunTimeout)
				defer cancel()
			}
			started := time.Now()
			report, err := e.generator.Generate(runCtx, metrics)
			results[i] = runResult{
				report:    report,
				err:       err,
				duration:  time.Since(started),
				completed: err == nil,
			}
			// A failed run is data, not a reason to cancel siblings.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stability evaluation failed: %w", err)
	}

	return e.compare(metrics, results), nil
}

// compare validates every completed run and diffs it against the baseline
// (the first completed run) on the three invariant categories. A run whose
// validation verdict is invalid fails all categories regardless of the
// comparison outcome.
func (e *Evaluator) compare(metrics *models.Metrics, results []runResult) *models.StabilityReport {
	report := &models.StabilityReport{
		Runs:     len(results),
		Outcomes: make([]models.RunOutcome, 0, len(results)),
	}

	var baselineHeadings []string
	var baselineFacts []string
	haveBaseline := false

	structurePasses, factPasses, validityPasses := 0, 0, 0
	durationsMs := make([]float64, 0, len(results))

	for i, r := range results {
		outcome := models.RunOutcome{
			Run:        i + 1,
			Completed:  r.completed,
			DurationMs: r.duration.Milliseconds(),
		}

		if !r.completed {
			if r.err != nil {
				outcome.Errors = []string{r.err.Error()}
			}
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		report.Completed++
		durationsMs = append(durationsMs, float64(r.duration.Milliseconds()))

		verdict := e.validator.Validate(r.report, metrics)
		outcome.Valid = verdict.IsValid
		outcome.Errors = append(outcome.Errors, verdict.StructuralErrors...)
		outcome.Errors = append(outcome.Errors, verdict.GroundingErrors...)

		headings := validator.Headings(r.report)
		facts := validator.FactTokens(r.report)
		if !haveBaseline {
			baselineHeadings, baselineFacts = headings, facts
			haveBaseline = true
		}

		if verdict.IsValid {
			validityPasses++
			outcome.StructureOK = equalSlices(headings, baselineHeadings)
			outcome.FactsOK = equalSlices(facts, baselineFacts)
		}
		if outcome.StructureOK {
			structurePasses++
		}
		if outcome.FactsOK {
			factPasses++
		}

		report.Outcomes = append(report.Outcomes, outcome)
	}

	total := float64(len(results))
	report.StructurePassRate = float64(structurePasses) / total
	report.FactPassRate = float64(factPasses) / total
	report.ValidityPassRate = float64(validityPasses) / total
	report.Passed = report.Completed > 0 &&
		report.StructurePassRate >= e.opts.StructureThreshold &&
		report.FactPassRate >= e.opts.FactThreshold

	if len(durationsMs) > 0 {
		// Quantile errors only occur on empty input, which is guarded.
		mean, _ := stats.Mean(durationsMs)
		median, _ := stats.Median(durationsMs)
		p95, _ := stats.Percentile(durationsMs, 95)
		report.Latency = models.LatencySummary{MeanMs: mean, MedianMs: median, P95Ms: p95}
	}

	return report
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
