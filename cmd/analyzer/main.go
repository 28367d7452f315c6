package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"incident-analyzer/internal/config"
	"incident-analyzer/internal/generator"
	"incident-analyzer/internal/interfaces"
	"incident-analyzer/internal/loggen"
	"incident-analyzer/internal/pipeline"
	"incident-analyzer/internal/reporter"
	"incident-analyzer/internal/stability"
	"incident-analyzer/internal/validator"
)

var (
	configPath string
	offline    bool
)

var rootCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "Access-log incident analyzer with grounded report validation",
	Long: `Ingests web-server access logs, computes deterministic incident metrics,
drives an external report generator over them, and mechanically verifies
that every factual claim in the generated report traces back to the
computed metrics.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Optional .env for the generator API key; absence is fine.
		_ = godotenv.Load()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ingest, metrics, generate, validate",
	RunE:  runPipeline,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an existing report against an existing metrics artifact",
	RunE:  runValidate,
}

var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "Measure multi-run report stability over an existing metrics artifact",
	RunE:  runStability,
}

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Inject a synthetic incident into an access log",
	RunE:  runInject,
}

var (
	inputOverride string
	reportPath    string
	metricsPath   string
	runsOverride  int

	injectIn        string
	injectOut       string
	injectStart     string
	injectMinutes   int
	injectErrorRate float64
	injectEndpoints string
	injectRewrite   bool
	injectSeed      int64
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the deterministic template generator instead of the external service")

	runCmd.Flags().StringVarP(&inputOverride, "input", "i", "", "Access-log file to analyze (overrides input.log_path)")

	validateCmd.Flags().StringVar(&reportPath, "report", "./artifacts/draft_report.md", "Report file to validate")
	validateCmd.Flags().StringVar(&metricsPath, "metrics", "./artifacts/metrics.json", "Metrics artifact to validate against")

	stabilityCmd.Flags().StringVar(&metricsPath, "metrics", "./artifacts/metrics.json", "Metrics artifact to evaluate against")
	stabilityCmd.Flags().IntVarP(&runsOverride, "runs", "n", 0, "Number of generation runs (overrides stability.runs)")

	injectCmd.Flags().StringVar(&injectIn, "in", "", "Input access-log file")
	injectCmd.Flags().StringVar(&injectOut, "out", "", "Output access-log file")
	injectCmd.Flags().StringVar(&injectStart, "start", "", "Incident window start (RFC 3339)")
	injectCmd.Flags().IntVar(&injectMinutes, "minutes", 10, "Incident window length in minutes")
	injectCmd.Flags().Float64Var(&injectErrorRate, "error-rate", 0.4, "Fraction of in-window requests flipped to 500")
	injectCmd.Flags().StringVar(&injectEndpoints, "endpoints", "", "Comma-separated endpoints to concentrate traffic on")
	injectCmd.Flags().BoolVar(&injectRewrite, "rewrite-path", false, "Rewrite in-window request paths onto --endpoints")
	injectCmd.Flags().Int64Var(&injectSeed, "seed", 42, "Random seed for deterministic rewrites")
	_ = injectCmd.MarkFlagRequired("in")
	_ = injectCmd.MarkFlagRequired("out")
	_ = injectCmd.MarkFlagRequired("start")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(stabilityCmd)
	rootCmd.AddCommand(injectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to defaults when the
// default path does not exist and no explicit path was given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if !cmd.Flags().Changed("config") && !cmd.InheritedFlags().Changed("config") {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			cfg := config.Default()
			cfg.Generator.Offline = cfg.Generator.Offline || offline
			return cfg, nil
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Generator.Offline = cfg.Generator.Offline || offline
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if inputOverride != "" {
		cfg.Input.Source = "file"
		cfg.Input.LogPath = inputOverride
	}

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return err
	}
	result, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}
	if !result.Validation.IsValid {
		// Non-zero exit on any structural or grounding failure; the
		// artifacts carry the details.
		cmd.SilenceUsage = true
		return fmt.Errorf("report validation failed")
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	schema, err := validator.LoadSchema(cfg.Report.SchemaPath)
	if err != nil {
		return err
	}
	metrics, err := reporter.ReadMetrics(metricsPath)
	if err != nil {
		return err
	}
	reportText, err := os.ReadFile(reportPath)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	verdict := validator.NewGroundingValidator(schema).Validate(string(reportText), metrics)
	if _, err := reporter.NewArtifactWriter(cfg.Output.ArtifactDir).WriteValidation(verdict); err != nil {
		return err
	}

	if verdict.IsValid {
		fmt.Println("✅ Report validation passed (structure + grounding)")
		return nil
	}
	for _, e := range verdict.StructuralErrors {
		fmt.Printf("❌ structure: %s\n", e)
	}
	for _, e := range verdict.GroundingErrors {
		fmt.Printf("❌ grounding: %s\n", e)
	}
	cmd.SilenceUsage = true
	return fmt.Errorf("report validation failed")
}

func runStability(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runsOverride > 0 {
		cfg.Stability.Runs = runsOverride
	}

	schema, err := validator.LoadSchema(cfg.Report.SchemaPath)
	if err != nil {
		return err
	}
	metrics, err := reporter.ReadMetrics(metricsPath)
	if err != nil {
		return err
	}

	var gen interfaces.Generator
	if cfg.Generator.Offline {
		gen = generator.NewTemplateGenerator(schema)
	} else {
		rules, err := generator.LoadRules(cfg.Report.RulesPath)
		if err != nil {
			return err
		}
		gen = generator.NewOpenAIGenerator(cfg.Generator, schema, rules)
	}

	evaluator := stability.NewEvaluator(gen, validator.NewGroundingValidator(schema), stability.Options{
		Runs:               cfg.Stability.Runs,
		Concurrency:        cfg.Stability.Concurrency,
		RunTimeout:         cfg.Stability.RunTimeout,
		Budget:             cfg.Stability.Budget,
		StructureThreshold: cfg.Stability.StructureThreshold,
		FactThreshold:      cfg.Stability.FactThreshold,
	})

	report, err := evaluator.Evaluate(cmd.Context(), metrics)
	if err != nil {
		return err
	}
	if _, err := reporter.NewArtifactWriter(cfg.Output.ArtifactDir).WriteStability(report); err != nil {
		return err
	}

	fmt.Println("=== Stability Summary ===")
	fmt.Printf("runs:                %d (%d completed)\n", report.Runs, report.Completed)
	fmt.Printf("structure_pass_rate: %.2f\n", report.StructurePassRate)
	fmt.Printf("fact_pass_rate:      %.2f\n", report.FactPassRate)
	fmt.Printf("validity_pass_rate:  %.2f\n", report.ValidityPassRate)
	if !report.Passed {
		cmd.SilenceUsage = true
		return fmt.Errorf("stability thresholds not met")
	}
	return nil
}

func runInject(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.RFC3339, injectStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}

	var endpoints []string
	for _, e := range strings.Split(injectEndpoints, ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}

	injector, err := loggen.NewInjector(loggen.InjectConfig{
		Start:       start,
		Duration:    time.Duration(injectMinutes) * time.Minute,
		ErrorRate:   injectErrorRate,
		Endpoints:   endpoints,
		RewritePath: injectRewrite,
		Seed:        injectSeed,
	})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(injectIn)
	if err != nil {
		return fmt.Errorf("failed to read input log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	rewritten := injector.Rewrite(lines)

	out := strings.Join(rewritten, "\n") + "\n"
	if err := os.WriteFile(injectOut, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write output log: %w", err)
	}
	fmt.Printf("✅ Wrote %d lines to %s\n", len(rewritten), injectOut)
	return nil
}
