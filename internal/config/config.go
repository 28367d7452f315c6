package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure. It is threaded
// explicitly through every component constructor; there is no process-wide
// implicit default.
type Config struct {
	Input      InputConfig      `yaml:"input"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Stability  StabilityConfig  `yaml:"stability"`
	Report     ReportConfig     `yaml:"report"`
	Output     OutputConfig     `yaml:"output"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
}

// InputConfig selects where raw access-log lines come from.
type InputConfig struct {
	// Source is "file" or "opensearch".
	Source  string `yaml:"source"`
	LogPath string `yaml:"log_path"`
}

// AnalysisConfig contains the metrics engine parameters.
type AnalysisConfig struct {
	WindowSize  time.Duration `yaml:"window_size"`
	HotspotTopK int           `yaml:"hotspot_top_k"`
}

// GeneratorConfig contains the external generation collaborator settings.
type GeneratorConfig struct {
	URL         string        `yaml:"url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	// Offline swaps the HTTP client for the deterministic template
	// generator; no external call is made.
	Offline bool `yaml:"offline"`
}

// StabilityConfig contains the multi-run evaluation settings.
type StabilityConfig struct {
	Runs               int           `yaml:"runs"`
	Concurrency        int           `yaml:"concurrency"`
	RunTimeout         time.Duration `yaml:"run_timeout"`
	Budget             time.Duration `yaml:"budget"`
	StructureThreshold float64       `yaml:"structure_threshold"`
	FactThreshold      float64       `yaml:"fact_threshold"`
}

// ReportConfig points at the two static report contract documents.
type ReportConfig struct {
	SchemaPath string `yaml:"schema_path"`
	RulesPath  string `yaml:"rules_path"`
}

// OutputConfig contains artifact output settings.
type OutputConfig struct {
	ArtifactDir string `yaml:"artifact_dir"`
}

// OpenSearchConfig contains the optional remote ingest settings.
type OpenSearchConfig struct {
	URL          string        `yaml:"url"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Indices      []string      `yaml:"indices"`
	MessageField string        `yaml:"message_field"`
	TimeRange    string        `yaml:"time_range"`
	MaxResults   int           `yaml:"max_results"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Load loads configuration from a YAML file with environment variable
// substitution. Configuration problems are terminal: no partial
// computation is attempted on an invalid config.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied, for callers
// that run without a config file.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}

// applyDefaults applies default values for optional configuration parameters.
func applyDefaults(config *Config) {
	if config.Input.Source == "" {
		config.Input.Source = "file"
	}
	if config.Analysis.WindowSize == 0 {
		config.Analysis.WindowSize = 5 * time.Minute
	}
	if config.Analysis.HotspotTopK == 0 {
		config.Analysis.HotspotTopK = 5
	}
	if config.Generator.URL == "" {
		config.Generator.URL = "https://api.openai.com/v1/chat/completions"
	}
	if config.Generator.Model == "" {
		config.Generator.Model = "gpt-4o-mini"
	}
	if config.Generator.Temperature == 0 {
		config.Generator.Temperature = 0.2
	}
	if config.Generator.MaxTokens == 0 {
		config.Generator.MaxTokens = 900
	}
	if config.Generator.Timeout == 0 {
		config.Generator.Timeout = 60 * time.Second
	}
	if config.Stability.Runs == 0 {
		config.Stability.Runs = 5
	}
	if config.Stability.Concurrency == 0 {
		config.Stability.Concurrency = 2
	}
	if config.Stability.RunTimeout == 0 {
		config.Stability.RunTimeout = 90 * time.Second
	}
	if config.Stability.Budget == 0 {
		config.Stability.Budget = 10 * time.Minute
	}
	if config.Stability.StructureThreshold == 0 {
		config.Stability.StructureThreshold = 1.0
	}
	if config.Stability.FactThreshold == 0 {
		config.Stability.FactThreshold = 0.8
	}
	if config.Report.SchemaPath == "" {
		config.Report.SchemaPath = "./docs/report/report_schema.yaml"
	}
	if config.Report.RulesPath == "" {
		config.Report.RulesPath = "./docs/report/grounding_rules.md"
	}
	if config.Output.ArtifactDir == "" {
		config.Output.ArtifactDir = "./artifacts"
	}
	if config.OpenSearch.MessageField == "" {
		config.OpenSearch.MessageField = "message"
	}
	if config.OpenSearch.TimeRange == "" {
		config.OpenSearch.TimeRange = "24h"
	}
	if config.OpenSearch.MaxResults == 0 {
		config.OpenSearch.MaxResults = 10000
	}
	if config.OpenSearch.Timeout == 0 {
		config.OpenSearch.Timeout = 30 * time.Second
	}
}

// validate checks if the configuration is valid.
func validate(config *Config) error {
	switch config.Input.Source {
	case "file", "opensearch":
	default:
		return fmt.Errorf("input.source must be \"file\" or \"opensearch\", got %q", config.Input.Source)
	}
	if config.Input.Source == "opensearch" {
		if config.OpenSearch.URL == "" {
			return fmt.Errorf("opensearch.url is required when input.source is \"opensearch\"")
		}
		if len(config.OpenSearch.Indices) == 0 {
			return fmt.Errorf("opensearch.indices cannot be empty when input.source is \"opensearch\"")
		}
	}
	if config.Analysis.WindowSize <= 0 {
		return fmt.Errorf("analysis.window_size must be positive")
	}
	if config.Analysis.HotspotTopK <= 0 {
		return fmt.Errorf("analysis.hotspot_top_k must be positive")
	}
	if config.Stability.Runs <= 0 {
		return fmt.Errorf("stability.runs must be positive")
	}
	if config.Stability.Concurrency <= 0 {
		return fmt.Errorf("stability.concurrency must be positive")
	}
	if config.Stability.StructureThreshold < 0 || config.Stability.StructureThreshold > 1 {
		return fmt.Errorf("stability.structure_threshold must be within [0, 1]")
	}
	if config.Stability.FactThreshold < 0 || config.Stability.FactThreshold > 1 {
		return fmt.Errorf("stability.fact_threshold must be within [0, 1]")
	}
	if config.Report.SchemaPath == "" {
		return fmt.Errorf("report.schema_path is required")
	}
	return nil
}
