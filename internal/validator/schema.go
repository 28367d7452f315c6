package validator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReportSchema is the static report contract: the required markdown
// section headings and their order. It is consumed read-only.
type ReportSchema struct {
	Version  string   `yaml:"version"`
	Sections []string `yaml:"sections"`
}

// LoadSchema loads the report schema document from a YAML file. A missing
// or malformed schema is a configuration error and terminal.
func LoadSchema(path string) (*ReportSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report schema: %w", err)
	}

	var schema ReportSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse report schema: %w", err)
	}

	if err := schema.validate(); err != nil {
		return nil, fmt.Errorf("invalid report schema: %w", err)
	}
	return &schema, nil
}

func (s *ReportSchema) validate() error {
	if len(s.Sections) == 0 {
		return fmt.Errorf("sections cannot be empty")
	}
	seen := make(map[string]struct{}, len(s.Sections))
	for _, title := range s.Sections {
		if title == "" {
			return fmt.Errorf("section titles cannot be blank")
		}
		if _, dup := seen[title]; dup {
			return fmt.Errorf("duplicate section title %q", title)
		}
		seen[title] = struct{}{}
	}
	return nil
}
