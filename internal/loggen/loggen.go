// Package loggen injects a controlled incident into an existing access log
// so the pipeline can be exercised without production data. Within a
// bounded time window it concentrates requests onto chosen endpoints and
// flips a seeded fraction of statuses to 500. The rewrite is deterministic
// under a fixed seed and preserves the access-log line format.
package loggen

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

const timeLayout = "02/Jan/2006:15:04:05 -0700"

// InjectConfig bounds the synthetic incident.
type InjectConfig struct {
	Start     time.Time
	Duration  time.Duration
	ErrorRate float64
	Endpoints []string
	// RewritePath concentrates in-window requests onto Endpoints.
	RewritePath bool
	Seed        int64
}

// Injector rewrites log lines per an InjectConfig.
type Injector struct {
	cfg          InjectConfig
	rng          *rand.Rand
	timeRegex    *regexp.Regexp
	requestRegex *regexp.Regexp
	statusRegex  *regexp.Regexp
}

// NewInjector validates the config and creates an injector.
func NewInjector(cfg InjectConfig) (*Injector, error) {
	if cfg.Start.IsZero() {
		return nil, fmt.Errorf("inject start time is required")
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("inject duration must be positive")
	}
	if cfg.ErrorRate < 0 || cfg.ErrorRate > 1 {
		return nil, fmt.Errorf("inject error rate must be within [0, 1]")
	}
	if cfg.RewritePath && len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("inject endpoints are required when path rewriting is enabled")
	}

	return &Injector{
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		timeRegex:    regexp.MustCompile(`\[([^\]]+)\]`),
		requestRegex: regexp.MustCompile(`"([A-Z]+)\s+(\S+)(\s+HTTP/[^"]*)?"`),
		statusRegex:  regexp.MustCompile(`^(\S+\s+\S+\s+\S+\s+\[[^\]]+\]\s+"[^"]*"\s+)(\d{3})(\s.*)$`),
	}, nil
}

// Rewrite applies the incident to every line whose timestamp falls inside
// [Start, Start+Duration). Lines outside the window, and lines it cannot
// parse, pass through unchanged.
func (i *Injector) Rewrite(lines []string) []string {
	end := i.cfg.Start.Add(i.cfg.Duration)
	out := make([]string, len(lines))

	for n, line := range lines {
		ts, ok := i.extractTimestamp(line)
		if !ok || ts.Before(i.cfg.Start) || !ts.Before(end) {
			out[n] = line
			continue
		}

		if i.cfg.RewritePath {
			endpoint := i.cfg.Endpoints[i.rng.Intn(len(i.cfg.Endpoints))]
			line = i.replacePath(line, endpoint)
		}
		if i.rng.Float64() < i.cfg.ErrorRate {
			line = i.replaceStatus(line, 500)
		}
		out[n] = line
	}
	return out
}

// extractTimestamp parses the bracketed time_local field.
func (i *Injector) extractTimestamp(line string) (time.Time, bool) {
	m := i.timeRegex.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(timeLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// replacePath swaps the path inside the quoted request line, keeping the
// existing method and protocol.
func (i *Injector) replacePath(line, newPath string) string {
	m := i.requestRegex.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	proto := strings.TrimSpace(m[3])
	if proto == "" {
		proto = "HTTP/1.1"
	}
	return i.requestRegex.ReplaceAllLiteralString(line,
		fmt.Sprintf("%q", fmt.Sprintf("%s %s %s", m[1], newPath, proto)))
}

// replaceStatus swaps the status code field.
func (i *Injector) replaceStatus(line string, status int) string {
	m := i.statusRegex.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	return fmt.Sprintf("%s%d%s", m[1], status, m[3])
}
