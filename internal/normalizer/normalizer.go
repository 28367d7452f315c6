package normalizer

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"incident-analyzer/pkg/models"
)

// timeLayout matches access-log time_local, e.g. "20/May/2015:12:05:13 +0000".
const timeLayout = "02/Jan/2006:15:04:05 -0700"

// Timestamps outside [earliestSaneTime, now+24h) are treated as malformed.
var earliestSaneTime = time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC)

// EventNormalizer parses raw access-log lines ("combined" format) into
// Events. A single bad line never aborts a run: it is skipped and counted.
type EventNormalizer struct {
	lineRegex *regexp.Regexp
}

// NewEventNormalizer creates a new event normalizer.
func NewEventNormalizer() *EventNormalizer {
	// Combined access-log grammar: client IP, identity, user, bracketed
	// local time with offset, quoted request line, status, byte count.
	// Trailing referrer/user-agent fields are accepted and ignored.
	lineRegex := regexp.MustCompile(
		`^(?P<ip>\S+)\s+\S+\s+\S+\s+\[(?P<time>[^\]]+)\]\s+"(?P<request>[^"]*)"\s+(?P<status>\d{3})\s+(?P<bytes>\S+)`)

	return &EventNormalizer{
		lineRegex: lineRegex,
	}
}

// Normalize parses raw lines into Events and a rejected-line count.
// Blank lines are ignored entirely. Event order follows input line order;
// the aggregator does not assume sorted timestamps.
func (n *EventNormalizer) Normalize(lines []string) ([]models.Event, int) {
	events := make([]models.Event, 0, len(lines))
	rejected := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		event, err := n.parseLine(line)
		if err != nil {
			rejected++
			continue
		}
		events = append(events, event)
	}

	return events, rejected
}

// NormalizeReader streams lines from r through Normalize. The returned
// error covers I/O only; malformed lines are still just counted.
func (n *EventNormalizer) NormalizeReader(r io.Reader) ([]models.Event, int, error) {
	var events []models.Event
	rejected := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		event, err := n.parseLine(line)
		if err != nil {
			rejected++
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read log input: %w", err)
	}

	return events, rejected, nil
}

// parseLine parses a single access-log line into an Event.
func (n *EventNormalizer) parseLine(line string) (models.Event, error) {
	matches := n.lineRegex.FindStringSubmatch(line)
	if matches == nil {
		return models.Event{}, fmt.Errorf("line does not match access-log grammar")
	}

	groups := make(map[string]string, len(matches))
	for i, name := range n.lineRegex.SubexpNames() {
		if name != "" {
			groups[name] = matches[i]
		}
	}

	timestamp, err := parseTimestamp(groups["time"])
	if err != nil {
		return models.Event{}, err
	}

	method, path, err := parseRequest(groups["request"])
	if err != nil {
		return models.Event{}, err
	}

	status, err := strconv.Atoi(groups["status"])
	if err != nil {
		return models.Event{}, fmt.Errorf("non-numeric status %q", groups["status"])
	}
	if status < 100 || status > 599 {
		return models.Event{}, fmt.Errorf("status %d outside valid HTTP range", status)
	}

	return models.Event{
		Timestamp: timestamp,
		ClientIP:  groups["ip"],
		Method:    method,
		Path:      path,
		Status:    status,
		BytesSent: parseBytes(groups["bytes"]),
	}, nil
}

// parseTimestamp parses time_local, converts to UTC, and rejects values
// outside the sane epoch range. Original offsets are not retained.
func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable timestamp %q: %w", value, err)
	}
	t = t.UTC()
	if t.Before(earliestSaneTime) || t.After(time.Now().UTC().Add(24*time.Hour)) {
		return time.Time{}, fmt.Errorf("timestamp %s outside sane epoch range", t.Format(time.RFC3339))
	}
	return t, nil
}

// parseRequest splits a request line like "GET /api/login?next=/home HTTP/1.1".
// The query string is stripped from the path so hotspot grouping and
// grounding checks always see the bare endpoint.
func parseRequest(request string) (method, path string, err error) {
	parts := strings.Fields(request)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("malformed request line %q", request)
	}
	method, path = parts[0], parts[1]
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if method == "" || path == "" {
		return "", "", fmt.Errorf("malformed request line %q", request)
	}
	return method, path, nil
}

// parseBytes handles the byte-count field, which may be "-" for responses
// with no body.
func parseBytes(value string) int64 {
	b, err := strconv.ParseInt(value, 10, 64)
	if err != nil || b < 0 {
		return 0
	}
	return b
}

// NormalizationStats contains statistics about a normalization pass.
type NormalizationStats struct {
	TotalLines    int     `json:"total_lines"`
	Accepted      int     `json:"accepted"`
	RejectedLines int     `json:"rejected_lines"`
	AcceptRate    float64 `json:"accept_rate"`
}

// GetNormalizationStats returns statistics about the normalization operation.
func GetNormalizationStats(accepted, rejected int) NormalizationStats {
	stats := NormalizationStats{
		TotalLines:    accepted + rejected,
		Accepted:      accepted,
		RejectedLines: rejected,
	}
	if stats.TotalLines > 0 {
		stats.AcceptRate = float64(accepted) / float64(stats.TotalLines)
	}
	return stats
}
