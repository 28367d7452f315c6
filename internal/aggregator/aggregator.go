package aggregator

import (
	"fmt"
	"sort"
	"time"

	"incident-analyzer/pkg/models"
)

// IncidentAggregator computes the canonical metrics document from an event
// set: global counters, data-anchored fixed-size windows, the peak incident
// window, and the endpoint hotspots inside it. The computation is a single
// deterministic reduction; running it twice over the same events renders
// byte-identical documents.
type IncidentAggregator struct {
	windowSize  time.Duration
	hotspotTopK int
}

// NewIncidentAggregator creates a new aggregator. windowSize and topK are
// validated in Compute so a misconfigured aggregator fails loudly on use.
func NewIncidentAggregator(windowSize time.Duration, hotspotTopK int) *IncidentAggregator {
	return &IncidentAggregator{
		windowSize:  windowSize,
		hotspotTopK: hotspotTopK,
	}
}

// windowCounts accumulates per-bucket counters during the single pass.
type windowCounts struct {
	requests int
	errors   int
}

// Compute produces the metrics document for an event set and a rejected
// line count. An empty event set yields all-zero counters and no peak
// window; only a non-positive window size is an error.
func (a *IncidentAggregator) Compute(events []models.Event, rejectedLines int) (*models.Metrics, error) {
	if a.windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %v", a.windowSize)
	}
	if a.hotspotTopK <= 0 {
		return nil, fmt.Errorf("hotspot top-k must be positive, got %d", a.hotspotTopK)
	}

	metrics := &models.Metrics{
		Version:          models.MetricsVersion,
		WindowMinutes:    int(a.windowSize.Minutes()),
		RejectedLines:    rejectedLines,
		HotspotEndpoints: []models.HotspotEndpoint{},
	}
	if len(events) == 0 {
		return metrics, nil
	}

	// Anchor window boundaries at the earliest event timestamp so they are
	// data-relative, not wall-clock-relative. Input may be unsorted.
	anchor := events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.Before(anchor) {
			anchor = e.Timestamp
		}
	}

	windows := make(map[int64]*windowCounts)
	ips := make(map[string]struct{})
	paths := make(map[string]struct{})
	totalErrors := 0

	for _, e := range events {
		ips[e.ClientIP] = struct{}{}
		paths[e.Path] = struct{}{}
		if e.IsServerError() {
			totalErrors++
		}

		idx := int64(e.Timestamp.Sub(anchor) / a.windowSize)
		w := windows[idx]
		if w == nil {
			w = &windowCounts{}
			windows[idx] = w
		}
		w.requests++
		if e.IsServerError() {
			w.errors++
		}
	}

	metrics.TotalRequests = len(events)
	metrics.TotalErrors = totalErrors
	metrics.OverallErrorRate = models.NewRate(totalErrors, len(events))
	metrics.UniqueIPs = len(ips)
	metrics.UniquePaths = len(paths)

	peakIdx, peak := a.selectPeakWindow(windows)
	if peak == nil || peak.errors == 0 {
		// No window had a server error: no incident detected. A spurious
		// window with a zero rate must not be reported.
		return metrics, nil
	}

	start := anchor.Add(time.Duration(peakIdx) * a.windowSize)
	end := start.Add(a.windowSize)
	metrics.PeakWindow = &models.PeakWindow{
		Start:        models.FormatTime(start),
		End:          models.FormatTime(end),
		RequestCount: peak.requests,
		ErrorCount:   peak.errors,
		ErrorRate:    models.NewRate(peak.errors, peak.requests),
	}
	metrics.HotspotEndpoints = a.computeHotspots(events, anchor, peakIdx)

	return metrics, nil
}

// selectPeakWindow picks the peak window under the mandatory three-level
// total order: highest error rate, then highest error count, then earliest
// start. Iterating bucket indexes in ascending order makes strict
// comparisons resolve the final tie-break to the earliest window.
func (a *IncidentAggregator) selectPeakWindow(windows map[int64]*windowCounts) (int64, *windowCounts) {
	indexes := make([]int64, 0, len(windows))
	for idx := range windows {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	var (
		bestIdx int64
		best    *windowCounts
	)
	for _, idx := range indexes {
		w := windows[idx]
		if best == nil || windowLess(best, w) {
			bestIdx, best = idx, w
		}
	}
	return bestIdx, best
}

// windowLess reports whether candidate strictly beats current on the
// (error_rate, error_count) keys.
func windowLess(current, candidate *windowCounts) bool {
	currentRate := float64(current.errors) / float64(current.requests)
	candidateRate := float64(candidate.errors) / float64(candidate.requests)
	if candidateRate != currentRate {
		return candidateRate > currentRate
	}
	return candidate.errors > current.errors
}

// computeHotspots groups the peak window's error events by path and keeps
// the bounded top-K, ranked by error count descending with lexical path
// order as the tie-break. Scoping to the peak window keeps the narrative
// grounded to the incident, not background traffic.
func (a *IncidentAggregator) computeHotspots(events []models.Event, anchor time.Time, peakIdx int64) []models.HotspotEndpoint {
	pathRequests := make(map[string]int)
	pathErrors := make(map[string]int)

	for _, e := range events {
		if int64(e.Timestamp.Sub(anchor)/a.windowSize) != peakIdx {
			continue
		}
		pathRequests[e.Path]++
		if e.IsServerError() {
			pathErrors[e.Path]++
		}
	}

	hotspots := make([]models.HotspotEndpoint, 0, len(pathErrors))
	for path, errs := range pathErrors {
		hotspots = append(hotspots, models.HotspotEndpoint{
			Path:       path,
			ErrorCount: errs,
			ErrorRate:  models.NewRate(errs, pathRequests[path]),
		})
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].ErrorCount != hotspots[j].ErrorCount {
			return hotspots[i].ErrorCount > hotspots[j].ErrorCount
		}
		return hotspots[i].Path < hotspots[j].Path
	})

	if len(hotspots) > a.hotspotTopK {
		hotspots = hotspots[:a.hotspotTopK]
	}
	return hotspots
}

// AggregationStats contains headline numbers about a computed document,
// used for pipeline progress output.
type AggregationStats struct {
	TotalRequests int     `json:"total_requests"`
	TotalErrors   int     `json:"total_errors"`
	ErrorRate     string  `json:"error_rate"`
	HasIncident   bool    `json:"has_incident"`
	PeakStart     string  `json:"peak_start,omitempty"`
	PeakErrorRate string  `json:"peak_error_rate,omitempty"`
	HotspotCount  int     `json:"hotspot_count"`
	AcceptRatio   float64 `json:"accept_ratio"`
}

// GetAggregationStats returns summary statistics for a metrics document.
func GetAggregationStats(m *models.Metrics) AggregationStats {
	stats := AggregationStats{
		TotalRequests: m.TotalRequests,
		TotalErrors:   m.TotalErrors,
		ErrorRate:     m.OverallErrorRate.Canonical(),
		HotspotCount:  len(m.HotspotEndpoints),
	}
	if total := m.TotalRequests + m.RejectedLines; total > 0 {
		stats.AcceptRatio = float64(m.TotalRequests) / float64(total)
	}
	if m.PeakWindow != nil {
		stats.HasIncident = true
		stats.PeakStart = m.PeakWindow.Start
		stats.PeakErrorRate = m.PeakWindow.ErrorRate.Canonical()
	}
	return stats
}
