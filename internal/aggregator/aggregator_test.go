package aggregator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"incident-analyzer/pkg/models"
)

var base = time.Date(2015, 5, 20, 12, 0, 0, 0, time.UTC)

func ev(offset time.Duration, ip, path string, status int) models.Event {
	return models.Event{
		Timestamp: base.Add(offset),
		ClientIP:  ip,
		Method:    "GET",
		Path:      path,
		Status:    status,
		BytesSent: 100,
	}
}

// incidentEvents builds a fixture with a clear peak in the second
// five-minute window: 114 requests, 55 of them 5xx, concentrated on
// /api/login (30 errors) and /api/cart (25 errors).
func incidentEvents() []models.Event {
	var events []models.Event

	// Background window [12:00, 12:05): 50 requests, 1 error.
	for i := 0; i < 49; i++ {
		events = append(events, ev(time.Duration(i)*5*time.Second, "10.0.0.1", "/home", 200))
	}
	events = append(events, ev(4*time.Minute, "10.0.0.2", "/home", 500))

	// Peak window [12:05, 12:10): 114 requests, 55 errors.
	at := func(i int) time.Duration { return 5*time.Minute + time.Duration(i)*2*time.Second }
	n := 0
	for i := 0; i < 30; i++ {
		events = append(events, ev(at(n), "10.0.0.3", "/api/login", 500))
		n++
	}
	for i := 0; i < 10; i++ {
		events = append(events, ev(at(n), "10.0.0.3", "/api/login", 200))
		n++
	}
	for i := 0; i < 25; i++ {
		events = append(events, ev(at(n), "10.0.0.4", "/api/cart", 503))
		n++
	}
	for i := 0; i < 5; i++ {
		events = append(events, ev(at(n), "10.0.0.4", "/api/cart", 200))
		n++
	}
	for i := 0; i < 44; i++ {
		events = append(events, ev(at(n), "10.0.0.5", "/home", 200))
		n++
	}

	// Tail window [12:10, 12:15): quiet.
	for i := 0; i < 20; i++ {
		events = append(events, ev(10*time.Minute+time.Duration(i)*10*time.Second, "10.0.0.6", "/home", 200))
	}

	return events
}

func TestComputeIncidentScenario(t *testing.T) {
	a := NewIncidentAggregator(5*time.Minute, 5)

	metrics, err := a.Compute(incidentEvents(), 3)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if metrics.TotalRequests != 184 {
		t.Errorf("Expected 184 total requests, got %d", metrics.TotalRequests)
	}
	if metrics.TotalErrors != 56 {
		t.Errorf("Expected 56 total errors, got %d", metrics.TotalErrors)
	}
	if metrics.RejectedLines != 3 {
		t.Errorf("Expected 3 rejected lines, got %d", metrics.RejectedLines)
	}

	if metrics.PeakWindow == nil {
		t.Fatal("Expected a peak window")
	}
	pw := metrics.PeakWindow
	if pw.Start != "2015-05-20T12:05:00Z" || pw.End != "2015-05-20T12:10:00Z" {
		t.Errorf("Expected peak window [2015-05-20T12:05:00Z, 2015-05-20T12:10:00Z), got [%s, %s)", pw.Start, pw.End)
	}
	if pw.RequestCount != 114 {
		t.Errorf("Expected 114 requests in peak window, got %d", pw.RequestCount)
	}
	if pw.ErrorCount != 55 {
		t.Errorf("Expected 55 errors in peak window, got %d", pw.ErrorCount)
	}
	if got := pw.ErrorRate.Canonical(); got != "0.482456" {
		t.Errorf("Expected peak error rate '0.482456', got '%s'", got)
	}

	if len(metrics.HotspotEndpoints) != 2 {
		t.Fatalf("Expected 2 hotspots, got %d", len(metrics.HotspotEndpoints))
	}
	top := metrics.HotspotEndpoints[0]
	if top.Path != "/api/login" || top.ErrorCount != 30 {
		t.Errorf("Expected top hotspot /api/login with 30 errors, got %s with %d", top.Path, top.ErrorCount)
	}
	if got := top.ErrorRate.Canonical(); got != "0.75" {
		t.Errorf("Expected /api/login error rate '0.75', got '%s'", got)
	}
	second := metrics.HotspotEndpoints[1]
	if second.Path != "/api/cart" || second.ErrorCount != 25 {
		t.Errorf("Expected second hotspot /api/cart with 25 errors, got %s with %d", second.Path, second.ErrorCount)
	}
}

func TestComputeEmptyEvents(t *testing.T) {
	a := NewIncidentAggregator(5*time.Minute, 5)

	metrics, err := a.Compute(nil, 7)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if metrics.TotalRequests != 0 || metrics.TotalErrors != 0 {
		t.Errorf("Expected zero counters, got %d requests / %d errors", metrics.TotalRequests, metrics.TotalErrors)
	}
	if metrics.RejectedLines != 7 {
		t.Errorf("Expected 7 rejected lines, got %d", metrics.RejectedLines)
	}
	if metrics.PeakWindow != nil {
		t.Error("Expected no peak window for empty input")
	}
	if metrics.HotspotEndpoints == nil || len(metrics.HotspotEndpoints) != 0 {
		t.Errorf("Expected empty (non-nil) hotspot list, got %v", metrics.HotspotEndpoints)
	}
	if got := metrics.OverallErrorRate.Canonical(); got != "0" {
		t.Errorf("Expected overall error rate '0', got '%s'", got)
	}
}

func TestComputeNoServerErrors(t *testing.T) {
	a := NewIncidentAggregator(5*time.Minute, 5)

	events := []models.Event{
		ev(0, "10.0.0.1", "/home", 200),
		ev(time.Minute, "10.0.0.1", "/home", 404),
		ev(6*time.Minute, "10.0.0.2", "/api/login", 301),
	}

	metrics, err := a.Compute(events, 0)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if metrics.PeakWindow != nil {
		t.Error("Expected no peak window when no 5xx occurred")
	}
	if len(metrics.HotspotEndpoints) != 0 {
		t.Errorf("Expected no hotspots, got %d", len(metrics.HotspotEndpoints))
	}
	if metrics.TotalErrors != 0 {
		t.Errorf("4xx and 3xx must not count as errors, got %d", metrics.TotalErrors)
	}
}

func TestPeakWindowTieBreaks(t *testing.T) {
	a := NewIncidentAggregator(5*time.Minute, 5)

	t.Run("higher error count wins on equal rate", func(t *testing.T) {
		// Window 0: 1/2 errors (rate 0.5). Window 1: 2/4 errors (rate 0.5).
		events := []models.Event{
			ev(0, "a", "/x", 500),
			ev(time.Minute, "a", "/x", 200),
			ev(5*time.Minute, "b", "/y", 500),
			ev(6*time.Minute, "b", "/y", 500),
			ev(7*time.Minute, "b", "/y", 200),
			ev(8*time.Minute, "b", "/y", 200),
		}
		metrics, err := a.Compute(events, 0)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if metrics.PeakWindow.Start != "2015-05-20T12:05:00Z" {
			t.Errorf("Expected the higher-error-count window to win, got start %s", metrics.PeakWindow.Start)
		}
	})

	t.Run("earliest wins on full tie", func(t *testing.T) {
		// Both windows: 1/2 errors.
		events := []models.Event{
			ev(0, "a", "/x", 500),
			ev(time.Minute, "a", "/x", 200),
			ev(5*time.Minute, "b", "/y", 500),
			ev(6*time.Minute, "b", "/y", 200),
		}
		metrics, err := a.Compute(events, 0)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if metrics.PeakWindow.Start != "2015-05-20T12:00:00Z" {
			t.Errorf("Expected the earliest window to win the tie, got start %s", metrics.PeakWindow.Start)
		}
	})
}

func TestHotspotTopKBound(t *testing.T) {
	a := NewIncidentAggregator(5*time.Minute, 2)

	events := []models.Event{
		ev(0, "a", "/p1", 500),
		ev(time.Second, "a", "/p1", 500),
		ev(2*time.Second, "a", "/p2", 500),
		ev(3*time.Second, "a", "/p3", 500),
	}
	metrics, err := a.Compute(events, 0)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(metrics.HotspotEndpoints) != 2 {
		t.Fatalf("Expected hotspots bounded to 2, got %d", len(metrics.HotspotEndpoints))
	}
	// /p1 has 2 errors; /p2 beats /p3 lexically on the count tie.
	if metrics.HotspotEndpoints[0].Path != "/p1" || metrics.HotspotEndpoints[1].Path != "/p2" {
		t.Errorf("Expected [/p1 /p2], got [%s %s]", metrics.HotspotEndpoints[0].Path, metrics.HotspotEndpoints[1].Path)
	}
}

func TestComputeInvalidParameters(t *testing.T) {
	if _, err := NewIncidentAggregator(0, 5).Compute(nil, 0); err == nil {
		t.Error("Expected error for zero window size")
	}
	if _, err := NewIncidentAggregator(5*time.Minute, 0).Compute(nil, 0); err == nil {
		t.Error("Expected error for zero top-k")
	}
}

// **Feature: incident-analyzer, Property 3: Metrics determinism**
// Property 3: Metrics determinism
// For any permutation of the same event set, the rendered metrics document
// is byte-identical: ordering of input lines never changes the verdict.
func TestMetricsDeterminism(t *testing.T) {
	properties := gopter.NewProperties(nil)

	a := NewIncidentAggregator(5*time.Minute, 5)
	events := incidentEvents()

	baseline, err := a.Compute(events, 0)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	baselineDoc, err := baseline.Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	properties.Property("permuted input renders byte-identical metrics", prop.ForAll(
		func(seed int64) bool {
			shuffled := make([]models.Event, len(events))
			copy(shuffled, events)
			r := rand.New(rand.NewSource(seed))
			r.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			metrics, err := a.Compute(shuffled, 0)
			if err != nil {
				return false
			}
			doc, err := metrics.Render()
			if err != nil {
				return false
			}
			return string(doc) == string(baselineDoc)
		},
		gen.Int64(),
	))

	properties.Property("recomputation is idempotent", prop.ForAll(
		func(unused int) bool {
			again, err := a.Compute(events, 0)
			if err != nil {
				return false
			}
			doc, err := again.Render()
			if err != nil {
				return false
			}
			return string(doc) == string(baselineDoc)
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
