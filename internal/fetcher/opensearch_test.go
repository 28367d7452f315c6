package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"incident-analyzer/internal/config"
	"incident-analyzer/internal/interfaces"
	"incident-analyzer/pkg/models"
)

func testFetchConfig() interfaces.FetchConfig {
	return interfaces.FetchConfig{
		TimeRange: models.TimeRange{
			Start: time.Date(2015, 5, 20, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2015, 5, 20, 23, 59, 59, 0, time.UTC),
		},
		Indices:    []string{"nginx-access-*"},
		MaxResults: 1000,
		Timeout:    5 * time.Second,
	}
}

func TestNewOpenSearchFetcher(t *testing.T) {
	cfg := &config.OpenSearchConfig{
		URL:          "https://test.example.com:9200",
		Username:     "testuser",
		Password:     "testpass",
		Indices:      []string{"nginx-access-*"},
		MessageField: "message",
	}

	fetcher, err := NewOpenSearchFetcher(cfg)
	if err != nil {
		t.Fatalf("Failed to create fetcher: %v", err)
	}
	if fetcher == nil || fetcher.client == nil {
		t.Fatal("Fetcher or client is nil")
	}
	if fetcher.cfg != cfg {
		t.Fatal("Config not set correctly")
	}
}

func TestBuildSearchQuery(t *testing.T) {
	qb := NewQueryBuilder("message")
	query := qb.BuildSearchQuery(testFetchConfig())

	if query["size"] != 1000 {
		t.Errorf("Expected size 1000, got %v", query["size"])
	}

	queryMap := query["query"].(map[string]interface{})
	boolMap := queryMap["bool"].(map[string]interface{})
	filters := boolMap["filter"].([]map[string]interface{})
	if len(filters) != 2 {
		t.Fatalf("Expected 2 filter clauses, got %d", len(filters))
	}

	rangeMap := filters[0]["range"].(map[string]interface{})
	tsMap := rangeMap["@timestamp"].(map[string]interface{})
	if tsMap["gte"] != "2015-05-20T00:00:00Z" {
		t.Errorf("Expected gte '2015-05-20T00:00:00Z', got %v", tsMap["gte"])
	}

	existsMap := filters[1]["exists"].(map[string]interface{})
	if existsMap["field"] != "message" {
		t.Errorf("Expected exists filter on 'message', got %v", existsMap["field"])
	}

	sorts := query["sort"].([]map[string]interface{})
	if len(sorts) != 1 {
		t.Fatalf("Expected 1 sort clause, got %d", len(sorts))
	}
	sortMap := sorts[0]["@timestamp"].(map[string]interface{})
	if sortMap["order"] != "asc" {
		t.Errorf("Expected ascending timestamp sort, got %v", sortMap["order"])
	}
}

func TestFetch(t *testing.T) {
	response := `{
		"hits": {
			"hits": [
				{"_source": {"message": "10.0.0.1 - - [20/May/2015:12:05:13 +0000] \"GET /api/login HTTP/1.1\" 500 1024"}},
				{"_source": {"message": "10.0.0.2 - - [20/May/2015:12:05:14 +0000] \"GET /home HTTP/1.1\" 200 512"}},
				{"_source": {"other_field": "no message here"}},
				{"_source": {"message": 12345}}
			]
		}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "_search") {
			t.Errorf("Expected a search request, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}))
	defer server.Close()

	fetcher, err := NewOpenSearchFetcher(&config.OpenSearchConfig{
		URL:          server.URL,
		Indices:      []string{"nginx-access-*"},
		MessageField: "message",
	})
	if err != nil {
		t.Fatalf("Failed to create fetcher: %v", err)
	}

	lines, err := fetcher.Fetch(context.Background(), testFetchConfig())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines (hits without a string message are skipped), got %d", len(lines))
	}
	if !strings.Contains(lines[0], "/api/login") {
		t.Errorf("Unexpected first line: %s", lines[0])
	}
}

func TestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "index_not_found_exception"}`))
	}))
	defer server.Close()

	fetcher, err := NewOpenSearchFetcher(&config.OpenSearchConfig{
		URL:          server.URL,
		Indices:      []string{"missing-*"},
		MessageField: "message",
	})
	if err != nil {
		t.Fatalf("Failed to create fetcher: %v", err)
	}

	if _, err := fetcher.Fetch(context.Background(), testFetchConfig()); err == nil {
		t.Error("Expected an error for a failed search")
	}
}
