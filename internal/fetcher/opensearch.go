package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"incident-analyzer/internal/config"
	"incident-analyzer/internal/interfaces"
)

// OpenSearchFetcher pulls raw access-log lines from an OpenSearch index.
// It is transport only: the message field of each hit is handed to the
// normalizer exactly as a line read from a file would be.
type OpenSearchFetcher struct {
	client       *opensearch.Client
	cfg          *config.OpenSearchConfig
	queryBuilder *QueryBuilder
}

// NewOpenSearchFetcher creates a fetcher from the ingest configuration.
func NewOpenSearchFetcher(cfg *config.OpenSearchConfig) (*OpenSearchFetcher, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchFetcher{
		client:       client,
		cfg:          cfg,
		queryBuilder: NewQueryBuilder(cfg.MessageField),
	}, nil
}

// searchResponse is the slice of the search API response we consume.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Fetch retrieves raw log lines for the given time range. Hits whose
// message field is missing or not a string are skipped; transport-level
// failures propagate to the caller.
func (f *OpenSearchFetcher) Fetch(ctx context.Context, fetchCfg interfaces.FetchConfig) ([]string, error) {
	query := f.queryBuilder.BuildSearchQuery(fetchCfg)
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	if fetchCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fetchCfg.Timeout)
		defer cancel()
	}

	req := opensearchapi.SearchRequest{
		Index: fetchCfg.Indices,
		Body:  strings.NewReader(string(body)),
	}
	resp, err := req.Do(ctx, f.client)
	if err != nil {
		return nil, fmt.Errorf("opensearch search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("opensearch returned %s: %s", resp.Status(), string(detail))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode opensearch response: %w", err)
	}

	lines := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		raw, ok := hit.Source[f.cfg.MessageField]
		if !ok {
			continue
		}
		var line string
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
