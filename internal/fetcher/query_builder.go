package fetcher

import (
	"time"

	"incident-analyzer/internal/interfaces"
	"incident-analyzer/pkg/models"
)

// QueryBuilder constructs OpenSearch queries for raw log-line retrieval.
type QueryBuilder struct {
	messageField string
}

// NewQueryBuilder creates a query builder bound to the source message field.
func NewQueryBuilder(messageField string) *QueryBuilder {
	return &QueryBuilder{messageField: messageField}
}

// BuildSearchQuery constructs a complete search query: time-bounded,
// sorted ascending by timestamp so fetched lines keep event order.
func (qb *QueryBuilder) BuildSearchQuery(config interfaces.FetchConfig) map[string]interface{} {
	return map[string]interface{}{
		"query": qb.buildBoolQuery(config),
		"size":  config.MaxResults,
		"sort":  qb.buildSortClause(),
		"_source": []string{
			qb.messageField,
		},
	}
}

// buildBoolQuery constructs the bool query with its filter clauses.
func (qb *QueryBuilder) buildBoolQuery(config interfaces.FetchConfig) map[string]interface{} {
	filters := []map[string]interface{}{
		qb.buildTimeRangeFilter(config.TimeRange),
		{
			"exists": map[string]interface{}{
				"field": qb.messageField,
			},
		},
	}

	return map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": filters,
		},
	}
}

// buildTimeRangeFilter creates a time range filter.
func (qb *QueryBuilder) buildTimeRangeFilter(timeRange models.TimeRange) map[string]interface{} {
	return map[string]interface{}{
		"range": map[string]interface{}{
			"@timestamp": map[string]interface{}{
				"gte": timeRange.Start.Format(time.RFC3339),
				"lte": timeRange.End.Format(time.RFC3339),
			},
		},
	}
}

// buildSortClause sorts hits ascending by timestamp.
func (qb *QueryBuilder) buildSortClause() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"@timestamp": map[string]interface{}{
				"order": "asc",
			},
		},
	}
}
