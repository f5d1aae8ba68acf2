package search

// Filter types understood by the service
const (
	MatchAll = "match_all"
	MatchAny = "match_any"
)

// Filter restricts results to documents whose field holds the given values
type Filter struct {
	Type      string   `json:"type"`
	FieldName string   `json:"field_name"`
	Values    []string `json:"values"`
}

// Query is a GSearchRequest
type Query struct {
	Q        string   `json:"q"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
	Advanced bool     `json:"advanced,omitempty"`
	Filters  []Filter `json:"filters,omitempty"`
}

// NewQuery builds a query for q
func NewQuery(q string, limit, offset int, advanced bool) *Query {
	return &Query{Q: q, Limit: limit, Offset: offset, Advanced: advanced}
}

// AddFilter appends a filter; an empty filterType means match_all
func (q *Query) AddFilter(field string, values []string, filterType string) *Query {
	if filterType == "" {
		filterType = MatchAll
	}
	q.Filters = append(q.Filters, Filter{Type: filterType, FieldName: field, Values: values})
	return q
}
