package models

// SearchMode tells which strategy answered a query.
type SearchMode string

const (
	// ModeSemantic means the query was embedded and ranked by cosine similarity.
	ModeSemantic SearchMode = "semantic"
	// ModeKeyword means the embedding provider was unavailable and keyword scoring was used.
	ModeKeyword SearchMode = "keyword"
)

// Result is a retrieved chunk. Both search modes produce this shape.
type Result struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// QueryResponse is the response for a query request.
type QueryResponse struct {
	Query     string     `json:"query"`
	Mode      SearchMode `json:"mode"`
	Results   []*Result  `json:"results"`
	QueryTime int64      `json:"query_time_ms"`
}
