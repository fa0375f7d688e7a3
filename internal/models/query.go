package models

import (
	"fmt"
	"strings"
)

// QueryRequest is a retrieval request: the question text and how many chunks to return.
type QueryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Validate trims the query, rejects empty queries, and applies defaultK and maxK to K.
func (q *QueryRequest) Validate(defaultK, maxK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return nil
}

// IndexRequest carries documents for an explicit (administrative) index build.
type IndexRequest struct {
	Documents []Document `json:"documents"`
}
