package models

import "time"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type Document struct {
	ID       string
	URL      string
	Title    string
	Content  string
	Language string
	Metadata map[string]interface{}
}

// Result is the flattened outcome of processing one document, shared by the
// CSV writer, the markdown report, the result store and the HTTP API.
type Result struct {
	RunID          string    `json:"run_id,omitempty"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Language       string    `json:"language,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	Category       string    `json:"category"`
	Summary        string    `json:"summary"`
	MinHashScore   float64   `json:"minhash_score"`
	SimHashScore   int       `json:"simhash_score"`
	EmbeddingScore float64   `json:"embedding_score"`
	EmbeddingUsed  bool      `json:"embedding_used"`
	IsDuplicate    bool      `json:"is_duplicate"`
	DuplicateOf    string    `json:"duplicate_of,omitempty"`
	Method         string    `json:"method,omitempty"`
	Similarity     float64   `json:"similarity,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}

func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}
