package similarity

import "maps"

// Classification is the cached category and summary of a unique document.
type Classification struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// Stats is a snapshot of engine counters.
type Stats struct {
	UniqueCount         int            `json:"unique_count"`
	TotalDuplicates     int            `json:"total_duplicates"`
	TotalProcessed      int            `json:"total_processed"`
	DetectionMethods    map[Method]int `json:"detection_methods"`
	CategoryStats       map[string]int `json:"category_stats"`
	DuplicateRate       float64        `json:"duplicate_rate"`
	EmbeddingEnabled    bool           `json:"embedding_enabled"`
	EmbeddingCount      int            `json:"embedding_count"`
	SimilarityLogsCount int            `json:"similarity_logs_count"`
}

type stats struct {
	duplicates int
	methods    map[Method]int
	categories map[string]int
}

func newStats() stats {
	return stats{
		methods:    make(map[Method]int),
		categories: make(map[string]int),
	}
}

func (s *stats) recordDuplicate(method Method) {
	s.duplicates++
	s.methods[method]++
}

// CachePut stores the classification of a unique document and counts its
// category. Category statistics change nowhere else.
func (e *Engine) CachePut(id string, c Classification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache[id] = c
	e.stats.categories[c.Category]++
}

func (e *Engine) CacheGet(id string) (Classification, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.cache[id]
	return c, ok
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	unique := e.minhashes.len()
	total := unique + e.stats.duplicates

	var rate float64
	if total > 0 {
		rate = float64(e.stats.duplicates) / float64(total)
	}

	return Stats{
		UniqueCount:         unique,
		TotalDuplicates:     e.stats.duplicates,
		TotalProcessed:      total,
		DetectionMethods:    maps.Clone(e.stats.methods),
		CategoryStats:       maps.Clone(e.stats.categories),
		DuplicateRate:       rate,
		EmbeddingEnabled:    e.embedder != nil,
		EmbeddingCount:      e.embeddings.len(),
		SimilarityLogsCount: len(e.logs),
	}
}

// ResetStats clears counters and the similarity log. Stores and the
// classification cache are kept.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats = newStats()
	e.logs = nil
}
