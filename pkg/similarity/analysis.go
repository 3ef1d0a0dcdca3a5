package similarity

import (
	"github.com/xhad/neardup/pkg/signature"
)

// Summary is the count, mean and range of a set of pairwise scores.
type Summary struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
}

// Distribution summarizes pairwise scores between stored unique documents.
type Distribution struct {
	MinHash   Summary `json:"minhash_stats"`
	SimHash   Summary `json:"simhash_stats"`
	Embedding Summary `json:"embedding_stats"`
}

// Comparison is the per-signal evidence of a probe against one stored
// document.
type Comparison struct {
	ID                string  `json:"url"`
	MinHash           float64 `json:"minhash_similarity"`
	SimHashDistance   int     `json:"simhash_distance"`
	SimHashSimilarity float64 `json:"simhash_similarity"`
	Embedding         float64 `json:"embedding_similarity"`
	EmbeddingCompared bool    `json:"embedding_compared"`
}

// Analyze computes score distributions over every pair of stored unique
// documents. It is quadratic in the store size.
func (e *Engine) Analyze() Distribution {
	e.mu.Lock()
	defer e.mu.Unlock()

	var minhashes, simhashes, embeddings []float64

	docs := e.minhashes.entries
	for i := range docs {
		for j := i + 1; j < len(docs); j++ {
			a, b := docs[i].id, docs[j].id

			minhashes = append(minhashes, signature.Jaccard(docs[i].sig, docs[j].sig))

			sa, _ := e.simhashes.get(a)
			sb, _ := e.simhashes.get(b)
			simhashes = append(simhashes, float64(signature.Distance(sa, sb)))

			ea, okA := e.embeddings.get(a)
			eb, okB := e.embeddings.get(b)
			if okA && okB {
				embeddings = append(embeddings, signature.Cosine(ea, eb))
			}
		}
	}

	return Distribution{
		MinHash:   summarize(minhashes),
		SimHash:   summarize(simhashes),
		Embedding: summarize(embeddings),
	}
}

// Compare scores the given text against every stored document without
// touching stores, counters or the similarity log.
func (e *Engine) Compare(title, content string) []Comparison {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc := e.sign("", title+" "+content)

	comparisons := make([]Comparison, 0, e.minhashes.len())
	for _, stored := range e.minhashes.entries {
		c := Comparison{
			ID:      stored.id,
			MinHash: signature.Jaccard(doc.MinHash, stored.sig),
		}

		sim, _ := e.simhashes.get(stored.id)
		c.SimHashDistance = signature.Distance(doc.SimHash, sim)
		c.SimHashSimilarity = signature.DistanceSimilarity(c.SimHashDistance)

		if vector, ok := e.embeddings.get(stored.id); ok && doc.Embedding.Present() {
			c.Embedding = clampUnit(signature.Cosine(doc.Embedding.Vector, vector))
			c.EmbeddingCompared = true
		}

		comparisons = append(comparisons, c)
	}
	return comparisons
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	s := Summary{Count: len(values), Max: values[0], Min: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		s.Max = max(s.Max, v)
		s.Min = min(s.Min, v)
	}
	s.Avg = sum / float64(len(values))
	return s
}
