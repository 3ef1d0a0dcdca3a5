package similarity

import (
	"github.com/xhad/neardup/pkg/signature"
)

// Document holds the three signatures derived from one piece of text.
type Document struct {
	ID        string
	MinHash   signature.MinHash
	SimHash   signature.SimHash
	Embedding EmbeddingResult
}

type entry[T any] struct {
	id  string
	sig T
}

// store keeps signatures in insertion order so that ties in a best-match
// scan go to the earliest inserted document.
type store[T any] struct {
	entries []entry[T]
	index   map[string]int
}

func newStore[T any]() *store[T] {
	return &store[T]{index: make(map[string]int)}
}

// insert appends sig under id, replacing the signature in place when id is
// already present.
func (s *store[T]) insert(id string, sig T) {
	if i, ok := s.index[id]; ok {
		s.entries[i].sig = sig
		return
	}
	s.index[id] = len(s.entries)
	s.entries = append(s.entries, entry[T]{id: id, sig: sig})
}

func (s *store[T]) get(id string) (T, bool) {
	i, ok := s.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.entries[i].sig, true
}

func (s *store[T]) len() int {
	return len(s.entries)
}

// bestSimilarity returns the first entry with the highest score strictly
// above zero, or "" and 0 when nothing scores.
func (s *store[T]) bestSimilarity(score func(T) float64) (string, float64) {
	bestID, best := "", 0.0
	for _, e := range s.entries {
		if v := score(e.sig); v > best {
			bestID, best = e.id, v
		}
	}
	return bestID, best
}

// bestDistance returns the first entry with the lowest distance strictly
// below the fingerprint width, or "" and the width when nothing is closer.
func (s *store[T]) bestDistance(distance func(T) int) (string, int) {
	bestID, best := "", signature.FingerprintBits
	for _, e := range s.entries {
		if d := distance(e.sig); d < best {
			bestID, best = e.id, d
		}
	}
	return bestID, best
}

type matches struct {
	minhashID   string
	minhash     float64
	simhashID   string
	simhash     int
	embeddingID string
	embedding   float64
}

func (m matches) scores(embedded bool) Scores {
	return Scores{
		MinHashMaxSimilarity:   m.minhash,
		SimHashMinDistance:     m.simhash,
		EmbeddingMaxSimilarity: m.embedding,
		EmbeddingEnabled:       embedded,
	}
}

func (e *Engine) bestMatches(doc Document) matches {
	var m matches

	m.minhashID, m.minhash = e.minhashes.bestSimilarity(func(sig signature.MinHash) float64 {
		return signature.Jaccard(doc.MinHash, sig)
	})
	m.simhashID, m.simhash = e.simhashes.bestDistance(func(sig signature.SimHash) int {
		return signature.Distance(doc.SimHash, sig)
	})
	if doc.Embedding.Present() {
		m.embeddingID, m.embedding = e.embeddings.bestSimilarity(func(vector []float32) float64 {
			return clampUnit(signature.Cosine(doc.Embedding.Vector, vector))
		})
	}

	return m
}

// clampUnit guards against float rounding pushing cosine above 1.
func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
