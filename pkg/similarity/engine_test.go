package similarity_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/neardup/pkg/similarity"
)

type fakeEmbedder struct {
	embed func(text string) ([]float32, error)
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return f.embed(text)
}

func constantEmbedder() *fakeEmbedder {
	return &fakeEmbedder{embed: func(string) ([]float32, error) {
		return []float32{0.1, 0.2, 0.3}, nil
	}}
}

func newEngine(t *testing.T, embedder similarity.Embedder) *similarity.Engine {
	t.Helper()

	config := similarity.DefaultConfig()
	config.Now = func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	engine, err := similarity.New(config, embedder)
	require.NoError(t, err)
	return engine
}

func TestNewRejectsInvalidThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*similarity.Config)
	}{
		{"minhash zero", func(c *similarity.Config) { c.ThresholdMinHash = 0 }},
		{"minhash above one", func(c *similarity.Config) { c.ThresholdMinHash = 1.5 }},
		{"embedding negative", func(c *similarity.Config) { c.ThresholdEmbedding = -0.1 }},
		{"simhash too wide", func(c *similarity.Config) { c.ThresholdSimHash = 64 }},
		{"simhash negative", func(c *similarity.Config) { c.ThresholdSimHash = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := similarity.DefaultConfig()
			tt.mutate(&config)
			_, err := similarity.New(config, nil)
			assert.Error(t, err)
		})
	}
}

func TestFirstDocumentIsUnique(t *testing.T) {
	inputs := [][2]string{
		{"Cats", "Cats are great pets and very friendly."},
		{"", "x"},
		{"Only a title", ""},
		{"<b>markup</b>", "<p>the and of</p>"},
	}

	for _, in := range inputs {
		engine := newEngine(t, constantEmbedder())
		verdict, _ := engine.Evaluate("u1", in[0], in[1])
		assert.False(t, verdict.IsDuplicate, "input %q", in)
	}
}

func TestIdenticalTextMatchesByEmbedding(t *testing.T) {
	engine := newEngine(t, constantEmbedder())

	first, _ := engine.Evaluate("u1", "Cats", "Cats are great pets and very friendly.")
	require.False(t, first.IsDuplicate)

	verdict, scores := engine.Evaluate("u2", "Cats", "Cats are great pets and very friendly.")
	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, similarity.MethodEmbedding, verdict.Method)
	assert.Equal(t, "u1", verdict.MatchedID)
	assert.InDelta(t, 1.0, verdict.Similarity, 1e-6)

	assert.Equal(t, 1.0, scores.MinHashMaxSimilarity)
	assert.Equal(t, 0, scores.SimHashMinDistance)
	assert.True(t, scores.EmbeddingEnabled)
}

func TestIdenticalTextWithoutEmbedderMatchesByMinHash(t *testing.T) {
	engine := newEngine(t, nil)

	engine.Evaluate("u1", "Cats", "Cats are great pets and very friendly.")
	verdict, scores := engine.Evaluate("u2", "Cats", "Cats are great pets and very friendly.")

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, similarity.MethodMinHash, verdict.Method)
	assert.Equal(t, "u1", verdict.MatchedID)
	assert.Equal(t, 1.0, verdict.Similarity)
	assert.False(t, scores.EmbeddingEnabled)
	assert.Equal(t, 0.0, scores.EmbeddingMaxSimilarity)
}

func TestEmbeddingTakesPriority(t *testing.T) {
	// cosine([1,0], [0.9, sqrt(0.19)]) == 0.9
	embedder := &fakeEmbedder{embed: func(text string) ([]float32, error) {
		if strings.Contains(text, "quarterly") {
			return []float32{0.9, float32(math.Sqrt(0.19))}, nil
		}
		return []float32{1, 0}, nil
	}}
	engine := newEngine(t, embedder)

	engine.Evaluate("a", "Gardening", "tomatoes need sunlight water and patience every summer")
	verdict, scores := engine.Evaluate("b", "Finance", "quarterly earnings beat analyst expectations across sectors")

	require.True(t, verdict.IsDuplicate)
	assert.Equal(t, similarity.MethodEmbedding, verdict.Method)
	assert.Equal(t, "a", verdict.MatchedID)
	assert.InDelta(t, 0.9, verdict.Similarity, 1e-6)
	assert.Less(t, scores.MinHashMaxSimilarity, similarity.DefaultThresholdMinHash)
}

func TestDuplicatesAreNeverInserted(t *testing.T) {
	engine := newEngine(t, nil)
	text := "the committee approved the new budget for public libraries"

	engine.Evaluate("a", "Budget", text)
	b, _ := engine.Evaluate("b", "Budget", text)
	require.True(t, b.IsDuplicate)

	c, _ := engine.Evaluate("c", "Budget", text)
	require.True(t, c.IsDuplicate)
	assert.Equal(t, "a", c.MatchedID)

	for _, comparison := range engine.Compare("Budget", text) {
		assert.NotEqual(t, "b", comparison.ID)
		assert.NotEqual(t, "c", comparison.ID)
	}
}

func TestStoreGrowthMatchesCallCount(t *testing.T) {
	engine := newEngine(t, constantEmbedder())
	docs := []string{
		"rust compilers and borrow checking",
		"rust compilers and borrow checking",
		"baking sourdough bread at home",
		"the mountain trail closed for winter",
		"baking sourdough bread at home",
		"",
	}

	for i, doc := range docs {
		engine.Evaluate(fmt.Sprintf("u%d", i), "", doc)
	}

	stats := engine.Stats()
	assert.Equal(t, len(docs), stats.UniqueCount+stats.TotalDuplicates)
	assert.Equal(t, len(docs), stats.TotalProcessed)
	assert.Equal(t, len(docs), stats.SimilarityLogsCount)
}

func TestEmptyDocumentsNeverMatch(t *testing.T) {
	engine := newEngine(t, nil)

	first, _ := engine.Evaluate("e1", "", "")
	second, scores := engine.Evaluate("e2", "", "")

	assert.False(t, first.IsDuplicate)
	assert.False(t, second.IsDuplicate)
	assert.Equal(t, 0.0, scores.MinHashMaxSimilarity)
	assert.Equal(t, 64, scores.SimHashMinDistance)
	assert.Equal(t, 2, engine.Stats().UniqueCount)
}

func TestEmbeddingFailuresAreAbsorbed(t *testing.T) {
	tests := []struct {
		name  string
		embed func(string) ([]float32, error)
	}{
		{"error", func(string) ([]float32, error) { return nil, errors.New("backend down") }},
		{"panic", func(string) ([]float32, error) { panic("boom") }},
		{"empty vector", func(string) ([]float32, error) { return []float32{}, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine(t, &fakeEmbedder{embed: tt.embed})

			verdict, scores := engine.Evaluate("u1", "Title", "some body text here")
			assert.False(t, verdict.IsDuplicate)
			assert.False(t, scores.EmbeddingEnabled)
			assert.Equal(t, 0, engine.Stats().EmbeddingCount)
			assert.Equal(t, 1, engine.Stats().UniqueCount)
		})
	}
}

func TestDisabledEmbeddingIgnoresBackend(t *testing.T) {
	embedder := constantEmbedder()
	config := similarity.DefaultConfig()
	config.EmbeddingEnabled = false

	engine, err := similarity.New(config, embedder)
	require.NoError(t, err)

	engine.Evaluate("u1", "Title", "body")
	assert.Equal(t, 0, embedder.calls)
	assert.False(t, engine.EmbeddingInfo().Enabled)
}

func TestReevaluatingAnIDReplacesItsSignatures(t *testing.T) {
	engine := newEngine(t, nil)
	first := "city council votes on new transit plan"
	second := "scientists discover water ice on distant moon"

	engine.Evaluate("u", "", first)
	engine.CachePut("u", similarity.Classification{Category: "News"})
	verdict, _ := engine.Evaluate("u", "", second)
	require.False(t, verdict.IsDuplicate)
	engine.CachePut("u", similarity.Classification{Category: "News"})

	stats := engine.Stats()
	assert.Equal(t, 1, stats.UniqueCount)
	assert.Equal(t, 0, stats.TotalDuplicates)
	assert.Equal(t, 2, stats.SimilarityLogsCount)
	assert.Equal(t, 2, stats.CategoryStats["News"])

	dup, _ := engine.Evaluate("copy", "", second)
	require.True(t, dup.IsDuplicate)
	assert.Equal(t, "u", dup.MatchedID)

	gone, _ := engine.Evaluate("again", "", first)
	assert.False(t, gone.IsDuplicate)
}

func TestCategoryStatsOnlyCountCachedDocuments(t *testing.T) {
	engine := newEngine(t, nil)
	texts := []string{
		"city council votes on new transit plan",
		"local team wins championship after overtime thriller",
		"scientists discover water ice on distant moon",
	}

	for i, text := range texts {
		id := fmt.Sprintf("u%d", i)
		verdict, _ := engine.Evaluate(id, "", text)
		require.False(t, verdict.IsDuplicate)
		engine.CachePut(id, similarity.Classification{Category: "News", Summary: "s"})
	}

	dup, _ := engine.Evaluate("dup", "", texts[0])
	require.True(t, dup.IsDuplicate)

	stats := engine.Stats()
	assert.Equal(t, 3, stats.CategoryStats["News"])
	assert.Equal(t, 1, stats.TotalDuplicates)
	assert.Equal(t, 1, stats.DetectionMethods[similarity.MethodMinHash])
	assert.InDelta(t, 0.25, stats.DuplicateRate, 1e-9)

	cached, ok := engine.CacheGet(dup.MatchedID)
	assert.True(t, ok)
	assert.Equal(t, "News", cached.Category)

	_, ok = engine.CacheGet("dup")
	assert.False(t, ok)
}

func TestResetStatsKeepsStoresAndCache(t *testing.T) {
	engine := newEngine(t, nil)

	engine.Evaluate("a", "", "open source maintainers need funding")
	engine.CachePut("a", similarity.Classification{Category: "Technology"})
	engine.Evaluate("b", "", "open source maintainers need funding")

	engine.ResetStats()

	stats := engine.Stats()
	assert.Equal(t, 0, stats.TotalDuplicates)
	assert.Empty(t, stats.CategoryStats)
	assert.Empty(t, engine.Logs(0))
	assert.Equal(t, 1, stats.UniqueCount)

	_, ok := engine.CacheGet("a")
	assert.True(t, ok)

	verdict, _ := engine.Evaluate("c", "", "open source maintainers need funding")
	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, "a", verdict.MatchedID)
}

func TestLogsLimitAndEntries(t *testing.T) {
	engine := newEngine(t, nil)
	longTitle := strings.Repeat("é", 150)

	engine.Evaluate("u1", longTitle, "héllo wörld")
	engine.Evaluate("u2", "second", "another document")
	engine.Evaluate("u3", "third", "yet another document")

	all := engine.Logs(0)
	require.Len(t, all, 3)
	assert.Equal(t, 100, len([]rune(all[0].Title)))
	assert.Equal(t, 11, all[0].ContentLength)

	last := engine.Logs(2)
	require.Len(t, last, 2)
	assert.Equal(t, "u2", last[0].URL)
	assert.Equal(t, "u3", last[1].URL)
}

func TestExportAndReadLogsRoundTrip(t *testing.T) {
	engine := newEngine(t, constantEmbedder())

	engine.Evaluate("u1", "Cats", "Cats are great pets and very friendly.")
	engine.Evaluate("u2", "Cats", "Cats are great pets and very friendly.")
	engine.Evaluate("u3", "Dogs", "Dogs need daily walks")

	path := filepath.Join(t.TempDir(), "similarity.json")
	require.NoError(t, engine.ExportLogs(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := similarity.ReadLogs(f)
	require.NoError(t, err)

	original := engine.Logs(0)
	require.Len(t, entries, len(original))
	for i := range original {
		assert.Equal(t, original[i].URL, entries[i].URL)
		assert.Equal(t, original[i].ContentLength, entries[i].ContentLength)
		assert.True(t, original[i].Timestamp.Equal(entries[i].Timestamp))
		assert.InDelta(t, original[i].Scores.MinHashMaxSimilarity, entries[i].Scores.MinHashMaxSimilarity, 1e-9)
		assert.Equal(t, original[i].Scores.SimHashMinDistance, entries[i].Scores.SimHashMinDistance)
		assert.InDelta(t, original[i].Scores.EmbeddingMaxSimilarity, entries[i].Scores.EmbeddingMaxSimilarity, 1e-9)
	}
}

func TestExportLogsPropagatesIOErrors(t *testing.T) {
	engine := newEngine(t, nil)
	engine.Evaluate("u1", "", "text")

	err := engine.ExportLogs(filepath.Join(t.TempDir(), "missing", "logs.json"))
	assert.Error(t, err)
}

func TestReadLogsRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"not an array", `{"url": "u1"}`},
		{"missing scores", `[{"url":"u1","title":"t","content_length":1,"timestamp":"2026-01-02T03:04:05Z"}]`},
		{"bad timestamp", `[{"url":"u1","title":"t","content_length":1,"timestamp":"yesterday","scores":{"minhash_max_similarity":0,"simhash_min_distance":64,"embedding_max_similarity":0,"embedding_enabled":false}}]`},
		{"distance out of range", `[{"url":"u1","title":"t","content_length":1,"timestamp":"2026-01-02T03:04:05Z","scores":{"minhash_max_similarity":0,"simhash_min_distance":65,"embedding_max_similarity":0,"embedding_enabled":false}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := similarity.ReadLogs(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestWriteLogsEmptyIsArray(t *testing.T) {
	engine := newEngine(t, nil)

	var buf bytes.Buffer
	require.NoError(t, engine.WriteLogs(&buf))
	assert.JSONEq(t, "[]", buf.String())
}

func TestAnalyzeAndCompare(t *testing.T) {
	engine := newEngine(t, constantEmbedder())

	engine.Evaluate("a", "", "solar panels cut household energy bills")
	engine.Evaluate("b", "", "the orchestra premiered a new symphony")

	// constant vectors make everything an embedding duplicate after the first
	dist := engine.Analyze()
	assert.Equal(t, 0, dist.MinHash.Count)
	assert.Equal(t, 0, dist.Embedding.Count)

	comparisons := engine.Compare("", "solar panels cut household energy bills")
	require.Len(t, comparisons, 1)
	assert.Equal(t, "a", comparisons[0].ID)
	assert.Equal(t, 1.0, comparisons[0].MinHash)
	assert.Equal(t, 0, comparisons[0].SimHashDistance)
	assert.True(t, comparisons[0].EmbeddingCompared)

	assert.Len(t, engine.Logs(0), 2, "compare does not log")
}

func TestAnalyzeDistribution(t *testing.T) {
	engine := newEngine(t, nil)

	engine.Evaluate("a", "", "solar panels cut household energy bills")
	engine.Evaluate("b", "", "the orchestra premiered a new symphony")
	engine.Evaluate("c", "", "volcanic eruption forces island evacuation")

	dist := engine.Analyze()
	assert.Equal(t, 3, dist.MinHash.Count)
	assert.Equal(t, 3, dist.SimHash.Count)
	assert.Equal(t, 0, dist.Embedding.Count)
	assert.LessOrEqual(t, dist.MinHash.Min, dist.MinHash.Avg)
	assert.LessOrEqual(t, dist.MinHash.Avg, dist.MinHash.Max)
}

func TestEmbeddingInfoAndLookup(t *testing.T) {
	engine := newEngine(t, constantEmbedder())

	info := engine.EmbeddingInfo()
	assert.True(t, info.Enabled)
	assert.Equal(t, similarity.DefaultEmbeddingModel, info.Model)
	assert.Equal(t, 0, info.Dimension)

	engine.Evaluate("u1", "Title", "body text")

	assert.Equal(t, 3, engine.EmbeddingInfo().Dimension)

	vector, ok := engine.EmbeddingOf("u1")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)

	_, ok = engine.EmbeddingOf("missing")
	assert.False(t, ok)
}

func TestConcurrentEvaluate(t *testing.T) {
	engine := newEngine(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.Evaluate(fmt.Sprintf("u%d", i), "", fmt.Sprintf("document number %d about topic %d", i, i%5))
		}(i)
	}
	wg.Wait()

	stats := engine.Stats()
	assert.Equal(t, 40, stats.UniqueCount+stats.TotalDuplicates)
}
