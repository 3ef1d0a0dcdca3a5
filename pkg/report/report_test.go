package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/neardup/internal/models"
	"github.com/xhad/neardup/pkg/similarity"
)

func TestReadURLs(t *testing.T) {
	input := "\uFEFFhttps://a.test/1\n\n# comment\n   https://a.test/2  \r\n#https://skipped\nhttps://a.test/3"

	urls, err := ReadURLs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/1", "https://a.test/2", "https://a.test/3"}, urls)
}

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.test/1\n"), 0o644))

	urls, err := ReadURLFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/1"}, urls)

	_, err = ReadURLFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func sampleResults() []models.Result {
	return []models.Result{
		{
			URL: "https://a.test/1", Title: "Cats", Content: "Cats are \"great\"\npets.", Language: "en",
			Status: models.StatusSuccess, Category: "Pets", Summary: "About cats.",
			MinHashScore: 0, SimHashScore: 64,
		},
		{
			URL: "https://a.test/2", Title: "Cats", Content: "Cats are great pets.",
			Status: models.StatusSuccess, Category: "Pets", Summary: "About cats.",
			MinHashScore: 1, SimHashScore: 16, EmbeddingScore: 0.9, IsDuplicate: true,
			DuplicateOf: "https://a.test/1", Method: "MinHash", Similarity: 1,
		},
		{URL: "https://a.test/3", Status: models.StatusFailed, Error: "Timeout error", SimHashScore: 64},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults(), true))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 4)

	assert.Equal(t, `"url","title","content","language","category","summary","minhash_score","simhash_score","embedding_score","is_duplicate","duplicate_of","method"`, lines[0])
	assert.Equal(t, `"https://a.test/1","Cats","Cats are ""great"" pets.","en","Pets","About cats.","0.0000","0.0000","0.0000","false","",""`, lines[1])
	assert.Equal(t, `"https://a.test/2","Cats","Cats are great pets.","","Pets","About cats.","1.0000","0.7500","0.9000","true","https://a.test/1","MinHash"`, lines[2])
	assert.Equal(t, `"https://a.test/3","","","","","","","","","false","",""`, lines[3])
}

func TestWriteCSVFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	results := sampleResults()

	require.NoError(t, WriteCSVFile(path, results[:1], true))
	require.NoError(t, WriteCSVFile(path, results[1:], true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), `"url","title"`))
	assert.Equal(t, 4, strings.Count(string(data), "\r\n"))

	require.NoError(t, WriteCSVFile(path, results[:1], false))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\r\n"))

	err = WriteCSVFile(filepath.Join(t.TempDir(), "missing", "out.csv"), results, false)
	assert.Error(t, err)
}

func TestWriteMarkdown(t *testing.T) {
	summary := Summary{
		RunID:   "run-1",
		Results: sampleResults(),
		Stats: similarity.Stats{
			UniqueCount:      1,
			TotalDuplicates:  1,
			TotalProcessed:   2,
			DetectionMethods: map[similarity.Method]int{similarity.MethodMinHash: 1},
			CategoryStats:    map[string]int{"Pets": 1},
			DuplicateRate:    0.5,
		},
		Distribution: similarity.Distribution{
			MinHash: similarity.Summary{Count: 3, Avg: 0.1, Min: 0, Max: 0.2},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, summary))
	out := buf.String()

	assert.Contains(t, out, "# Near-Duplicate Detection Report")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "## General Statistics")
	assert.Contains(t, out, "66.7%")
	assert.Contains(t, out, "## Similarity Analysis")
	assert.Contains(t, out, "mermaid")
	assert.Contains(t, out, "Pets")
	assert.Contains(t, out, "## Error Analysis")
	assert.Contains(t, out, "Timeout error")
	assert.Contains(t, out, "## Duplicate Content Found")
	assert.Contains(t, out, "https://a.test/1")
}

func TestWriteMarkdownEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, Summary{}))

	out := buf.String()
	assert.Contains(t, out, "No categorized content.")
	assert.Contains(t, out, "No duplicates detected.")
	assert.NotContains(t, out, "Error Analysis")
}
