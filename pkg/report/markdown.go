package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/xhad/neardup/internal/models"
	"github.com/xhad/neardup/pkg/similarity"
)

// Summary is everything the markdown report is built from.
type Summary struct {
	RunID        string
	Results      []models.Result
	Stats        similarity.Stats
	Distribution similarity.Distribution
}

// WriteMarkdown renders the run summary report.
func WriteMarkdown(w io.Writer, s Summary) error {
	md := markdown.NewMarkdown(w)

	md.H1("Near-Duplicate Detection Report")
	md.PlainText("")
	if s.RunID != "" {
		md.PlainTextf("Run `%s`", s.RunID)
		md.PlainText("")
	}

	writeGeneral(md, s.Results)
	writeSimilarity(md, s.Stats, s.Distribution)
	writeCategories(md, s.Stats)
	writeErrors(md, s.Results)
	writeDuplicates(md, s.Results)

	return md.Build()
}

func writeGeneral(md *markdown.Markdown, results []models.Result) {
	total := len(results)
	successful := 0
	for _, r := range results {
		if r.Succeeded() {
			successful++
		}
	}

	rate := 0.0
	if total > 0 {
		rate = float64(successful) / float64(total) * 100
	}

	md.H2("General Statistics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Total URLs processed", strconv.Itoa(total)},
			{"Successful extractions", strconv.Itoa(successful)},
			{"Failed extractions", strconv.Itoa(total - successful)},
			{"Success rate", fmt.Sprintf("%.1f%%", rate)},
		},
	})
	md.PlainText("")
}

func writeSimilarity(md *markdown.Markdown, stats similarity.Stats, dist similarity.Distribution) {
	md.H2("Similarity Analysis")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Unique content", strconv.Itoa(stats.UniqueCount)},
			{"Duplicate content", strconv.Itoa(stats.TotalDuplicates)},
			{"Total processed", strconv.Itoa(stats.TotalProcessed)},
			{"Duplicate rate", fmt.Sprintf("%.1f%%", stats.DuplicateRate*100)},
			{"Embeddings stored", strconv.Itoa(stats.EmbeddingCount)},
		},
	})
	md.PlainText("")

	if stats.TotalDuplicates > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Detection Methods"),
			piechart.WithShowData(true),
		)
		for _, method := range []similarity.Method{similarity.MethodEmbedding, similarity.MethodMinHash, similarity.MethodSimHash} {
			if n := stats.DetectionMethods[method]; n > 0 {
				chart.LabelAndIntValue(string(method), uint64(n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	md.H3("Pairwise Score Distribution")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Signal", "Pairs", "Avg", "Min", "Max"},
		Rows: [][]string{
			summaryRow("MinHash similarity", dist.MinHash),
			summaryRow("SimHash distance", dist.SimHash),
			summaryRow("Embedding similarity", dist.Embedding),
		},
	})
	md.PlainText("")
}

func summaryRow(label string, s similarity.Summary) []string {
	return []string{
		label,
		strconv.Itoa(s.Count),
		fmt.Sprintf("%.3f", s.Avg),
		fmt.Sprintf("%.3f", s.Min),
		fmt.Sprintf("%.3f", s.Max),
	}
}

func writeCategories(md *markdown.Markdown, stats similarity.Stats) {
	md.H2("Content by Category")
	md.PlainText("")

	if len(stats.CategoryStats) == 0 {
		md.PlainText("No categorized content.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(stats.CategoryStats))
	for _, category := range slices.Sorted(maps.Keys(stats.CategoryStats)) {
		rows = append(rows, []string{category, strconv.Itoa(stats.CategoryStats[category])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Unique URLs"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeErrors(md *markdown.Markdown, results []models.Result) {
	counts := make(map[string]int)
	for _, r := range results {
		if !r.Succeeded() && r.Error != "" {
			counts[r.Error]++
		}
	}
	if len(counts) == 0 {
		return
	}

	md.H2("Error Analysis")
	md.PlainText("")

	rows := make([][]string, 0, len(counts))
	for _, reason := range slices.Sorted(maps.Keys(counts)) {
		rows = append(rows, []string{reason, strconv.Itoa(counts[reason])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Error", "Occurrences"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeDuplicates(md *markdown.Markdown, results []models.Result) {
	var rows [][]string
	for _, r := range results {
		if r.IsDuplicate {
			rows = append(rows, []string{r.URL, r.DuplicateOf, r.Method, fmt.Sprintf("%.3f", r.Similarity), r.Category})
		}
	}

	md.H2("Duplicate Content Found")
	md.PlainText("")
	if len(rows) == 0 {
		md.Note("No duplicates detected.")
		md.PlainText("")
		return
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Original", "Method", "Similarity", "Category"},
		Rows:   rows,
	})
	md.PlainText("")
}
