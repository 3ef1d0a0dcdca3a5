package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/xhad/neardup/internal/models"
	"github.com/xhad/neardup/pkg/signature"
)

// Columns is the header row of the results CSV.
var Columns = []string{
	"url", "title", "content", "language", "category", "summary",
	"minhash_score", "simhash_score", "embedding_score",
	"is_duplicate", "duplicate_of", "method",
}

var controlReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// WriteCSV writes results with every field quoted. The simhash_score column
// holds the distance mapped onto [0,1].
func WriteCSV(w io.Writer, results []models.Result, header bool) error {
	bw := bufio.NewWriter(w)

	if header {
		writeRecord(bw, Columns)
	}
	for _, r := range results {
		writeRecord(bw, row(r))
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error writing CSV: %w", err)
	}
	return nil
}

// WriteCSVFile writes results to path. With appendMode set, rows are added to an
// existing file and the header is only written when the file is new.
func WriteCSVFile(path string, results []models.Result, appendMode bool) error {
	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("error checking CSV file %s: %w", path, statErr)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("error writing CSV file %s: %w", path, err)
	}

	if err := WriteCSV(f, results, !appendMode || !exists); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func row(r models.Result) []string {
	var minhash, simhash, embedding string
	if r.Succeeded() {
		minhash = formatScore(r.MinHashScore)
		simhash = formatScore(signature.DistanceSimilarity(r.SimHashScore))
		embedding = formatScore(r.EmbeddingScore)
	}

	return []string{
		r.URL,
		r.Title,
		r.Content,
		r.Language,
		r.Category,
		r.Summary,
		minhash,
		simhash,
		embedding,
		strconv.FormatBool(r.IsDuplicate),
		r.DuplicateOf,
		r.Method,
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// writeRecord quotes every field, doubling embedded quotes.
func writeRecord(w *bufio.Writer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		field = strings.TrimSpace(controlReplacer.Replace(field))
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(field, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteString("\r\n")
}
