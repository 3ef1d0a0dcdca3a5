package processor

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxEmbeddingChars caps the text handed to the embedding backend.
const MaxEmbeddingChars = 5000

var tagPattern = regexp.MustCompile(`<[^>]+>`)

var lower = cases.Lower(language.Und)

// Common English stopwords
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {}, "about": {},
	"as": {}, "to": {}, "from": {}, "of": {}, "that": {}, "this": {}, "is": {},
	"was": {}, "are": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "i": {},
	"you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
}

type ProcessorConfig struct {
	StripStopwords bool
	MaxLength      int
}

// Processor applies one fixed normalization profile.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	return Processor{
		config: config,
	}
}

// Shingling returns the profile used for MinHash and SimHash input.
func Shingling() Processor {
	return NewWithConfig(ProcessorConfig{StripStopwords: true})
}

// Embedding returns the profile used for embedding input.
func Embedding() Processor {
	return NewWithConfig(ProcessorConfig{MaxLength: MaxEmbeddingChars})
}

func (p Processor) Process(text string) string {
	cleaned := Normalize(text, p.config.StripStopwords)
	if p.config.MaxLength > 0 {
		cleaned = Truncate(cleaned, p.config.MaxLength)
	}
	return cleaned
}

// Normalize strips tags, lower-cases, drops everything except word
// characters, whitespace and ". , ! ?", and collapses whitespace. With
// stripStopwords set it also removes English stopword tokens.
func Normalize(text string, stripStopwords bool) string {
	if text == "" {
		return ""
	}

	text = tagPattern.ReplaceAllString(text, "")
	text = lower.String(text)
	text = strings.Map(keepRune, text)

	words := strings.Fields(text)
	if stripStopwords {
		words = removeStopwords(words)
	}

	return strings.Join(words, " ")
}

// Truncate returns at most n runes of text.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// IsStopword reports whether word belongs to the fixed stopword set.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

func keepRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), r == '_':
		return r
	case unicode.IsSpace(r):
		return ' '
	case r == '.', r == ',', r == '!', r == '?':
		return r
	}
	return -1
}

func removeStopwords(words []string) []string {
	filtered := words[:0]
	for _, word := range words {
		if !IsStopword(word) {
			filtered = append(filtered, word)
		}
	}
	return filtered
}
