// Package pipeline drives documents through fetching, near-duplicate
// detection and classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xhad/neardup/internal/models"
	"github.com/xhad/neardup/internal/types"
	"github.com/xhad/neardup/pkg/llm"
	"github.com/xhad/neardup/pkg/similarity"
	"golang.org/x/sync/errgroup"
)

const (
	// Shown for duplicates whose original has no cached classification.
	SummaryNotCached  = "(no summary cached)"
	CategoryNotCached = "(unknown)"
)

var errNoContent = errors.New("no content extracted")

type Config struct {
	// Concurrency bounds simultaneous fetches in Run.
	Concurrency int
	// Retries is the number of extra attempts for transient failures.
	Retries       int
	RetryInterval time.Duration
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Progress is reported before (Result nil) and after each document.
type Progress struct {
	Index  int
	Total  int
	URL    string
	Result *models.Result
}

type ProgressFunc func(Progress)

type Pipeline struct {
	config     Config
	runID      string
	logger     zerolog.Logger
	fetcher    types.Fetcher
	detector   types.Detector
	classifier types.Classifier
}

// New builds a pipeline. classifier may be nil, in which case every unique
// document is cached as llm.UnknownCategory.
func New(config Config, fetcher types.Fetcher, detector types.Detector, classifier types.Classifier) *Pipeline {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 500 * time.Millisecond
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}

	runID := uuid.NewString()
	return &Pipeline{
		config:     config,
		runID:      runID,
		logger:     config.Logger.With().Str("run_id", runID).Logger(),
		fetcher:    fetcher,
		detector:   detector,
		classifier: classifier,
	}
}

func (p *Pipeline) RunID() string {
	return p.runID
}

// ProcessURL fetches and processes a single URL. Failures are reported in
// the result, never as an error.
func (p *Pipeline) ProcessURL(ctx context.Context, url string) models.Result {
	doc, err := p.fetch(ctx, url)
	if err != nil {
		return p.failed(url, err)
	}
	return p.ProcessDocument(ctx, doc)
}

// ProcessDocument evaluates an already fetched document. Unique documents
// are classified and cached; duplicates inherit the classification of the
// document they duplicate.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc models.Document) models.Result {
	if doc.Title == "" && doc.Content == "" {
		return p.failed(doc.URL, errNoContent)
	}

	id := doc.ID
	if id == "" {
		id = doc.URL
	}

	result := models.Result{
		RunID:       p.runID,
		URL:         doc.URL,
		Title:       doc.Title,
		Content:     doc.Content,
		Language:    doc.Language,
		Status:      models.StatusSuccess,
		ProcessedAt: p.config.Now(),
	}

	verdict, scores := p.detector.Evaluate(id, doc.Title, doc.Content)
	result.MinHashScore = scores.MinHashMaxSimilarity
	result.SimHashScore = scores.SimHashMinDistance
	result.EmbeddingScore = scores.EmbeddingMaxSimilarity
	result.EmbeddingUsed = scores.EmbeddingEnabled

	if verdict.IsDuplicate {
		result.IsDuplicate = true
		result.DuplicateOf = verdict.MatchedID
		result.Method = string(verdict.Method)
		result.Similarity = verdict.Similarity

		if cached, ok := p.detector.CacheGet(verdict.MatchedID); ok {
			result.Category = cached.Category
			result.Summary = cached.Summary
		} else {
			result.Category = CategoryNotCached
			result.Summary = SummaryNotCached
		}
	} else {
		classification := p.classify(ctx, doc.Title, doc.Content)
		p.detector.CachePut(id, classification)
		result.Category = classification.Category
		result.Summary = classification.Summary
	}

	p.logger.Info().
		Str("url", doc.URL).
		Bool("duplicate", result.IsDuplicate).
		Str("method", result.Method).
		Str("duplicate_of", result.DuplicateOf).
		Str("category", result.Category).
		Msg("document processed")

	return result
}

// Run fetches urls concurrently but evaluates them strictly in input order,
// so verdicts do not depend on fetch timing. On cancellation it returns the
// results produced so far together with the context error.
func (p *Pipeline) Run(ctx context.Context, urls []string, progress ProgressFunc) ([]models.Result, error) {
	p.logger.Info().Int("total", len(urls)).Int("concurrency", p.config.Concurrency).Msg("starting run")
	start := time.Now()

	type fetched struct {
		doc models.Document
		err error
	}
	slots := make([]fetched, len(urls))
	ready := make([]chan struct{}, len(urls))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	go func() {
		for i, url := range urls {
			g.Go(func() error {
				defer close(ready[i])
				if gctx.Err() != nil {
					slots[i].err = gctx.Err()
					return nil
				}
				slots[i].doc, slots[i].err = p.fetch(gctx, url)
				return nil
			})
		}
	}()

	results := make([]models.Result, 0, len(urls))
	var runErr error
	for i, url := range urls {
		select {
		case <-ctx.Done():
		case <-ready[i]:
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		report(progress, Progress{Index: i, Total: len(urls), URL: url})

		var result models.Result
		if slots[i].err != nil {
			result = p.failed(url, slots[i].err)
		} else {
			result = p.ProcessDocument(ctx, slots[i].doc)
		}
		results = append(results, result)

		report(progress, Progress{Index: i, Total: len(urls), URL: url, Result: &result})
	}

	// Unblock fetchers still queued behind the limit.
	if runErr != nil {
		drain(ready)
	}
	_ = g.Wait()

	p.logger.Info().
		Int("processed", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("run finished")

	return results, runErr
}

// RunDocuments processes documents that were fetched elsewhere, in order.
func (p *Pipeline) RunDocuments(ctx context.Context, docs []models.Document, progress ProgressFunc) ([]models.Result, error) {
	results := make([]models.Result, 0, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		report(progress, Progress{Index: i, Total: len(docs), URL: doc.URL})
		result := p.ProcessDocument(ctx, doc)
		results = append(results, result)
		report(progress, Progress{Index: i, Total: len(docs), URL: doc.URL, Result: &result})
	}
	return results, nil
}

func (p *Pipeline) fetch(ctx context.Context, url string) (models.Document, error) {
	var doc models.Document
	err := backoff.Retry(func() error {
		d, err := p.fetcher.Fetch(ctx, url)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			p.logger.Debug().Err(err).Str("url", url).Msg("retrying fetch")
			return err
		}
		doc = d
		return nil
	}, p.backoff(ctx))
	if err != nil {
		return models.Document{}, err
	}
	if doc.Title == "" && doc.Content == "" {
		return models.Document{}, errNoContent
	}
	return doc, nil
}

// classify never fails: after retries the document is labelled Unknown
// with an empty summary.
func (p *Pipeline) classify(ctx context.Context, title, content string) similarity.Classification {
	unknown := similarity.Classification{Category: llm.UnknownCategory}
	if p.classifier == nil {
		return unknown
	}

	var classification similarity.Classification
	err := backoff.Retry(func() error {
		c, err := p.classifier.Classify(ctx, title, content)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		classification = c
		return nil
	}, p.backoff(ctx))
	if err != nil {
		p.logger.Warn().Err(err).Msg("LLM classification error")
		return unknown
	}
	return classification
}

func (p *Pipeline) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.config.RetryInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.config.Retries)), ctx)
}

func (p *Pipeline) failed(url string, err error) models.Result {
	message := ClassifyError(err)
	p.logger.Warn().Err(err).Str("url", url).Str("reason", message).Msg("document failed")

	return models.Result{
		RunID:        p.runID,
		URL:          url,
		Status:       models.StatusFailed,
		Error:        message,
		SimHashScore: 64,
		ProcessedAt:  p.config.Now(),
	}
}

func report(progress ProgressFunc, update Progress) {
	if progress != nil {
		progress(update)
	}
}

func drain(ready []chan struct{}) {
	for _, ch := range ready {
		<-ch
	}
}

// Describe renders a one-line status for a processed result.
func Describe(r models.Result) string {
	if !r.Succeeded() {
		return fmt.Sprintf("Failed (%s)", r.Error)
	}

	scores := fmt.Sprintf("MinHash: %.3f | SimHash: %d", r.MinHashScore, r.SimHashScore)
	if r.EmbeddingUsed {
		scores += fmt.Sprintf(" | Embedding: %.3f", r.EmbeddingScore)
	}

	if r.IsDuplicate {
		return fmt.Sprintf("DUPLICATE (%s) -> %s | %s", r.Method, r.DuplicateOf, scores)
	}
	return fmt.Sprintf("Success | Category: %s | %s", r.Category, scores)
}
