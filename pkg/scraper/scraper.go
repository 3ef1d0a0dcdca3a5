package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/xhad/neardup/internal/models"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	bodyByteLimit    = 5 * 1024 * 1024
)

// ErrInvalidURL is returned for URLs without a scheme or host.
var ErrInvalidURL = errors.New("invalid URL format")

// HTTPError reports a non-200 response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("received status code %d for URL: %s", e.StatusCode, e.URL)
}

// Temporary reports whether retrying the request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type ScraperConfig struct {
	MaxDepth          int
	MaxPages          int
	RateLimit         float64 // requests per second
	UserAgent         string
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
	Logger            zerolog.Logger
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.MaxPages == 0 {
		config.MaxPages = 100
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10 // 10 requests per second by default
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative")
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  config.Logger,
	}, nil
}

func New() *Scraper {
	s, _ := NewWithConfig(ScraperConfig{})
	return s
}

// ValidURL reports whether raw has both a scheme and a host.
func ValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Fetch downloads one page and extracts its title, readable text and
// language.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	document, _, err := s.fetchPage(ctx, rawURL)
	return document, err
}

func (s *Scraper) fetchPage(ctx context.Context, rawURL string) (models.Document, *goquery.Document, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !ValidURL(rawURL) {
		return models.Document{}, nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return models.Document{}, nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Document{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Document{}, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Document{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyByteLimit))
	if err != nil {
		return models.Document{}, nil, fmt.Errorf("read body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.Document{}, nil, fmt.Errorf("parse html: %w", err)
	}

	title := cleanText(doc.Find("title").First().Text())
	if title == "" {
		title = cleanText(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	}

	content := s.extractArticle(body, pageURL)
	if content == "" {
		content = s.extractMainContent(doc)
	}

	document := models.Document{
		ID:       rawURL,
		URL:      rawURL,
		Title:    title,
		Content:  content,
		Language: DetectLanguage(title + " " + content),
		Metadata: map[string]interface{}{
			"time":         time.Now().UTC(),
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}
	return document, doc, nil
}

// extractArticle runs readability over the raw page. An empty result means
// the caller should fall back to selector based extraction.
func (s *Scraper) extractArticle(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", pageURL.String()).Msg("readability parse failed")
		return ""
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		s.logger.Debug().Err(err).Str("url", pageURL.String()).Msg("readability render failed")
		return ""
	}

	if text := s.cleanContent(rendered.String()); text != "" {
		return text
	}
	return s.cleanContent(article.Excerpt())
}

func (s *Scraper) shouldProcessURL(urlStr, baseHost string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != baseHost {
		return false
	}

	// Check extensions
	ext := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(ext, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (s *Scraper) cleanContent(content string) string {
	// Remove extra whitespace
	content = cleanText(content)

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		body := doc.Find("body").Clone()
		body.Find("script, style, nav, footer, header, noscript").Remove()
		content = body.Text()
	}

	return s.cleanContent(content)
}

// Crawl fetches seed and follows same-host links up to MaxDepth, returning
// at most MaxPages documents in discovery order. Failures below the seed
// are logged and skipped.
func (s *Scraper) Crawl(ctx context.Context, seed string) ([]models.Document, error) {
	seedURL, err := url.Parse(strings.TrimSpace(seed))
	if err != nil || !ValidURL(seed) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, seed)
	}

	c := &crawl{
		scraper:  s,
		baseHost: seedURL.Host,
		visited:  make(map[string]bool),
	}
	if err := c.visit(ctx, seedURL.String(), 0); err != nil {
		return nil, err
	}
	return c.documents, nil
}

type crawl struct {
	scraper   *Scraper
	baseHost  string
	visited   map[string]bool
	documents []models.Document
}

func (c *crawl) visit(ctx context.Context, urlStr string, depth int) error {
	s := c.scraper
	if depth > s.config.MaxDepth || c.visited[urlStr] || len(c.documents) >= s.config.MaxPages {
		return nil
	}
	if !s.shouldProcessURL(urlStr, c.baseHost) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	document, doc, err := s.fetchPage(ctx, urlStr)
	if err != nil {
		return err
	}
	document.Metadata["depth"] = depth
	c.documents = append(c.documents, document)

	base, err := url.Parse(urlStr)
	if err != nil {
		return nil
	}

	// Find and follow links
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			s.logger.Debug().Err(err).Str("href", href).Msg("skipping unparsable link")
			return
		}
		link = base.ResolveReference(link)
		link.Fragment = ""
		links = append(links, link.String())
	})

	for _, link := range links {
		if err := c.visit(ctx, link, depth+1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Str("url", link).Msg("error scraping URL")
		}
	}
	return nil
}
