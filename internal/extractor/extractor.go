// Package extractor turns a policy page into cleaned plain text.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/metrics"
	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// DefaultMaxLength is the character budget for extracted text.
const DefaultMaxLength = 50000

// DefaultStripTags are removed before any text is read.
var DefaultStripTags = []string{"script", "style", "nav", "header", "footer", "aside", "noscript"}

// DefaultContentSelectors are tried in order; the first with a match wins.
var DefaultContentSelectors = []string{
	"main",
	`[role="main"]`,
	".main-content",
	".content",
	".policy-content",
	".privacy-policy",
	".legal-content",
	"article",
	".container",
}

// DefaultFallbackTags are harvested when no content selector matches.
var DefaultFallbackTags = []string{
	"p", "div", "span", "article", "section",
	"h1", "h2", "h3", "h4", "h5", "h6", "li",
}

// Config controls extraction.
type Config struct {
	StripTags        []string
	ContentSelectors []string
	FallbackTags     []string
	MaxLength        int
	GetTimeout       time.Duration
}

// Extractor implements scraper.Extractor.
type Extractor struct {
	fetcher  scraper.Fetcher
	cfg      Config
	strip    string
	fallback string
	logger   *zap.Logger
}

// New builds an Extractor. Empty lists fall back to the defaults.
func New(fetcher scraper.Fetcher, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if fetcher == nil {
		return nil, errors.New("extractor requires a fetcher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	if len(cfg.StripTags) == 0 {
		cfg.StripTags = DefaultStripTags
	}
	if len(cfg.ContentSelectors) == 0 {
		cfg.ContentSelectors = DefaultContentSelectors
	}
	if len(cfg.FallbackTags) == 0 {
		cfg.FallbackTags = DefaultFallbackTags
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	return &Extractor{
		fetcher:  fetcher,
		cfg:      cfg,
		strip:    strings.Join(cfg.StripTags, ", "),
		fallback: strings.Join(cfg.FallbackTags, ", "),
		logger:   logger.Named("extractor"),
	}, nil
}

// Extract fetches url and returns its cleaned text. Fetch and parse failures
// are returned wrapped in scraper.ErrExtractionFailed. Empty text is not an
// error here; callers apply their own minimum length.
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	resp, err := e.fetcher.Fetch(ctx, scraper.FetchRequest{
		URL:     url,
		Method:  http.MethodGet,
		Timeout: e.cfg.GetTimeout,
	})
	if err != nil {
		e.logger.Warn("policy page fetch failed", zap.String("url", url), zap.Error(err))
		return "", fmt.Errorf("%w: %w", scraper.ErrExtractionFailed, err)
	}

	text, err := e.ExtractHTML(resp.Body)
	if err != nil {
		e.logger.Warn("policy page parse failed", zap.String("url", url), zap.Error(err))
		return "", err
	}

	chars := utf8.RuneCountInString(text)
	metrics.ObserveExtractedCharacters(chars)
	e.logger.Info("extracted policy text", zap.String("url", url), zap.Int("chars", chars))
	return text, nil
}

// ExtractHTML runs the cleaning pipeline over an already fetched document.
func (e *Extractor) ExtractHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", scraper.ErrExtractionFailed, scraper.ErrParse, err)
	}
	doc.Find(e.strip).Remove()

	raw, ok := e.mainContent(doc)
	if !ok {
		raw = e.fallbackContent(doc)
	}
	return Truncate(Normalize(raw), e.cfg.MaxLength), nil
}

// mainContent returns the longest node text of the first selector that
// matches anything, even when that text is empty.
func (e *Extractor) mainContent(doc *goquery.Document) (string, bool) {
	for _, selector := range e.cfg.ContentSelectors {
		matches := doc.Find(selector)
		if matches.Length() == 0 {
			continue
		}
		var best string
		bestLen := -1
		for _, n := range matches.Nodes {
			text := nodeText(n, "\n")
			if l := utf8.RuneCountInString(text); l > bestLen {
				best, bestLen = text, l
			}
		}
		return best, true
	}
	return "", false
}

func (e *Extractor) fallbackContent(doc *goquery.Document) string {
	var parts []string
	for _, n := range doc.Find(e.fallback).Nodes {
		if text := nodeText(n, ""); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
