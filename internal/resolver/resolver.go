// Package resolver discovers the privacy-policy URL of a site. It scans the
// homepage anchors against an ordered pattern list and, failing that, probes
// well-known paths with HEAD requests.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/metrics"
	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// DefaultPatterns are tested in order against each anchor's href and text.
var DefaultPatterns = []string{
	`privacy[-_]?policy`,
	`privacy[-_]?statement`,
	`privacy[-_]?notice`,
	`data[-_]?protection`,
	`privacy`,
	`legal/privacy`,
	`about/privacy`,
	`support/privacy`,
}

// DefaultFallbackPaths are probed in order when no anchor matches.
var DefaultFallbackPaths = []string{
	"/privacy",
	"/privacy-policy",
	"/legal/privacy",
	"/privacy.html",
	"/privacy.php",
	"/privacy-statement",
	"/privacy-notice",
	"/about/privacy",
	"/support/privacy",
	"/terms-and-privacy",
	"/legal/privacy-policy",
}

var skippedSchemes = []string{"javascript:", "mailto:", "tel:"}

// Config controls discovery.
type Config struct {
	Patterns      []string
	FallbackPaths []string
	GetTimeout    time.Duration
	HeadTimeout   time.Duration
}

// Resolver implements scraper.Resolver.
type Resolver struct {
	fetcher  scraper.Fetcher
	patterns []*regexp.Regexp
	paths    []string
	cfg      Config
	logger   *zap.Logger
}

// New compiles the configured patterns. Empty lists fall back to the defaults.
func New(fetcher scraper.Fetcher, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if fetcher == nil {
		return nil, errors.New("resolver requires a fetcher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}
	if len(cfg.FallbackPaths) == 0 {
		cfg.FallbackPaths = DefaultFallbackPaths
	}
	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Resolver{
		fetcher:  fetcher,
		patterns: patterns,
		paths:    append([]string(nil), cfg.FallbackPaths...),
		cfg:      cfg,
		logger:   logger.Named("resolver"),
	}, nil
}

// Resolve returns the absolute policy URL for site. It returns an error
// wrapping scraper.ErrPolicyNotFound when nothing is found, including when
// the homepage itself cannot be fetched or the site cannot be turned into a
// URL. Only cancellation is reported as another error.
func (r *Resolver) Resolve(ctx context.Context, site string) (string, error) {
	base, err := scraper.NormalizeSite(site)
	if err != nil {
		r.logger.Warn("invalid site", zap.String("site", site), zap.Error(err))
		return "", fmt.Errorf("%w: %w", scraper.ErrPolicyNotFound, err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		r.logger.Warn("invalid site", zap.String("site", site), zap.Error(err))
		return "", fmt.Errorf("%w: %w: %w", scraper.ErrPolicyNotFound, scraper.ErrInvalidSite, err)
	}

	resp, err := r.fetcher.Fetch(ctx, scraper.FetchRequest{
		URL:     base,
		Method:  http.MethodGet,
		Timeout: r.cfg.GetTimeout,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("resolve %s: %w", site, ctxErr)
		}
		r.logger.Warn("homepage fetch failed", zap.String("site", site), zap.String("url", base), zap.Error(err))
		return "", fmt.Errorf("%w: fetch homepage: %w", scraper.ErrPolicyNotFound, err)
	}

	if link, ok := r.matchAnchors(resp.Body, baseURL); ok {
		r.logger.Info("found privacy policy link",
			zap.String("site", site),
			zap.String("url", link),
			zap.String("source", "anchor"),
		)
		return link, nil
	}

	link, err := r.probeFallbacks(ctx, baseURL)
	if err != nil {
		return "", err
	}
	if link != "" {
		r.logger.Info("found privacy policy link",
			zap.String("site", site),
			zap.String("url", link),
			zap.String("source", "fallback"),
		)
		return link, nil
	}
	return "", scraper.ErrPolicyNotFound
}

// matchAnchors walks a[href] in document order and returns the first anchor
// whose href or text matches any pattern.
func (r *Resolver) matchAnchors(body []byte, base *url.URL) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		r.logger.Debug("homepage parse failed", zap.String("url", base.String()), zap.Error(err))
		return "", false
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		rawHref, _ := a.Attr("href")
		href := strings.ToLower(strings.TrimSpace(rawHref))
		if href == "" || hasSkippedScheme(href) {
			return true
		}
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		if !r.matches(href, text) {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(rawHref))
		if err != nil {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})
	return found, found != ""
}

func (r *Resolver) matches(href, text string) bool {
	for _, re := range r.patterns {
		if re.MatchString(href) || re.MatchString(text) {
			return true
		}
	}
	return false
}

// probeFallbacks issues HEAD requests in configured order. Any error or
// non-200 answer counts as a miss.
func (r *Resolver) probeFallbacks(ctx context.Context, base *url.URL) (string, error) {
	for _, path := range r.paths {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("probe fallbacks: %w", err)
		}
		ref, err := url.Parse(path)
		if err != nil {
			continue
		}
		candidate := base.ResolveReference(ref).String()
		resp, err := r.fetcher.Fetch(ctx, scraper.FetchRequest{
			URL:     candidate,
			Method:  http.MethodHead,
			Timeout: r.cfg.HeadTimeout,
		})
		if err != nil || resp.StatusCode != http.StatusOK {
			metrics.ObserveProbe("miss")
			continue
		}
		metrics.ObserveProbe("hit")
		return candidate, nil
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("probe fallbacks: %w", err)
	}
	return "", nil
}

func hasSkippedScheme(href string) bool {
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(href, scheme) {
			return true
		}
	}
	return false
}
