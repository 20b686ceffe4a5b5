// Package collyfetcher implements scraper.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/metrics"
	"github.com/msnabiel/privacy-policy/internal/scraper"
)

const (
	defaultGetTimeout  = 15 * time.Second
	defaultHeadTimeout = 10 * time.Second
	maxRedirects       = 10
)

// DefaultUserAgent mimics a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultHeaders is the browser-like header set sent with every request.
var DefaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Connection":      "keep-alive",
}

// Config controls collector behavior. It is built once and shared by every
// worker.
type Config struct {
	UserAgent   string
	Headers     map[string]string
	GetTimeout  time.Duration
	HeadTimeout time.Duration
	MaxBodySize int
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithTransport overrides the keep-alive transport shared by all requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.transport = rt
	}
}

// WithLimiter throttles every request through l before it is sent.
func WithLimiter(l scraper.Limiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fetcher implements scraper.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	limiter       scraper.Limiter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	metrics.Init()
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders
	}
	if cfg.GetTimeout <= 0 {
		cfg.GetTimeout = defaultGetTimeout
	}
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = defaultHeadTimeout
	}

	f := &Fetcher{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = newHTTPTransport()
	}

	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = cfg.UserAgent
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.DisableCookies()
	c.WithTransport(f.transport)
	c.SetRedirectHandler(redirectPolicy)
	// Per-request deadlines come from the request context; the client-wide
	// timeout is only a backstop.
	c.SetRequestTimeout(max(cfg.GetTimeout, cfg.HeadTimeout))
	f.baseCollector = c
	return f
}

// Fetch executes a single HTTP GET or HEAD using Colly. GET answers outside
// 2xx are returned as *scraper.HTTPStatusError; HEAD answers are returned
// whatever their status. Network failures and timeouts surface as
// *scraper.TransportError.
func (f *Fetcher) Fetch(ctx context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		return scraper.FetchResponse{}, fmt.Errorf("unsupported method %q", method)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeoutFor(method, request.Timeout))
	defer cancel()

	if f.limiter != nil {
		if err := f.limiter.Wait(reqCtx, request.URL); err != nil {
			return scraper.FetchResponse{}, &scraper.TransportError{URL: request.URL, Err: err}
		}
	}

	var (
		result   scraper.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(reqCtx, request, start, &result, &fetchErr)

	if err := f.runCollector(reqCtx, collector, method, request.URL, &fetchErr); err != nil {
		metrics.ObserveFetch(request.URL, method, 0, 0, time.Since(start))
		f.logger.Debug("fetch failed",
			zap.String("method", method),
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return scraper.FetchResponse{}, &scraper.TransportError{URL: request.URL, Err: err}
	}
	metrics.ObserveFetch(request.URL, method, result.StatusCode, len(result.Body), result.Duration)

	if method == http.MethodGet && (result.StatusCode < 200 || result.StatusCode > 299) {
		return result, &scraper.HTTPStatusError{URL: request.URL, StatusCode: result.StatusCode}
	}
	return result, nil
}

// redirectPolicy leaves HEAD answers unfollowed so callers see the 3xx the
// URL itself returned. GET follows up to maxRedirects hops.
func redirectPolicy(_ *http.Request, via []*http.Request) error {
	if len(via) > 0 && via[0].Method == http.MethodHead {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

func (f *Fetcher) timeoutFor(method string, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if method == http.MethodHead {
		return f.cfg.HeadTimeout
	}
	return f.cfg.GetTimeout
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request scraper.FetchRequest,
	start time.Time,
	result *scraper.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request scraper.FetchRequest,
	start time.Time,
	result *scraper.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		finalURL := request.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		*result = scraper.FetchResponse{
			URL:        request.URL,
			FinalURL:   finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method string,
	url string,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		if method == http.MethodHead {
			done <- collector.Head(url)
			return
		}
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, value := range f.cfg.Headers {
		r.Headers.Set(key, value)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
