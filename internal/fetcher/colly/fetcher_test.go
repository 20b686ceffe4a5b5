package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// TestFetchGetSendsBrowserHeaders verifies a GET carries the configured header set.
func TestFetchGetSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	seen := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html><body>hello</body></html>", string(resp.Body))
	require.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
	require.Equal(t, srv.URL+"/", resp.URL)

	got := <-seen
	require.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	require.Equal(t, DefaultHeaders["Accept"], got.Get("Accept"))
	require.Equal(t, "en-US,en;q=0.5", got.Get("Accept-Language"))
}

// TestFetchGetNon2xxReturnsStatusError ensures GET failures carry the status code.
func TestFetchGetNon2xxReturnsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/missing"})
	var statusErr *scraper.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

// TestFetchHeadReturnsAnyStatus verifies HEAD answers are surfaced without error.
func TestFetchHeadReturnsAnyStatus(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.URL.Path == "/privacy" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/privacy", Method: http.MethodHead})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/nope", Method: http.MethodHead})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{http.MethodHead, http.MethodHead}, methods)
}

// TestFetchRepeatedURL ensures the same URL can be fetched more than once.
func TestFetchRepeatedURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL})
		require.NoError(t, err)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/old"})
	require.NoError(t, err)
	require.Equal(t, "moved", string(resp.Body))
	require.Equal(t, srv.URL+"/new", resp.FinalURL)
	require.Equal(t, srv.URL+"/old", resp.URL)
}

// TestFetchHeadDoesNotFollowRedirects verifies HEAD reports the raw 3xx while
// GET on the same URL lands on the redirect target.
func TestFetchHeadDoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var landed []string
	mux := http.NewServeMux()
	mux.HandleFunc("/privacy", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		landed = append(landed, r.Method)
		mu.Unlock()
		_, _ = w.Write([]byte("home"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/privacy", Method: http.MethodHead})
	require.NoError(t, err)
	require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)

	resp, err = f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/privacy", Method: http.MethodGet})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, srv.URL+"/home", resp.FinalURL)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{http.MethodGet}, landed)
}

// TestRedirectPolicy verifies the hop limit for GET and the HEAD cutoff.
func TestRedirectPolicy(t *testing.T) {
	t.Parallel()

	head, err := http.NewRequest(http.MethodHead, "http://example.com/privacy", nil)
	require.NoError(t, err)
	get, err := http.NewRequest(http.MethodGet, "http://example.com/privacy", nil)
	require.NoError(t, err)

	require.ErrorIs(t, redirectPolicy(get, []*http.Request{head}), http.ErrUseLastResponse)
	require.NoError(t, redirectPolicy(get, []*http.Request{get}))

	via := make([]*http.Request, maxRedirects)
	for i := range via {
		via[i] = get
	}
	require.ErrorIs(t, redirectPolicy(get, via), http.ErrUseLastResponse)
}

// TestFetchTimeout verifies the per-request timeout surfaces as a transport error.
func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	start := time.Now()
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL, Timeout: 50 * time.Millisecond})
	var transportErr *scraper.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Less(t, time.Since(start), time.Second)
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: addr})
	var transportErr *scraper.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, addr, transportErr.URL)
}

func TestFetchRejectsUnsupportedMethod(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://example.com", Method: http.MethodPost})
	require.Error(t, err)
}

// TestFetchWaitsOnLimiter ensures the limiter gates the request.
func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	limiter := &fakeLimiter{}
	f := New(Config{}, WithLimiter(limiter))
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL}, limiter.calls)

	limiter.err = errors.New("throttled")
	_, err = f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL})
	var transportErr *scraper.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, limiter.err)
}

func TestTimeoutFor(t *testing.T) {
	t.Parallel()

	f := New(Config{GetTimeout: 15 * time.Second, HeadTimeout: 7 * time.Second})
	require.Equal(t, 15*time.Second, f.timeoutFor(http.MethodGet, 0))
	require.Equal(t, 7*time.Second, f.timeoutFor(http.MethodHead, 0))
	require.Equal(t, time.Second, f.timeoutFor(http.MethodHead, time.Second))

	defaults := New(Config{})
	require.Equal(t, defaultGetTimeout, defaults.timeoutFor(http.MethodGet, 0))
	require.Equal(t, defaultHeadTimeout, defaults.timeoutFor(http.MethodHead, 0))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: map[string]string{"X-Trace": "yes"}})
	req := scraper.FetchRequest{URL: "https://example.com"}
	start := time.Unix(0, 0)
	var result scraper.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/final"),
		},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))
	require.Equal(t, "https://example.com/final", result.FinalURL)
	require.Equal(t, "https://example.com", result.URL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

type fakeLimiter struct {
	calls []string
	err   error
}

func (l *fakeLimiter) Wait(_ context.Context, url string) error {
	l.calls = append(l.calls, url)
	return l.err
}
