package extractor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

func newTestExtractor(t *testing.T, fetcher scraper.Fetcher, cfg Config) *Extractor {
	t.Helper()
	e, err := New(fetcher, cfg, zap.NewNop())
	require.NoError(t, err)
	return e
}

// TestExtractPrefersMainContent verifies the first matching selector wins over later ones.
func TestExtractPrefersMainContent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/privacy": `<html><body>
			<nav>Home | Privacy | Terms</nav>
			<div class="content">Sidebar content that is much longer than the main block text</div>
			<main>
				<h1>Privacy Policy</h1>
				<p>We collect   data.</p>
			</main>
			<footer>Copyright</footer>
		</body></html>`,
	}}

	got, err := newTestExtractor(t, fetcher, Config{}).Extract(context.Background(), "https://example.com/privacy")
	require.NoError(t, err)
	require.Equal(t, "Privacy Policy We collect data.", got)
}

func TestExtractStripsBoilerplateInsideMain(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, &fakeFetcher{}, Config{})
	got, err := e.ExtractHTML([]byte(`<main>
		<header>Site header</header>
		<script>var tracking = true;</script>
		<style>p { color: red }</style>
		<p>Policy body</p>
		<aside>Related links</aside>
		<noscript>Enable JS</noscript>
		<footer>Footer</footer>
	</main>`))
	require.NoError(t, err)
	require.Equal(t, "Policy body", got)
}

// TestExtractKeepsLongestMatch verifies the longest node of the winning selector is used.
func TestExtractKeepsLongestMatch(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, &fakeFetcher{}, Config{})
	got, err := e.ExtractHTML([]byte(`<body>
		<article>Short teaser</article>
		<article><h2>Privacy</h2><p>This is the full privacy statement.</p></article>
		<div class="container">Container text that should never be used at all</div>
	</body>`))
	require.NoError(t, err)
	require.Equal(t, "Privacy This is the full privacy statement.", got)
}

func TestExtractRoleMainSelector(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, &fakeFetcher{}, Config{})
	got, err := e.ExtractHTML([]byte(`<div role="main"><p>Role main text</p></div><article>Article</article>`))
	require.NoError(t, err)
	require.Equal(t, "Role main text", got)
}

// TestExtractFallbackTags covers pages without any content container.
func TestExtractFallbackTags(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, &fakeFetcher{}, Config{})
	got, err := e.ExtractHTML([]byte(`<body>
		<div><p>Alpha</p><p>Beta</p></div>
		<ul><li>Item</li></ul>
		<table><tr><td>ignored cell</td></tr></table>
	</body>`))
	require.NoError(t, err)
	require.Equal(t, "AlphaBeta Alpha Beta Item", got)
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, &fakeFetcher{}, Config{})
	got, err := e.ExtractHTML([]byte(`<html><head><title>x</title></head><body><script>1</script></body></html>`))
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestExtractEmptyMainDoesNotFallBack verifies a selector that matches only
// empty nodes yields empty text even when paragraphs exist elsewhere.
func TestExtractEmptyMainDoesNotFallBack(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, &fakeFetcher{}, Config{})
	got, err := e.ExtractHTML([]byte(`<html><body>
		<main>   </main>
		<p>` + strings.Repeat("policy text ", 20) + `</p>
	</body></html>`))
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestExtractTruncatesLongText verifies the truncation law through the full pipeline.
func TestExtractTruncatesLongText(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, &fakeFetcher{}, Config{MaxLength: 10})
	got, err := e.ExtractHTML([]byte(`<main><p>abcdefghijklmnop</p></main>`))
	require.NoError(t, err)
	require.Equal(t, "abcdefghij"+TruncationSuffix, got)

	long := strings.Repeat("x", DefaultMaxLength+500)
	e = newTestExtractor(t, &fakeFetcher{}, Config{})
	got, err = e.ExtractHTML([]byte(`<main>` + long + `</main>`))
	require.NoError(t, err)
	require.Equal(t, DefaultMaxLength+utf8.RuneCountInString(TruncationSuffix), utf8.RuneCountInString(got))
	require.True(t, strings.HasSuffix(got, TruncationSuffix))
}

func TestExtractFetchFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{errs: map[string]error{
		"https://example.com/privacy": &scraper.HTTPStatusError{URL: "https://example.com/privacy", StatusCode: 403},
	}}
	_, err := newTestExtractor(t, fetcher, Config{}).Extract(context.Background(), "https://example.com/privacy")
	require.ErrorIs(t, err, scraper.ErrExtractionFailed)
	var statusErr *scraper.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestNewRequiresFetcher(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{}, nil)
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"", ""},
		{"  plain  ", "plain"},
		{"a\n \n\nb\t\tc  ", "a b c"},
		{"para one\n\n\n\npara two", "para one para two"},
		{"non\u00a0\u00a0breaking", "non breaking"},
		{"em\u2003space\u3000ideo", "em space ideo"},
		{"line\r\nbreaks\vand\ftabs", "line breaks and tabs"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Normalize(tc.in), "%q", tc.in)
	}
}

// TestTruncate verifies the cut happens on characters, not bytes.
func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "héllo", Truncate("héllo", 5))
	require.Equal(t, "hé"+TruncationSuffix, Truncate("héllo", 2))
	require.Equal(t, "日本"+TruncationSuffix, Truncate("日本語", 2))
	require.Equal(t, "anything", Truncate("anything", 0))
	require.Equal(t, "", Truncate("", 3))
}

// --- fakes ---

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, req scraper.FetchRequest) (scraper.FetchResponse, error) {
	if err, ok := f.errs[req.URL]; ok {
		return scraper.FetchResponse{}, err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return scraper.FetchResponse{}, &scraper.TransportError{URL: req.URL, Err: errors.New("no such host")}
	}
	return scraper.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}
