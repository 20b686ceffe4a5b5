package scraper

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNormalizeSite verifies scheme handling and idempotence.
func TestNormalizeSite(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"example.com":              "https://example.com",
		"  example.com  ":          "https://example.com",
		"http://example.com":       "http://example.com",
		"https://example.com/path": "https://example.com/path",
		"HTTPS://Example.com":      "HTTPS://Example.com",
	}
	for in, want := range cases {
		got, err := NormalizeSite(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)

		again, err := NormalizeSite(got)
		require.NoError(t, err)
		require.Equal(t, got, again, "normalization must be idempotent for %q", in)
	}
}

// TestNormalizeSiteRejectsInvalidInput verifies empty and hostless inputs fail.
func TestNormalizeSiteRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "https://", "http://%zz"} {
		_, err := NormalizeSite(in)
		require.Error(t, err, in)
		require.True(t, errors.Is(err, ErrInvalidSite), in)
	}
}

func TestCompanyName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"example.com":                   "Example",
		"https://www.google.com":        "Google",
		"shop.example.co.uk":            "Example",
		"GITHUB.com":                    "Github",
		"unreachable.test":              "Unreachable",
		"http://127.0.0.1:8080/index":   "127.0.0.1",
		"https://policies.openai.com/x": "Openai",
		"localhost":                     "Localhost",
	}
	for in, want := range cases {
		require.Equal(t, want, CompanyName(in), in)
	}
}

func TestHasMinimumText(t *testing.T) {
	t.Parallel()

	require.False(t, HasMinimumText("", 100))
	require.False(t, HasMinimumText("   \n\t ", 1))
	require.False(t, HasMinimumText(strings.Repeat("a", 99), 100))
	require.True(t, HasMinimumText(strings.Repeat("a", 100), 100))
	require.True(t, HasMinimumText("  "+strings.Repeat("é", 100)+"  ", 100))
	require.False(t, HasMinimumText("  "+strings.Repeat("é", 99)+"  ", 100))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	now := time.Unix(100, 0)
	results := []Result{
		{Site: "a.com", Status: StatusSuccess, PolicyURL: "https://a.com/privacy", Text: "x", ScrapedAt: now},
		{Site: "b.com", Status: StatusPolicyNotFound, ScrapedAt: now},
		{Site: "c.com", Status: StatusTextExtractionFailed, PolicyURL: "https://c.com/privacy", ScrapedAt: now},
		{Site: "d.com", Status: ErrorStatus(errors.New("boom")), ScrapedAt: now},
	}

	s := Summarize(results)
	require.Equal(t, 4, s.Total)
	require.Equal(t, 1, s.Successful)
	require.Equal(t, 3, s.Failed)
	require.InDelta(t, 25.0, s.SuccessRate, 0.001)
	require.Equal(t, map[string]int{
		"success":                1,
		"policy_not_found":       1,
		"text_extraction_failed": 1,
		"error":                  1,
	}, s.ByStatus)
	require.Len(t, s.FailedSites, 3)
	require.Equal(t, Status("error: boom"), s.FailedSites[2].Status)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	require.Zero(t, s.Total)
	require.Zero(t, s.SuccessRate)
	require.Empty(t, s.FailedSites)
}

func TestErrorTypes(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: no such host")
	var transportErr *TransportError
	err := error(&TransportError{URL: "https://x.test", Err: cause})
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "https://x.test")

	var statusErr *HTTPStatusError
	err = error(&HTTPStatusError{URL: "https://x.test", StatusCode: 503})
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 503, statusErr.StatusCode)

	require.True(t, ErrorStatus(nil).IsError())
	require.Equal(t, "error", ErrorStatus(cause).Class())
	require.Equal(t, "success", StatusSuccess.Class())
}
