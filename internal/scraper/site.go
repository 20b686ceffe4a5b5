package scraper

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

// NormalizeSite turns a bare domain into an https URL. Inputs that already
// carry an http:// or https:// scheme are returned unchanged.
func NormalizeSite(site string) (string, error) {
	trimmed := strings.TrimSpace(site)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSite)
	}
	normalized := trimmed
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		normalized = "https://" + trimmed
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidSite, site, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidSite, site)
	}
	return normalized, nil
}

// CompanyName derives a display name from the registrable domain of site,
// e.g. "www.example.co.uk" becomes "Example". IP hosts are returned verbatim.
func CompanyName(site string) string {
	host := hostOf(site)
	if host == "" {
		return strings.TrimSpace(site)
	}
	if net.ParseIP(host) != nil {
		return host
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	label, _, _ := strings.Cut(registrable, ".")
	return capitalize(label)
}

func hostOf(site string) string {
	normalized, err := NormalizeSite(site)
	if err != nil {
		return ""
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
