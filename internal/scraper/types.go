package scraper

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the terminal outcome recorded for a site.
type Status string

// Terminal statuses written to the status column.
const (
	StatusSuccess              Status = "success"
	StatusPolicyNotFound       Status = "policy_not_found"
	StatusTextExtractionFailed Status = "text_extraction_failed"
	statusErrorPrefix                 = "error: "
)

// ErrorStatus builds the status recorded for a site whose worker faulted.
func ErrorStatus(err error) Status {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Status(statusErrorPrefix + msg)
}

// IsError reports whether s is an "error: <message>" status.
func (s Status) IsError() bool {
	return strings.HasPrefix(string(s), statusErrorPrefix)
}

// Class collapses error statuses into a single "error" label so the value is
// safe to use as a metric label.
func (s Status) Class() string {
	if s.IsError() {
		return "error"
	}
	return string(s)
}

// Result is the terminal record produced exactly once per input site.
type Result struct {
	Company   string    `json:"company"`
	Site      string    `json:"site"`
	PolicyURL string    `json:"policy_url"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// TextLength returns the length of the extracted text in characters.
func (r Result) TextLength() int {
	return utf8.RuneCountInString(r.Text)
}

// Succeeded reports whether the record satisfies the success invariant: a
// policy URL plus trimmed text of at least minLength characters.
func (r Result) Succeeded(minLength int) bool {
	return r.PolicyURL != "" && HasMinimumText(r.Text, minLength)
}

// HasMinimumText reports whether text, once trimmed, holds at least
// minLength characters.
func HasMinimumText(text string, minLength int) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	return utf8.RuneCountInString(trimmed) >= minLength
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Method  string
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Summary aggregates a run's results by status.
type Summary struct {
	Total       int            `json:"total"`
	Successful  int            `json:"successful"`
	Failed      int            `json:"failed"`
	SuccessRate float64        `json:"success_rate"`
	ByStatus    map[string]int `json:"by_status"`
	FailedSites []Result       `json:"-"`
}

// Summarize derives the run summary from results.
func Summarize(results []Result) Summary {
	s := Summary{
		Total:    len(results),
		ByStatus: make(map[string]int),
	}
	for _, r := range results {
		s.ByStatus[r.Status.Class()]++
		if r.Status == StatusSuccess {
			s.Successful++
			continue
		}
		s.FailedSites = append(s.FailedSites, r)
	}
	s.Failed = s.Total - s.Successful
	if s.Total > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.Total) * 100
	}
	return s
}

// RunReport is the complete output of one batch run handed to sinks.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
	Summary    Summary
}
