package scraper

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL with GET or HEAD and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Resolver discovers the privacy-policy URL for a site.
type Resolver interface {
	Resolve(ctx context.Context, site string) (string, error)
}

// Extractor pulls cleaned policy text out of a page.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// ResultSink receives the finished run.
type ResultSink interface {
	Write(ctx context.Context, report RunReport) error
}

// ResultStore persists individual results keyed by run.
type ResultStore interface {
	SaveResults(ctx context.Context, runID string, results []Result) error
}

// BlobStore writes output artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for pending sites.
type Queue interface {
	Enqueue(ctx context.Context, item SiteItem) error
	Dequeue(ctx context.Context) (SiteItem, error)
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests of extracted text.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// SiteItem wraps a site waiting for a worker.
type SiteItem struct {
	RunID string
	Index int
	Site  string
}
