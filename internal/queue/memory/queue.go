// Package memory provides the in-process site queue used by the dispatcher.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// Queue is a bounded in-memory queue with context-aware operations. Once
// closed, Dequeue keeps returning buffered items and then
// scraper.ErrQueueClosed.
type Queue struct {
	ch      chan scraper.SiteItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan scraper.SiteItem, capacity),
	}
}

// Enqueue pushes a site into the queue or returns if the context ends. A
// blocked Enqueue delays Close until it completes.
func (q *Queue) Enqueue(ctx context.Context, item scraper.SiteItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return fmt.Errorf("enqueue %s: %w", item.Site, scraper.ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next site, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (scraper.SiteItem, error) {
	select {
	case <-ctx.Done():
		return scraper.SiteItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return scraper.SiteItem{}, scraper.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports how many sites are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting new sites. Safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
