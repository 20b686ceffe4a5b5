// Package worker runs the per-site pipeline: courtesy delay, policy URL
// resolution, text extraction, and mapping of every outcome to exactly one
// terminal result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/clock/system"
	"github.com/msnabiel/privacy-policy/internal/metrics"
	"github.com/msnabiel/privacy-policy/internal/progress"
	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// DefaultMinTextLength is the trimmed character count a policy needs to count
// as a success.
const DefaultMinTextLength = 100

// Config controls Worker behavior.
type Config struct {
	// DelayMin and DelayMax bound the random pause before each site. Both
	// zero disables the pause.
	DelayMin time.Duration
	DelayMax time.Duration
	// MinTextLength defaults to DefaultMinTextLength when not positive.
	MinTextLength int
}

// Worker consumes queued sites and produces one scraper.Result per site.
type Worker struct {
	resolver  scraper.Resolver
	extractor scraper.Extractor
	clock     scraper.Clock
	emitter   progress.Emitter
	cfg       Config
	logger    *zap.Logger
	jitter    func(n int64) int64
}

// New constructs a Worker. A nil clock uses the system clock and a nil
// emitter discards progress events.
func New(
	resolver scraper.Resolver,
	extractor scraper.Extractor,
	clock scraper.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	metrics.Init()
	return &Worker{
		resolver:  resolver,
		extractor: extractor,
		clock:     clock,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger.Named("worker"),
		jitter:    rand.Int64N,
	}
}

// Run blocks, consuming queue items until the queue is closed and drained or
// the context finishes. Each processed site is sent to results, which must be
// buffered or actively drained.
func (w *Worker) Run(ctx context.Context, queue scraper.Queue, results chan<- scraper.Result) {
	for {
		item, err := queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, scraper.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued site", zap.String("site", item.Site), zap.Int("index", item.Index))
		results <- w.Process(ctx, item)
	}
}

// Process runs one site through the pipeline. It never fails: every fault,
// including a panic in a collaborator, is recorded in the returned status.
func (w *Worker) Process(ctx context.Context, item scraper.SiteItem) (result scraper.Result) {
	start := time.Now()
	runID, err := progress.ParseRunID(item.RunID)
	if err != nil {
		runID = [16]byte{}
	}
	result = scraper.Result{Site: item.Site}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("site worker panicked", zap.String("site", item.Site), zap.Any("panic", r))
			result = errored(result, fmt.Errorf("panic: %v", r))
		}
		result.ScrapedAt = w.clock.Now()
		metrics.ObserveSite(result.Status.Class())
		evt := progress.Event{
			RunID:   runID,
			Stage:   progress.StageSiteDone,
			Site:    item.Site,
			URL:     result.PolicyURL,
			Outcome: result.Status.Class(),
			Chars:   int64(result.TextLength()),
			Dur:     time.Since(start),
		}
		if result.Status.IsError() {
			evt.Note = string(result.Status)
		}
		w.emit(evt)
	}()

	result.Company = scraper.CompanyName(item.Site)
	w.emit(progress.Event{RunID: runID, Stage: progress.StageSiteStart, Site: item.Site})
	w.logger.Info("processing site", zap.String("site", item.Site), zap.Int("index", item.Index))
	return w.process(ctx, runID, result)
}

func (w *Worker) process(ctx context.Context, runID [16]byte, result scraper.Result) scraper.Result {
	site := result.Site
	if err := w.courtesyDelay(ctx); err != nil {
		w.logger.Warn("courtesy delay interrupted", zap.String("site", site), zap.Error(err))
		return errored(result, err)
	}

	policyURL, err := w.resolver.Resolve(ctx, site)
	switch {
	case err == nil:
	case errors.Is(err, scraper.ErrPolicyNotFound):
		w.logger.Info("privacy policy not found", zap.String("site", site), zap.Error(err))
		result.Status = scraper.StatusPolicyNotFound
		return result
	default:
		w.logger.Error("resolve policy url failed", zap.String("site", site), zap.Error(err))
		return errored(result, err)
	}
	result.PolicyURL = policyURL
	w.emit(progress.Event{RunID: runID, Stage: progress.StageSiteResolved, Site: site, URL: policyURL})

	text, err := w.extractor.Extract(ctx, policyURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errored(result, ctxErr)
		}
		if !errors.Is(err, scraper.ErrExtractionFailed) {
			w.logger.Error("extract policy text failed", zap.String("site", site), zap.String("url", policyURL), zap.Error(err))
			return errored(result, err)
		}
		w.logger.Warn("could not extract policy text",
			zap.String("site", site),
			zap.String("url", policyURL),
			zap.Error(err),
		)
		result.Status = scraper.StatusTextExtractionFailed
		return result
	}

	if !scraper.HasMinimumText(text, w.cfg.MinTextLength) {
		w.logger.Warn("could not extract meaningful text",
			zap.String("site", site),
			zap.String("url", policyURL),
			zap.Error(fmt.Errorf("%w: %d characters", scraper.ErrShortContent, utf8.RuneCountInString(strings.TrimSpace(text)))),
		)
		result.Status = scraper.StatusTextExtractionFailed
		return result
	}

	result.Text = text
	result.Status = scraper.StatusSuccess
	w.logger.Info("extracted privacy policy",
		zap.String("site", site),
		zap.String("url", policyURL),
		zap.Int("chars", result.TextLength()),
	)
	return result
}

// courtesyDelay sleeps a uniformly random duration in [DelayMin, DelayMax].
func (w *Worker) courtesyDelay(ctx context.Context) error {
	delay := w.cfg.DelayMin
	if span := int64(w.cfg.DelayMax - w.cfg.DelayMin); span > 0 {
		delay += time.Duration(w.jitter(span + 1))
	}
	if delay <= 0 {
		return ctx.Err()
	}
	metrics.ObserveCourtesyDelay(delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("courtesy delay: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (w *Worker) emit(evt progress.Event) {
	if evt.RunID == [16]byte{} {
		return
	}
	w.emitter.Emit(evt)
}

// errored records an unexpected fault. Partial results are discarded so the
// row carries only the error.
func errored(result scraper.Result, err error) scraper.Result {
	result.PolicyURL = ""
	result.Text = ""
	result.Status = scraper.ErrorStatus(err)
	return result
}
