// Package dispatcher fans a site list out to a pool of workers and collects
// exactly one result per site.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/msnabiel/privacy-policy/internal/clock/system"
	"github.com/msnabiel/privacy-policy/internal/id/uuid"
	"github.com/msnabiel/privacy-policy/internal/progress"
	"github.com/msnabiel/privacy-policy/internal/queue/memory"
	"github.com/msnabiel/privacy-policy/internal/scraper"
	"github.com/msnabiel/privacy-policy/internal/worker"
)

var errNotProcessed = errors.New("site was not processed")

// Dispatcher fans out sites to a pool of workers. Pool size is len(workers).
type Dispatcher struct {
	workers []*worker.Worker
	sink    scraper.ResultSink
	ids     scraper.IDGenerator
	clock   scraper.Clock
	emitter progress.Emitter
	logger  *zap.Logger
}

// New creates a Dispatcher. sink may be nil when the caller only wants the
// report back; nil ids and clock fall back to UUIDv7 and the system clock.
func New(
	workers []*worker.Worker,
	sink scraper.ResultSink,
	ids scraper.IDGenerator,
	clock scraper.Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if ids == nil {
		ids = uuid.New()
	}
	return &Dispatcher{
		workers: workers,
		sink:    sink,
		ids:     ids,
		clock:   clock,
		emitter: emitter,
		logger:  logger.Named("dispatcher"),
	}
}

// RunAll processes every site and returns the run report. Results arrive in
// completion order. Individual site failures never abort the run; sites left
// unprocessed by cancellation are recorded as error rows so the report always
// holds len(sites) results. The returned error is non-nil only when the run
// could not start or the sink failed.
func (d *Dispatcher) RunAll(ctx context.Context, sites []string) (scraper.RunReport, error) {
	if len(d.workers) == 0 {
		return scraper.RunReport{}, errors.New("dispatcher requires at least one worker")
	}
	runID, err := d.newRunID()
	if err != nil {
		return scraper.RunReport{}, err
	}
	report := scraper.RunReport{RunID: runID, StartedAt: d.clock.Now()}
	runKey, _ := progress.ParseRunID(runID)
	d.emit(progress.Event{RunID: runKey, TS: report.StartedAt, Stage: progress.StageRunStart})
	d.logger.Info("starting run",
		zap.String("run_id", runID),
		zap.Int("sites", len(sites)),
		zap.Int("workers", len(d.workers)),
	)

	queue := memory.NewQueue(len(sites))
	for i, site := range sites {
		// Capacity matches the site count so this never blocks.
		if err := queue.Enqueue(context.Background(), scraper.SiteItem{RunID: runID, Index: i, Site: site}); err != nil {
			return scraper.RunReport{}, fmt.Errorf("queue enqueue: %w", err)
		}
	}
	queue.Close()

	report.Results = d.collect(ctx, queue, sites)
	report.FinishedAt = d.clock.Now()
	report.Summary = scraper.Summarize(report.Results)
	d.emit(progress.Event{
		RunID: runKey,
		TS:    report.FinishedAt,
		Stage: progress.StageRunDone,
		Dur:   max(report.FinishedAt.Sub(report.StartedAt), 0),
	})
	d.logSummary(report)

	if d.sink == nil {
		return report, nil
	}
	// Partial results from a canceled run are still written.
	if err := d.sink.Write(context.WithoutCancel(ctx), report); err != nil {
		d.logger.Error("write results failed", zap.String("run_id", runID), zap.Error(err))
		return report, fmt.Errorf("write results: %w", err)
	}
	return report, nil
}

func (d *Dispatcher) collect(ctx context.Context, queue scraper.Queue, sites []string) []scraper.Result {
	results := make(chan scraper.Result, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error {
			w.Run(gctx, queue, results)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	pending := make(map[string]int, len(sites))
	for _, site := range sites {
		pending[site]++
	}
	collected := make([]scraper.Result, 0, len(sites))
	for result := range results {
		pending[result.Site]--
		collected = append(collected, result)
		d.logger.Debug("site finished",
			zap.String("site", result.Site),
			zap.String("status", string(result.Status)),
			zap.Int("completed", len(collected)),
			zap.Int("total", len(sites)),
		)
	}

	cause := ctx.Err()
	if cause == nil {
		cause = errNotProcessed
	}
	now := d.clock.Now()
	for _, site := range sites {
		if pending[site] <= 0 {
			continue
		}
		pending[site]--
		d.logger.Warn("site left unprocessed", zap.String("site", site), zap.Error(cause))
		collected = append(collected, scraper.Result{
			Company:   scraper.CompanyName(site),
			Site:      site,
			Status:    scraper.ErrorStatus(cause),
			ScrapedAt: now,
		})
	}
	return collected
}

func (d *Dispatcher) logSummary(report scraper.RunReport) {
	s := report.Summary
	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.Int("total", s.Total),
		zap.Int("successful", s.Successful),
		zap.Int("failed", s.Failed),
		zap.String("success_rate", fmt.Sprintf("%.1f%%", s.SuccessRate)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	for status, n := range s.ByStatus {
		fields = append(fields, zap.Int("status_"+status, n))
	}
	d.logger.Info("run finished", fields...)
	for _, r := range s.FailedSites {
		d.logger.Info("site failed, consider retrying", zap.String("site", r.Site), zap.String("status", string(r.Status)))
	}
}

func (d *Dispatcher) newRunID() (string, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func (d *Dispatcher) emit(evt progress.Event) {
	if evt.RunID == [16]byte{} {
		return
	}
	d.emitter.Emit(evt)
}
