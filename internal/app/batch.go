package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"review_collector/internal/domain"
)

// SinkFactory opens a fresh sink for one job. The runner owns the handle
// and closes it on every exit path.
type SinkFactory func(job domain.Job) (domain.Sink, error)

// BatchRunner fans collection out over many (app, source) jobs. Each job
// gets its own seen-set and sink handle; one job's failure never aborts
// the others.
type BatchRunner struct {
	sources map[domain.Source]domain.ReviewSource
	sinks   SinkFactory
	opts    Options
	workers int
	tracker *RunTracker
}

func NewBatchRunner(sources map[domain.Source]domain.ReviewSource, sinks SinkFactory, opts Options, workers int, tracker *RunTracker) *BatchRunner {
	if workers <= 0 {
		workers = 4
	}
	return &BatchRunner{sources: sources, sinks: sinks, opts: opts, workers: workers, tracker: tracker}
}

// Run collects every job and returns outcomes in job order.
func (b *BatchRunner) Run(ctx context.Context, jobs []domain.Job) []domain.Outcome {
	sem := semaphore.NewWeighted(int64(b.workers))
	var wg sync.WaitGroup
	outs := make([]domain.Outcome, len(jobs))

	for i, job := range jobs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			outs[i] = domain.Outcome{AppID: job.AppID, Source: job.Source, Reason: domain.ReasonError, Err: err}
			continue
		}
		wg.Add(1)
		go func(i int, job domain.Job) {
			defer wg.Done()
			defer sem.Release(1)
			outs[i] = b.runJob(ctx, job)
		}(i, job)
	}

	wg.Wait()
	return outs
}

func (b *BatchRunner) runJob(ctx context.Context, job domain.Job) domain.Outcome {
	src, ok := b.sources[job.Source]
	if !ok {
		return domain.Outcome{
			AppID: job.AppID, Source: job.Source,
			Reason: domain.ReasonError,
			Err:    fmt.Errorf("unsupported source %q", job.Source),
		}
	}

	sink, err := b.sinks(job)
	if err != nil {
		return domain.Outcome{
			AppID: job.AppID, Source: job.Source,
			Reason: domain.ReasonError,
			Err:    fmt.Errorf("open sink: %w", err),
		}
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("app", job.AppID).Str("source", string(job.Source)).Msg("sink close failed")
		}
	}()

	opts := b.opts
	var runID string
	if b.tracker != nil {
		runID = b.tracker.Start(job)
		opts.Progress = func(written, malformed, duplicates, pages int) {
			b.tracker.Update(runID, written, malformed, duplicates, pages)
		}
	}

	out := NewCollector(src, sink, opts).Collect(ctx, job)

	if b.tracker != nil {
		b.tracker.Finish(runID, out)
	}
	ev := log.Info()
	if out.Reason == domain.ReasonError {
		ev = log.Warn().Err(out.Err)
	}
	ev.Str("app", out.AppID).Str("source", string(out.Source)).
		Int("written", out.Written).Int("malformed", out.Malformed).
		Int("duplicates", out.Duplicates).Int("pages", out.Pages).
		Str("reason", string(out.Reason)).Dur("elapsed", out.Elapsed).
		Msg("collection finished")
	return out
}
