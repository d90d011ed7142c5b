// Package app holds the collection core: a bounded, resumable pagination
// loop over a marketplace review source, with in-run dedup, a per-page
// retry budget and per-job outcome reporting.
package app

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"review_collector/internal/adapters/observability"
	"review_collector/internal/domain"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 30 * time.Second
	defaultBackoffBase    = 200 * time.Millisecond
	defaultPageSize       = 100
)

// Options tune one Collector. Zero values fall back to defaults.
type Options struct {
	MaxAttempts    int           // total fetch attempts per page, including the first
	AttemptTimeout time.Duration // per fetch attempt, not per run
	BackoffBase    time.Duration // first retry delay; doubles per retry

	Checkpoints domain.CheckpointStore // optional resume state
	Progress    func(written, malformed, duplicates, pages int)
}

type Collector struct {
	src  domain.ReviewSource
	sink domain.Sink
	opts Options
}

func NewCollector(src domain.ReviewSource, sink domain.Sink, opts Options) *Collector {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = defaultAttemptTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	return &Collector{src: src, sink: sink, opts: opts}
}

// Collect runs one job to completion. Failures never escape as a return
// error; they land in the Outcome so batch callers stay independent.
func (c *Collector) Collect(ctx context.Context, job domain.Job) domain.Outcome {
	start := time.Now()
	src := c.src.Kind()
	out := domain.Outcome{AppID: job.AppID, Source: src}

	if strings.TrimSpace(job.AppID) == "" {
		return c.fail(ctx, out, start, errors.New("app id is empty"))
	}

	pageSize := job.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	// oversized requests are clamped, never rejected
	if max := c.src.MaxPageSize(); pageSize > max {
		pageSize = max
	}

	logger := log.With().Str("app", job.AppID).Str("source", string(src)).Logger()

	seen := make(map[string]struct{})
	var seenIDs []string
	cursor := ""

	if c.opts.Checkpoints != nil && job.Resume {
		cp, ok, err := c.opts.Checkpoints.Load(ctx, src, job.AppID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("checkpoint load failed, starting fresh")
		case ok:
			cursor = cp.Cursor
			for _, id := range cp.SeenIDs {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					seenIDs = append(seenIDs, id)
				}
			}
			logger.Info().Str("cursor", cursor).Int("seen", len(seenIDs)).
				Time("saved_at", cp.SavedAt).Msg("resuming from checkpoint")
		}
	}

	for {
		// cancellation is honored between pages, never mid-fetch
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, out, start, err)
		}

		page, err := c.fetchPage(ctx, domain.PageRequest{
			AppID:    job.AppID,
			Cursor:   cursor,
			PageSize: pageSize,
			Lang:     job.Lang,
			Country:  job.Country,
		})
		if err != nil {
			// checkpoint is kept so a later run can resume here
			return c.fail(ctx, out, start, err)
		}
		out.Pages++
		observability.ObservePage(string(src))

		for _, raw := range page.Entries {
			rec, nerr := normalizeEntry(src, job.AppID, raw)
			if nerr != nil {
				out.Malformed++
				observability.ObserveMalformed(string(src))
				logger.Debug().Err(nerr).Msg("skipping malformed entry")
				continue
			}
			if _, dup := seen[rec.ReviewID]; dup {
				out.Duplicates++
				observability.ObserveDuplicate(string(src))
				continue
			}
			if err := c.sink.Append(ctx, rec); err != nil {
				return c.fail(ctx, out, start, fmt.Errorf("sink append: %w", err))
			}
			seen[rec.ReviewID] = struct{}{}
			seenIDs = append(seenIDs, rec.ReviewID)
			out.Written++

			if job.MaxReviews > 0 && out.Written >= job.MaxReviews {
				return c.finish(ctx, out, start, job, domain.ReasonBoundReached)
			}
		}

		if c.opts.Checkpoints != nil {
			cp := domain.Checkpoint{Cursor: page.Next, SeenIDs: seenIDs, SavedAt: time.Now().UTC()}
			if err := c.opts.Checkpoints.Save(ctx, src, job.AppID, cp); err != nil {
				logger.Warn().Err(err).Msg("checkpoint save failed")
			}
		}
		if c.opts.Progress != nil {
			c.opts.Progress(out.Written, out.Malformed, out.Duplicates, out.Pages)
		}

		if page.Next == "" {
			return c.finish(ctx, out, start, job, domain.ReasonExhausted)
		}
		// a cursor that does not move would fetch the same page forever;
		// an empty page with a fresh cursor still continues the loop
		if page.Next == cursor {
			return c.finish(ctx, out, start, job, domain.ReasonExhausted)
		}
		cursor = page.Next
	}
}

// fetchPage performs one page fetch with the retry budget. Only transient
// source failures and attempt timeouts are retried; permanent failures
// and parent-context cancellation stop immediately.
func (c *Collector) fetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	src := string(c.src.Kind())
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			observability.ObserveRetry(src)
			wait := backoff(attempt-1, c.opts.BackoffBase)
			// server wait hints win when they exceed the computed backoff
			if hint := domain.RetryAfterHint(lastErr); hint > wait {
				wait = hint
			}
			if !sleepCtx(ctx, wait) {
				return domain.Page{}, ctx.Err()
			}
		}

		actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		page, err := c.src.FetchPage(actx, req)
		cancel()
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return domain.Page{}, ctx.Err()
		}
		if !domain.IsTransient(err) && !errors.Is(err, context.DeadlineExceeded) {
			return domain.Page{}, err
		}
		lastErr = err
		log.Warn().Err(err).Str("source", src).Str("app", req.AppID).
			Int("attempt", attempt+1).Msg("page fetch failed")
	}
	return domain.Page{}, lastErr
}

func (c *Collector) finish(ctx context.Context, out domain.Outcome, start time.Time, job domain.Job, reason domain.TerminateReason) domain.Outcome {
	out.Reason = reason
	if c.opts.Checkpoints != nil {
		if err := c.opts.Checkpoints.Clear(ctx, c.src.Kind(), job.AppID); err != nil {
			log.Warn().Err(err).Str("app", job.AppID).Msg("checkpoint clear failed")
		}
	}
	if err := c.sink.Flush(ctx); err != nil {
		out.Reason = domain.ReasonError
		out.Err = fmt.Errorf("sink flush: %w", err)
	}
	out.Elapsed = time.Since(start)
	if c.opts.Progress != nil {
		c.opts.Progress(out.Written, out.Malformed, out.Duplicates, out.Pages)
	}
	return out
}

func (c *Collector) fail(ctx context.Context, out domain.Outcome, start time.Time, err error) domain.Outcome {
	out.Reason = domain.ReasonError
	out.Err = err
	// best effort: keep whatever rows were already appended
	_ = c.sink.Flush(ctx)
	out.Elapsed = time.Since(start)
	if c.opts.Progress != nil {
		c.opts.Progress(out.Written, out.Malformed, out.Duplicates, out.Pages)
	}
	return out
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt, with up to +50%
// random jitter to avoid thundering herds.
func backoff(i int, base time.Duration) time.Duration {
	d := time.Duration(1<<i) * base
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return d
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(d))
	return d + j
}
