// Package mysql is the optional SQL sink, for runs whose output feeds
// SQL-side analysis instead of (or alongside) flat CSV files.
package mysql

import (
	"context"
	"database/sql"
	"strings"

	"review_collector/internal/adapters/observability"
	"review_collector/internal/domain"
)

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

// InsertReviews writes a batch in one multi-row statement.
func (s *Store) InsertReviews(ctx context.Context, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*7)
	for _, r := range rs {
		values = append(values, "(?,?,?,?,?,?,?)")
		args = append(args,
			string(r.Source),
			r.AppID,
			r.ReviewID,
			nullStr(r.Author),
			r.Rating,
			nullStr(r.Body),
			r.SubmittedAt.UTC(),
		)
	}
	sqlStr := insertReviewsPrefix + strings.Join(values, ",") + insertReviewsOnDup
	_, err := s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// RecordOutcome persists one job's final counters for later auditing.
func (s *Store) RecordOutcome(ctx context.Context, runID string, o domain.Outcome) error {
	var errStr any
	if o.Err != nil {
		errStr = o.Err.Error()
	}
	_, err := s.db.ExecContext(ctx, insertOutcomeSQL,
		runID, o.AppID, string(o.Source),
		o.Written, o.Malformed, o.Duplicates, o.Pages,
		string(o.Reason), errStr, o.Elapsed.Milliseconds(),
	)
	return err
}

// Sink adapts the store to the collector's sink port, buffering rows so
// one page becomes roughly one INSERT.
type Sink struct {
	store *Store
	buf   []domain.Review
	batch int
}

const defaultBatchSize = 200

func (s *Store) NewSink(batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sink{store: s, batch: batchSize}
}

func (k *Sink) Append(ctx context.Context, r domain.Review) error {
	k.buf = append(k.buf, r)
	if len(k.buf) >= k.batch {
		return k.flush(ctx)
	}
	return nil
}

func (k *Sink) Flush(ctx context.Context) error {
	if err := k.flush(ctx); err != nil {
		return err
	}
	observability.ObserveFlush("mysql")
	return nil
}

func (k *Sink) Close() error {
	return k.flush(context.Background())
}

func (k *Sink) flush(ctx context.Context) error {
	if len(k.buf) == 0 {
		return nil
	}
	if err := k.store.InsertReviews(ctx, k.buf); err != nil {
		return err
	}
	for _, r := range k.buf {
		observability.ObserveWritten(string(r.Source), "mysql")
	}
	k.buf = k.buf[:0]
	return nil
}
