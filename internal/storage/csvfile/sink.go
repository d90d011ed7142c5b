// Package csvfile is the default sink: one delimited file per (app,
// source) per run, with a fixed column header. Each run creates a new
// file; overwriting an existing one is the caller's explicit choice.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"

	"review_collector/internal/adapters/observability"
	"review_collector/internal/domain"
)

// row is the on-disk schema; field order fixes the column order.
type row struct {
	Source      string `csv:"source"`
	AppID       string `csv:"app_id"`
	ReviewID    string `csv:"review_id"`
	Author      string `csv:"author"`
	Rating      int    `csv:"rating"`
	Body        string `csv:"body"`
	SubmittedAt string `csv:"submitted_at"`
}

type Sink struct {
	f      *os.File
	w      *csv.Writer
	enc    *csvutil.Encoder
	closed bool
}

// Filename returns the per-run output file for one (app, source) pair,
// e.g. com.whatsapp_google_play_reviews.csv.
func Filename(dir string, src domain.Source, appID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_reviews.csv", sanitize(appID), src))
}

// Open creates the output file and writes the header immediately, so
// even a zero-review run leaves a well-formed file behind. Without
// overwrite an existing file is an error, not a merge.
func Open(dir string, src domain.Source, appID string, overwrite bool) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if overwrite {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(Filename(dir, src, appID), flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink file: %w", err)
	}
	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(row{}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Sink{f: f, w: w, enc: enc}, nil
}

func (s *Sink) Append(ctx context.Context, r domain.Review) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.enc.Encode(row{
		Source:      string(r.Source),
		AppID:       r.AppID,
		ReviewID:    r.ReviewID,
		Author:      r.Author,
		Rating:      r.Rating,
		Body:        r.Body,
		SubmittedAt: r.SubmittedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	observability.ObserveWritten(string(r.Source), "csv")
	return nil
}

func (s *Sink) Flush(ctx context.Context) error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	observability.ObserveFlush("csv")
	return s.f.Sync()
}

func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// sanitize keeps app identifiers filesystem-safe.
func sanitize(s string) string {
	out := []byte(s)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
