package domain

import (
	"context"
	"time"
)

// RawEntry is one review as the marketplace returned it, keyed by the
// vendor's own field names. Normalization into a Review happens in app.
type RawEntry map[string]any

// PageRequest asks a source for one page of reviews.
type PageRequest struct {
	AppID    string
	Cursor   string // opaque continuation token, "" = start
	PageSize int
	Lang     string
	Country  string
}

// Page is one fetched batch plus the continuation cursor.
// An empty Next signals source exhaustion; an empty Entries slice with a
// non-empty Next means "keep going" (some sources return gaps mid-stream).
type Page struct {
	Entries []RawEntry
	Next    string
}

// ReviewSource fetches pages of reviews from one marketplace.
// Implementations rate-limit and classify failures as SourceError but do
// not retry; the collector owns the retry budget.
type ReviewSource interface {
	Kind() Source
	// MaxPageSize is the largest batch one fetch may request; bigger
	// requests are clamped by the collector, never rejected.
	MaxPageSize() int
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// Sink receives normalized reviews. Append order is preserved; Flush and
// Close must be safe to call on every exit path.
type Sink interface {
	Append(ctx context.Context, r Review) error
	Flush(ctx context.Context) error
	Close() error
}

// Checkpoint is the resume state for one (source, app) collection.
type Checkpoint struct {
	Cursor  string    `json:"cursor"`
	SeenIDs []string  `json:"seen_ids"`
	SavedAt time.Time `json:"saved_at"`
}

// CheckpointStore persists checkpoints between runs. A nil store (or a
// job without Resume) means every run starts from scratch.
type CheckpointStore interface {
	Load(ctx context.Context, src Source, appID string) (Checkpoint, bool, error)
	Save(ctx context.Context, src Source, appID string, cp Checkpoint) error
	Clear(ctx context.Context, src Source, appID string) error
}
