package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"review_collector/internal/domain"
)

// RunTracker keeps live per-job progress for the status endpoint. All
// methods are safe for concurrent use by the batch workers.
type RunTracker struct {
	mu    sync.Mutex
	runs  map[string]*domain.RunStatus
	order []string
}

func NewRunTracker() *RunTracker {
	return &RunTracker{runs: make(map[string]*domain.RunStatus)}
}

// Start registers a job and returns its run id.
func (t *RunTracker) Start(job domain.Job) string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[id] = &domain.RunStatus{
		RunID:     id,
		AppID:     job.AppID,
		Source:    job.Source,
		State:     domain.RunActive,
		StartedAt: time.Now().UTC(),
	}
	t.order = append(t.order, id)
	return id
}

func (t *RunTracker) Update(id string, written, malformed, duplicates, pages int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs, ok := t.runs[id]
	if !ok {
		return
	}
	rs.Written = written
	rs.Malformed = malformed
	rs.Duplicates = duplicates
	rs.Pages = pages
}

func (t *RunTracker) Finish(id string, out domain.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs, ok := t.runs[id]
	if !ok {
		return
	}
	rs.State = domain.RunDone
	rs.Written = out.Written
	rs.Malformed = out.Malformed
	rs.Duplicates = out.Duplicates
	rs.Pages = out.Pages
	rs.Reason = string(out.Reason)
	if out.Err != nil {
		rs.Error = out.Err.Error()
	}
	now := time.Now().UTC()
	rs.FinishedAt = &now
}

// Snapshot returns all runs in start order. The returned statuses are
// copies; callers may serialize them without holding the lock.
func (t *RunTracker) Snapshot() []domain.RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.RunStatus, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.runs[id])
	}
	return out
}
