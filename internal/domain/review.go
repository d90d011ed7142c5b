package domain

import (
	"fmt"
	"time"
)

// Source identifies the marketplace a review was pulled from.
type Source string

const (
	GooglePlay Source = "google_play"
	AppStore   Source = "app_store"
)

// ParseSource maps user-facing spellings onto a Source.
func ParseSource(s string) (Source, error) {
	switch s {
	case "google_play", "google", "gplay", "play":
		return GooglePlay, nil
	case "app_store", "apple", "appstore", "itunes":
		return AppStore, nil
	}
	return "", fmt.Errorf("unknown source %q (want google_play or app_store)", s)
}

// Review is one observed review, normalized from a marketplace payload.
// (Source, AppID, ReviewID) is unique within a single run's output.
type Review struct {
	Source      Source
	AppID       string
	ReviewID    string
	Author      string // optional, may be empty
	Rating      int    // 1..5
	Body        string // may be empty
	SubmittedAt time.Time
}

// Key returns the review's unique identity tuple.
func (r Review) Key() string {
	return string(r.Source) + "|" + r.AppID + "|" + r.ReviewID
}

// Job describes one (app, source) collection task.
type Job struct {
	AppID      string
	Source     Source
	MaxReviews int // 0 = until the source is exhausted
	PageSize   int // clamped to the source's maximum
	Lang       string
	Country    string
	Resume     bool // restore from a checkpoint when one exists
}

// TerminateReason says why a collection run stopped.
type TerminateReason string

const (
	ReasonExhausted    TerminateReason = "exhausted"
	ReasonBoundReached TerminateReason = "bound_reached"
	ReasonError        TerminateReason = "error"
)

// Outcome is the per-job result reported to the caller.
type Outcome struct {
	AppID      string
	Source     Source
	Written    int
	Malformed  int
	Duplicates int
	Pages      int
	Reason     TerminateReason
	Err        error // non-nil iff Reason == ReasonError
	Elapsed    time.Duration
}

// Summary renders the one-line per-app report printed by the CLI.
func (o Outcome) Summary() string {
	s := fmt.Sprintf("%s %s written=%d malformed=%d duplicates=%d pages=%d reason=%s",
		o.AppID, o.Source, o.Written, o.Malformed, o.Duplicates, o.Pages, o.Reason)
	if o.Err != nil {
		s += " err=" + o.Err.Error()
	}
	return s
}

// RunState is the lifecycle phase of a tracked job.
type RunState string

const (
	RunPending RunState = "pending"
	RunActive  RunState = "running"
	RunDone    RunState = "done"
)

// RunStatus is a live progress snapshot served by the status endpoint.
type RunStatus struct {
	RunID      string     `json:"run_id"`
	AppID      string     `json:"app_id"`
	Source     Source     `json:"source"`
	State      RunState   `json:"state"`
	Written    int        `json:"written"`
	Malformed  int        `json:"malformed"`
	Duplicates int        `json:"duplicates"`
	Pages      int        `json:"pages"`
	Reason     string     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
