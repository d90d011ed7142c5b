package csvfile_test

import (
	"context"
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"review_collector/internal/domain"
	"review_collector/internal/storage/csvfile"
)

func review(id string) domain.Review {
	return domain.Review{
		Source:      domain.GooglePlay,
		AppID:       "com.whatsapp",
		ReviewID:    id,
		Author:      "Ana",
		Rating:      5,
		Body:        "good, but loud",
		SubmittedAt: time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC),
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestSink_WritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	s, err := csvfile.Open(dir, domain.GooglePlay, "com.whatsapp", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := s.Append(ctx, review("r1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, review("r2")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := csvfile.Filename(dir, domain.GooglePlay, "com.whatsapp")
	if !strings.HasSuffix(path, "com.whatsapp_google_play_reviews.csv") {
		t.Fatalf("unexpected file name: %s", path)
	}
	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	wantHeader := []string{"source", "app_id", "review_id", "author", "rating", "body", "submitted_at"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("header = %v, want %v", rows[0], wantHeader)
		}
	}
	got := rows[1]
	if got[0] != "google_play" || got[1] != "com.whatsapp" || got[2] != "r1" ||
		got[3] != "Ana" || got[4] != "5" || got[5] != "good, but loud" ||
		got[6] != "2024-03-01T17:00:00Z" {
		t.Fatalf("unexpected row: %v", got)
	}
}

func TestSink_EmptyRunLeavesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := csvfile.Open(dir, domain.AppStore, "310633997", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	rows := readRows(t, csvfile.Filename(dir, domain.AppStore, "310633997"))
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want header only", len(rows))
	}
}

func TestSink_NoSilentOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := csvfile.Open(dir, domain.GooglePlay, "com.x", false)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = s.Close()

	if _, err := csvfile.Open(dir, domain.GooglePlay, "com.x", false); err == nil {
		t.Fatalf("second open without overwrite must fail")
	}

	s2, err := csvfile.Open(dir, domain.GooglePlay, "com.x", true)
	if err != nil {
		t.Fatalf("open with overwrite: %v", err)
	}
	_ = s2.Close()
}

func TestSink_SanitizesAppID(t *testing.T) {
	dir := t.TempDir()
	s, err := csvfile.Open(dir, domain.GooglePlay, "weird/app id", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()
	if !strings.HasSuffix(csvfile.Filename(dir, domain.GooglePlay, "weird/app id"),
		"weird_app_id_google_play_reviews.csv") {
		t.Fatalf("app id not sanitized: %s", csvfile.Filename(dir, domain.GooglePlay, "weird/app id"))
	}
}
