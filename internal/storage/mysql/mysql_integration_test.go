//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"review_collector/internal/domain"
	mysqlstore "review_collector/internal/storage/mysql"
)

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/migrations)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func review(id string, rating int) domain.Review {
	return domain.Review{
		Source:      domain.GooglePlay,
		AppID:       "com.whatsapp",
		ReviewID:    id,
		Author:      "Ana",
		Rating:      rating,
		Body:        "ok",
		SubmittedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_MySQL_SinkAndOutcomes(t *testing.T) {
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=reviews",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "reviews")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)

	store := mysqlstore.New(db)
	ctx := context.Background()

	// Sink path: two rows in, flushed once.
	sink := store.NewSink(100)
	if err := sink.Append(ctx, review("r1", 5)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := sink.Append(ctx, review("r2", 3)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("reviews = %d, want 2", count)
	}

	// Re-collecting the same review must not add a row.
	if err := store.InsertReviews(ctx, []domain.Review{review("r1", 4)}); err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("reviews after duplicate insert = %d, want 2", count)
	}
	var rating int
	if err := db.QueryRow(`SELECT rating FROM reviews WHERE review_id = 'r1'`).Scan(&rating); err != nil {
		t.Fatalf("rating: %v", err)
	}
	if rating != 4 {
		t.Fatalf("rating after upsert = %d, want updated 4", rating)
	}

	// Outcome audit row.
	out := domain.Outcome{
		AppID: "com.whatsapp", Source: domain.GooglePlay,
		Written: 2, Malformed: 1, Duplicates: 0, Pages: 1,
		Reason: domain.ReasonExhausted, Elapsed: 1500 * time.Millisecond,
	}
	if err := store.RecordOutcome(ctx, "11111111-2222-3333-4444-555555555555", out); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	var reason string
	var written int
	if err := db.QueryRow(`SELECT reason, written FROM run_outcomes WHERE run_id = '11111111-2222-3333-4444-555555555555'`).
		Scan(&reason, &written); err != nil {
		t.Fatalf("outcome row: %v", err)
	}
	if reason != "exhausted" || written != 2 {
		t.Fatalf("outcome row = {%s, %d}, want {exhausted, 2}", reason, written)
	}
}
