package appstore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"review_collector/internal/adapters/appstore"
	"review_collector/internal/domain"
)

func label(s string) map[string]any { return map[string]any{"label": s} }

func feedEntry(id, author, rating, body, updated string) map[string]any {
	return map[string]any{
		"id":        label(id),
		"author":    map[string]any{"name": label(author)},
		"im:rating": label(rating),
		"title":     label("title"),
		"content":   label(body),
		"updated":   label(updated),
	}
}

func feedDoc(t *testing.T, entry any, current, next int) string {
	t.Helper()
	links := []any{
		map[string]any{"attributes": map[string]any{
			"rel": "self", "href": fmt.Sprintf("https://itunes.apple.com/us/rss/customerreviews/page=%d/id=1/json", current),
		}},
	}
	if next > 0 {
		links = append(links, map[string]any{"attributes": map[string]any{
			"rel": "next", "href": fmt.Sprintf("https://itunes.apple.com/us/rss/customerreviews/page=%d/id=1/json", next),
		}})
	}
	doc := map[string]any{"feed": map[string]any{"entry": entry, "link": links}}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return string(b)
}

func TestFetchPage_ParsesFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/us/rss/customerreviews/page=1/id=310633997/") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		entry := []any{
			feedEntry("901", "Ana", "5", "love it", "2024-03-01T10:00:00-07:00"),
			feedEntry("902", "Bob", "2", "crashes", "2024-03-02T10:00:00-07:00"),
		}
		_, _ = w.Write([]byte(feedDoc(t, entry, 1, 2)))
	}))
	defer ts.Close()

	cl := appstore.New(ts.URL, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	page, err := cl.FetchPage(ctx, domain.PageRequest{AppID: "310633997", PageSize: 50, Country: "us"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(page.Entries) != 2 || page.Next != "2" {
		t.Fatalf("entries = %d, next = %q", len(page.Entries), page.Next)
	}
	e := page.Entries[0]
	if e["id"] != "901" || e["userName"] != "Ana" || e["rating"] != "5" || e["review"] != "love it" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestFetchPage_LastPageSelfLinkMeansExhausted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the feed's last page carries a next link pointing at itself
		entry := []any{feedEntry("903", "Cyd", "4", "fine", "2024-03-03T10:00:00Z")}
		_, _ = w.Write([]byte(feedDoc(t, entry, 10, 10)))
	}))
	defer ts.Close()

	cl := appstore.New(ts.URL, 100)
	page, err := cl.FetchPage(context.Background(), domain.PageRequest{AppID: "1", Cursor: "10", PageSize: 50})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.Next != "" {
		t.Fatalf("next = %q, want empty on self-linking last page", page.Next)
	}
}

func TestFetchPage_SingleEntryObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// one-review pages serialize entry as an object, not an array
		_, _ = w.Write([]byte(feedDoc(t, feedEntry("904", "Dee", "3", "ok", "2024-03-04T10:00:00Z"), 1, 0)))
	}))
	defer ts.Close()

	cl := appstore.New(ts.URL, 100)
	page, err := cl.FetchPage(context.Background(), domain.PageRequest{AppID: "1", PageSize: 50})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0]["id"] != "904" {
		t.Fatalf("unexpected entries: %+v", page.Entries)
	}
}

func TestFetchPage_RateLimitIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	cl := appstore.New(ts.URL, 100)
	_, err := cl.FetchPage(context.Background(), domain.PageRequest{AppID: "1", PageSize: 50})
	if !domain.IsTransient(err) {
		t.Fatalf("429 must classify transient, got %v", err)
	}
	if hint := domain.RetryAfterHint(err); hint != 30*time.Second {
		t.Fatalf("retry-after hint = %v, want 30s", hint)
	}
}

func TestFetchPage_BadCursorIsPermanent(t *testing.T) {
	cl := appstore.New("http://127.0.0.1:0", 100)
	_, err := cl.FetchPage(context.Background(), domain.PageRequest{AppID: "1", Cursor: "not-a-page", PageSize: 50})
	if err == nil || domain.IsTransient(err) {
		t.Fatalf("bad cursor must classify permanent, got %v", err)
	}
}
