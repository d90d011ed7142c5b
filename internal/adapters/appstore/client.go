// Package appstore binds to the iTunes customer-reviews RSS feed
// (JSON rendering). The feed is paged by a page number baked into the
// URL path; the cursor is that number. Page size is fixed by the feed
// at 50 entries and the feed never serves more than 10 pages per app.
package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"review_collector/internal/adapters/observability"
	"review_collector/internal/domain"
)

const (
	maxPageSize = 50
	maxFeedPage = 10
)

type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int) *Client {
	if base == "" {
		base = "https://itunes.apple.com"
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (c *Client) Kind() domain.Source { return domain.AppStore }

func (c *Client) MaxPageSize() int { return maxPageSize }

// FetchPage fetches one feed page. The requested page size cannot shrink
// a feed page; it only bounds what a caller may ask for. Failures are
// classified as SourceError; retrying is the collector's job.
func (c *Client) FetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return domain.Page{}, err
	}

	page := 1
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 1 {
			return domain.Page{}, c.permanent(0, fmt.Errorf("bad cursor %q", req.Cursor))
		}
		page = n
	}

	country := req.Country
	if country == "" {
		country = "us"
	}
	u := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json",
		c.base, country, page, req.AppID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Page{}, c.permanent(0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "review-collector/1.0")

	start := time.Now()
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		observability.ObserveFetch(string(domain.AppStore), 0, time.Since(start))
		if ctx.Err() != nil {
			return domain.Page{}, ctx.Err()
		}
		return domain.Page{}, c.transient(0, 0, err)
	}
	defer resp.Body.Close()
	observability.ObserveFetch(string(domain.AppStore), resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		var doc rssDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return domain.Page{}, c.permanent(resp.StatusCode, fmt.Errorf("decode feed: %w", err))
		}
		return feedToPage(doc, page), nil

	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		io.Copy(io.Discard, resp.Body)
		return domain.Page{}, c.transient(resp.StatusCode, retryAfter(resp), fmt.Errorf("remote %d", resp.StatusCode))

	default:
		// 4xx: unknown app id or malformed feed path
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Page{}, c.permanent(resp.StatusCode, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
}

// ---- feed wire format ----

type label struct {
	Label string `json:"label"`
}

type rssAuthor struct {
	Name label `json:"name"`
}

type rssEntry struct {
	ID      label     `json:"id"`
	Author  rssAuthor `json:"author"`
	Rating  label     `json:"im:rating"`
	Title   label     `json:"title"`
	Content label     `json:"content"`
	Updated label     `json:"updated"`
}

// entryList tolerates the feed's habit of serializing a single-review
// page as an object instead of a one-element array.
type entryList []rssEntry

func (e *entryList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '{' {
		var one rssEntry
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*e = entryList{one}
		return nil
	}
	var many []rssEntry
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*e = entryList(many)
	return nil
}

type rssLink struct {
	Attributes struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"attributes"`
}

type rssDocument struct {
	Feed struct {
		Entry entryList `json:"entry"`
		Link  []rssLink `json:"link"`
	} `json:"feed"`
}

// feedToPage flattens label-wrapped entries into raw entries keyed by the
// field names the old scraper exported (id, userName, review, rating,
// date) and derives the continuation cursor from the rel="next" link.
// The last feed page links to itself, so a next page that does not move
// forward means exhaustion.
func feedToPage(doc rssDocument, current int) domain.Page {
	var page domain.Page
	page.Entries = make([]domain.RawEntry, 0, len(doc.Feed.Entry))
	for _, en := range doc.Feed.Entry {
		page.Entries = append(page.Entries, domain.RawEntry{
			"id":       en.ID.Label,
			"userName": en.Author.Name.Label,
			"review":   en.Content.Label,
			"rating":   en.Rating.Label,
			"date":     en.Updated.Label,
			"title":    en.Title.Label,
		})
	}

	next := 0
	for _, l := range doc.Feed.Link {
		if l.Attributes.Rel == "next" {
			next = pageFromHref(l.Attributes.Href)
			break
		}
	}
	if next > current && next <= maxFeedPage {
		page.Next = strconv.Itoa(next)
	}
	return page
}

func pageFromHref(href string) int {
	const marker = "page="
	i := strings.Index(href, marker)
	if i < 0 {
		return 0
	}
	rest := href[i+len(marker):]
	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	n, err := strconv.Atoi(rest[:j])
	if err != nil {
		return 0
	}
	return n
}

func (c *Client) transient(status int, wait time.Duration, err error) error {
	return &domain.SourceError{
		Kind: domain.Transient, Source: domain.AppStore, Op: "fetch reviews page",
		Status: status, RetryAfter: wait, Err: err,
	}
}

func (c *Client) permanent(status int, err error) error {
	return &domain.SourceError{
		Kind: domain.Permanent, Source: domain.AppStore, Op: "fetch reviews page",
		Status: status, Err: err,
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
