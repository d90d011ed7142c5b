// Package gplay binds to the Play Store UI batchexecute endpoint, the
// same protocol the store's own web client speaks. One POST returns one
// page of reviews plus a continuation token.
package gplay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"review_collector/internal/adapters/observability"
	"review_collector/internal/domain"
)

const (
	reviewsRPCID = "UsvDTd"
	sortNewest   = 2
	// the endpoint rejects counts above 199
	maxPageSize = 199
)

type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int) *Client {
	if base == "" {
		base = "https://play.google.com"
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

func (c *Client) Kind() domain.Source { return domain.GooglePlay }

func (c *Client) MaxPageSize() int { return maxPageSize }

// FetchPage performs a single rate-limited fetch. Failures are classified
// as SourceError; retrying is the collector's job.
func (c *Client) FetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return domain.Page{}, err
	}

	body, err := buildBody(req.AppID, req.PageSize, req.Cursor)
	if err != nil {
		return domain.Page{}, c.permanent(0, fmt.Errorf("build request: %w", err))
	}

	u := fmt.Sprintf("%s/_/PlayStoreUi/data/batchexecute?hl=%s&gl=%s",
		c.base, url.QueryEscape(req.Lang), url.QueryEscape(req.Country))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body))
	if err != nil {
		return domain.Page{}, c.permanent(0, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	httpReq.Header.Set("User-Agent", "review-collector/1.0")

	start := time.Now()
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		observability.ObserveFetch(string(domain.GooglePlay), 0, time.Since(start))
		if ctx.Err() != nil {
			return domain.Page{}, ctx.Err()
		}
		return domain.Page{}, c.transient(0, 0, err)
	}
	defer resp.Body.Close()
	observability.ObserveFetch(string(domain.GooglePlay), resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.Page{}, c.transient(resp.StatusCode, 0, err)
		}
		page, err := parseEnvelope(raw)
		if err != nil {
			return domain.Page{}, c.permanent(resp.StatusCode, err)
		}
		return page, nil

	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		io.Copy(io.Discard, resp.Body)
		return domain.Page{}, c.transient(resp.StatusCode, retryAfter(resp), fmt.Errorf("remote %d", resp.StatusCode))

	default:
		// 4xx other than 429: bad app id or blocked request, not retryable
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Page{}, c.permanent(resp.StatusCode, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
}

// buildBody assembles the f.req form payload. The inner request is itself
// a JSON document carried as a string:
//
//	[null,null,[2,<sort>,[<count>,null,<token>],null,[]],[<appID>,7]]
func buildBody(appID string, count int, token string) (string, error) {
	paging := []any{count, nil, nil}
	if token != "" {
		paging = []any{count, nil, token}
	}
	inner := []any{nil, nil, []any{2, sortNewest, paging, nil, []any{}}, []any{appID, 7}}
	innerBytes, err := json.Marshal(inner)
	if err != nil {
		return "", err
	}
	envelope := []any{[]any{[]any{reviewsRPCID, string(innerBytes), nil, "generic"}}}
	envBytes, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	form := url.Values{"f.req": {string(envBytes)}}
	return form.Encode(), nil
}

// parseEnvelope unwraps the anti-XSSI guard and the doubly-encoded RPC
// envelope. Review fields live at fixed positions in nested arrays:
// id [0], author [1][0], rating [2], body [4], submitted seconds [5][0],
// developer reply [7][1].
func parseEnvelope(raw []byte) (domain.Page, error) {
	i := bytes.IndexByte(raw, '[')
	if i < 0 {
		return domain.Page{}, fmt.Errorf("no payload after XSSI guard")
	}
	var outer []any
	if err := json.Unmarshal(raw[i:], &outer); err != nil {
		return domain.Page{}, fmt.Errorf("decode outer envelope: %w", err)
	}
	innerStr, ok := index(outer, 0, 2).(string)
	if !ok {
		return domain.Page{}, fmt.Errorf("missing inner payload")
	}
	var inner []any
	if err := json.Unmarshal([]byte(innerStr), &inner); err != nil {
		return domain.Page{}, fmt.Errorf("decode inner payload: %w", err)
	}

	var page domain.Page
	if items, ok := index(inner, 0).([]any); ok {
		page.Entries = make([]domain.RawEntry, 0, len(items))
		for _, it := range items {
			page.Entries = append(page.Entries, domain.RawEntry{
				"reviewId":     str(index(it, 0)),
				"userName":     str(index(it, 1, 0)),
				"score":        index(it, 2),
				"content":      str(index(it, 4)),
				"at":           index(it, 5, 0),
				"replyContent": str(index(it, 7, 1)),
			})
		}
	}
	page.Next = str(index(inner, 1, 1))
	return page, nil
}

// index walks nested []any values by position; nil when the path falls
// outside the structure.
func index(v any, path ...int) any {
	cur := v
	for _, i := range path {
		arr, ok := cur.([]any)
		if !ok || i < 0 || i >= len(arr) {
			return nil
		}
		cur = arr[i]
	}
	return cur
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func (c *Client) transient(status int, wait time.Duration, err error) error {
	return &domain.SourceError{
		Kind: domain.Transient, Source: domain.GooglePlay, Op: "fetch reviews page",
		Status: status, RetryAfter: wait, Err: err,
	}
}

func (c *Client) permanent(status int, err error) error {
	return &domain.SourceError{
		Kind: domain.Permanent, Source: domain.GooglePlay, Op: "fetch reviews page",
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
