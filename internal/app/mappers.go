package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"review_collector/internal/domain"
)

/********** alias registry (single source of truth) **********/

// Each marketplace names the same fields differently: the Play endpoint
// speaks reviewId/score/content/at, the iTunes feed id/rating/review/date.
var entryAliases = map[string][]string{
	"id":     {"reviewId", "id", "review_id"},
	"author": {"userName", "author", "user_name", "name"},
	"body":   {"content", "review", "text", "body"},
	"rating": {"score", "rating", "im:rating"},
	"date":   {"at", "date", "updated", "submittedAt"},
}

// normalizeEntry turns a vendor payload into a Review. A missing review
// id, a rating outside 1..5 or an unusable timestamp makes the entry
// malformed; malformed entries are skipped and counted, never written.
func normalizeEntry(src domain.Source, appID string, raw domain.RawEntry) (domain.Review, error) {
	id := firstNonEmpty(raw, entryAliases["id"]...)
	if id == "" {
		return domain.Review{}, fmt.Errorf("%w: missing review id", domain.ErrMalformedEntry)
	}

	rating, ok := firstIntFlexible(raw, entryAliases["rating"]...)
	if !ok || rating < 1 || rating > 5 {
		return domain.Review{}, fmt.Errorf("%w: rating out of range", domain.ErrMalformedEntry)
	}

	at, ok := firstTimeFlexible(raw, entryAliases["date"]...)
	if !ok || at.IsZero() {
		return domain.Review{}, fmt.Errorf("%w: unusable timestamp", domain.ErrMalformedEntry)
	}

	return domain.Review{
		Source:      src,
		AppID:       appID,
		ReviewID:    id,
		Author:      firstNonEmpty(raw, entryAliases["author"]...),
		Rating:      rating,
		Body:        firstNonEmpty(raw, entryAliases["body"]...),
		SubmittedAt: at.UTC(),
	}, nil
}

/********** tiny helpers **********/

// firstNonEmpty: first non-empty string among the given keys.
func firstNonEmpty(m domain.RawEntry, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstIntFlexible: integer from several keys (float64/int/string), the
// float form must be whole — "4.5 stars" is not a marketplace rating.
func firstIntFlexible(m domain.RawEntry, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			if v == float64(int(v)) {
				return int(v), true
			}
		case int:
			return v, true
		case int64:
			return int(v), true
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if n, err := strconv.Atoi(s); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// firstTimeFlexible: timestamp from several keys. Numbers are unix
// seconds (the Play payload), strings try RFC3339 then date-only forms
// (the iTunes feed).
func firstTimeFlexible(m domain.RawEntry, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case time.Time:
			return v, true
		case float64:
			if v > 0 {
				return time.Unix(int64(v), 0), true
			}
		case int64:
			if v > 0 {
				return time.Unix(v, 0), true
			}
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}
