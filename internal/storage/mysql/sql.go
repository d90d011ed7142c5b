package mysql

// Reviews are keyed (source, app_id, review_id); re-collecting the same
// review updates only columns the new row actually carries.
const insertReviewsPrefix = "INSERT INTO reviews\n  (source, app_id, review_id, author, rating, body, submitted_at)\nVALUES "

// Use VALUES(col) for broad compatibility; COALESCE keeps old value if new is NULL.
const insertReviewsOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  author       = COALESCE(VALUES(author), reviews.author),\n" +
	"  rating       = VALUES(rating),\n" +
	"  body         = COALESCE(VALUES(body), reviews.body),\n" +
	"  submitted_at = VALUES(submitted_at)\n"

const insertOutcomeSQL = `
INSERT INTO run_outcomes
  (run_id, app_id, source, written, malformed, duplicates, pages, reason, error, elapsed_ms)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  written    = VALUES(written),
  malformed  = VALUES(malformed),
  duplicates = VALUES(duplicates),
  pages      = VALUES(pages),
  reason     = VALUES(reason),
  error      = VALUES(error),
  elapsed_ms = VALUES(elapsed_ms)
`
