package news

import (
	"time"
)

// Headline is the title-only view of a cleaned article. The analysis stage
// deliberately sees headlines without bodies.
type Headline struct {
	Title     string     `db:"title"`
	Ticker    string     `db:"ticker"`
	Timestamp *time.Time `db:"timestamp"`
}

// Article is a cleaned article with body text, consumed by the debate stage
type Article struct {
	ID          int64      `db:"id"`
	Title       string     `db:"title"`
	Ticker      string     `db:"ticker"`
	ContentText string     `db:"content_text"`
	Timestamp   *time.Time `db:"timestamp"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Excerpt returns the body truncated to n bytes for prompt contexts
func (a Article) Excerpt(n int) string {
	if len(a.ContentText) <= n {
		return a.ContentText
	}
	return a.ContentText[:n]
}
