package news

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Repository reads the ingestion collaborator's tables (articles_cleaned,
// article_embeddings). Strictly read-only from this side.
type Repository interface {
	RecentHeadlines(ctx context.Context, ticker string, since time.Time, limit int) ([]Headline, error)
	RecentArticles(ctx context.Context, ticker string, since time.Time, limit int) ([]Article, error)

	// ArticleEmbedding returns the stored embedding for one article.
	// ErrNotFound when the ingestion pipeline has not embedded it yet.
	ArticleEmbedding(ctx context.Context, articleID int64) (pgvector.Vector, error)

	// SimilarArticles returns articles ranked by cosine similarity of their
	// stored embeddings to the given query vector.
	SimilarArticles(ctx context.Context, embedding pgvector.Vector, limit int) ([]Article, error)
}
