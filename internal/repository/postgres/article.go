package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"

	"helios/internal/domain/news"
	"helios/pkg/errors"
)

// Compile-time check
var _ news.Repository = (*ArticleRepository)(nil)

// ArticleRepository reads the ingestion collaborator's articles_cleaned
// and article_embeddings tables. Read-only: the ingestion pipeline owns
// all writes.
type ArticleRepository struct {
	db DBTX
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db DBTX) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// RecentHeadlines retrieves title-only views of recent articles
func (r *ArticleRepository) RecentHeadlines(ctx context.Context, ticker string, since time.Time, limit int) ([]news.Headline, error) {
	var headlines []news.Headline

	query := `
		SELECT title, ticker, timestamp FROM articles_cleaned
		WHERE ticker = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`

	err := r.db.SelectContext(ctx, &headlines, query, ticker, since, limit)
	if err != nil {
		return nil, err
	}

	return headlines, nil
}

// RecentArticles retrieves full article bodies for the debate stage
func (r *ArticleRepository) RecentArticles(ctx context.Context, ticker string, since time.Time, limit int) ([]news.Article, error) {
	var articles []news.Article

	query := `
		SELECT id, title, ticker, content_text, timestamp, created_at
		FROM articles_cleaned
		WHERE ticker = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`

	err := r.db.SelectContext(ctx, &articles, query, ticker, since, limit)
	if err != nil {
		return nil, err
	}

	return articles, nil
}

// ArticleEmbedding retrieves the stored embedding for one article
func (r *ArticleRepository) ArticleEmbedding(ctx context.Context, articleID int64) (pgvector.Vector, error) {
	var embedding pgvector.Vector

	query := `SELECT embedding FROM article_embeddings WHERE article_id = $1`

	err := r.db.GetContext(ctx, &embedding, query, articleID)
	if err == sql.ErrNoRows {
		return pgvector.Vector{}, errors.Wrapf(errors.ErrNotFound, "embedding for article %d", articleID)
	}
	if err != nil {
		return pgvector.Vector{}, err
	}

	return embedding, nil
}

// SimilarArticles retrieves articles ranked by cosine distance between
// their stored embedding and the query vector
func (r *ArticleRepository) SimilarArticles(ctx context.Context, embedding pgvector.Vector, limit int) ([]news.Article, error) {
	var articles []news.Article

	query := `
		SELECT a.id, a.title, a.ticker, a.content_text, a.timestamp, a.created_at
		FROM articles_cleaned a
		JOIN article_embeddings e ON e.article_id = a.id
		ORDER BY e.embedding <=> $1
		LIMIT $2`

	err := r.db.SelectContext(ctx, &articles, query, embedding, limit)
	if err != nil {
		return nil, err
	}

	return articles, nil
}
