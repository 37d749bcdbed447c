package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/social"
)

// Store implements persistence.Store on PostgreSQL
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStore creates a store running every query with the given timeout
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// UpsertPost inserts a post or refreshes the existing row for its key
func (s *Store) UpsertPost(ctx context.Context, post social.CleanedPost) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO posts (source, platform_id, author_id, author_handle, created_at, text, symbols,
			likes, replies, reposts, followers, permalink, lang, reply_to_id, repost_of_id, urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (source, platform_id) DO UPDATE SET
			text = EXCLUDED.text,
			symbols = EXCLUDED.symbols,
			likes = EXCLUDED.likes,
			replies = EXCLUDED.replies,
			reposts = EXCLUDED.reposts,
			followers = EXCLUDED.followers,
			urls = EXCLUDED.urls,
			ingested_at = now()
		RETURNING id`

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		post.Source, post.PlatformID, post.AuthorID, nullString(post.AuthorHandle), post.CreatedAt,
		post.Text, pq.Array(nonNil(post.Symbols)),
		post.Engagement.Likes, post.Engagement.Replies, post.Engagement.Reposts, post.Engagement.Followers,
		nullString(post.Permalink), nullString(post.Lang), nullString(post.ReplyToID), nullString(post.RepostOfID),
		pq.Array(nonNil(post.URLs))).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert post %s: %w", post.Key(), err)
	}

	return id, nil
}

// UpsertSentiment stores or replaces the score of a post
func (s *Store) UpsertSentiment(ctx context.Context, postID int64, score social.SentimentScore) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO sentiment (post_id, polarity, subjectivity, sarcasm_prob, confidence, model)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (post_id) DO UPDATE SET
			polarity = EXCLUDED.polarity,
			subjectivity = EXCLUDED.subjectivity,
			sarcasm_prob = EXCLUDED.sarcasm_prob,
			confidence = EXCLUDED.confidence,
			model = EXCLUDED.model,
			scored_at = now()`

	_, err := s.db.ExecContext(ctx, query,
		postID, score.Polarity, score.Subjectivity, score.SarcasmProb, score.Confidence, score.Model)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return fmt.Errorf("post %d not found: %w", postID, err)
		}
		return fmt.Errorf("failed to upsert sentiment for post %d: %w", postID, err)
	}

	return nil
}

// Aggregate returns per-source counts and means for symbol since the given time
func (s *Store) Aggregate(ctx context.Context, symbol string, since time.Time) ([]persistence.SourceAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT p.source,
			COUNT(*) AS count,
			AVG(s.polarity) AS avg_polarity,
			AVG(s.confidence) AS avg_confidence
		FROM posts p
		JOIN sentiment s ON s.post_id = p.id
		WHERE $1 = ANY(p.symbols) AND p.created_at >= $2
		GROUP BY p.source
		ORDER BY p.source`

	var rows []persistence.SourceAggregate
	if err := s.db.SelectContext(ctx, &rows, query, symbol, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", symbol, err)
	}

	return rows, nil
}

// CacheResolution records a resolved query, refreshing its timestamp
func (s *Store) CacheResolution(ctx context.Context, query string, inst social.Instrument) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stmt := `
		INSERT INTO resolver_cache (query, symbol, display_name, cik, isin, figi)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (query) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			display_name = EXCLUDED.display_name,
			cik = EXCLUDED.cik,
			isin = EXCLUDED.isin,
			figi = EXCLUDED.figi,
			cached_at = now()`

	_, err := s.db.ExecContext(ctx, stmt, query, inst.Symbol, inst.DisplayName,
		nullString(inst.CIK), nullString(inst.ISIN), nullString(inst.FIGI))
	if err != nil {
		return fmt.Errorf("failed to cache resolution %q: %w", query, err)
	}
	return nil
}

// GetCachedResolution returns the cached instrument if younger than the TTL
func (s *Store) GetCachedResolution(ctx context.Context, query string) (*social.Instrument, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stmt := `
		SELECT symbol, display_name, COALESCE(cik, '') AS cik, COALESCE(isin, '') AS isin, COALESCE(figi, '') AS figi
		FROM resolver_cache
		WHERE query = $1 AND cached_at >= $2`

	var row struct {
		Symbol      string `db:"symbol"`
		DisplayName string `db:"display_name"`
		CIK         string `db:"cik"`
		ISIN        string `db:"isin"`
		FIGI        string `db:"figi"`
	}
	err := s.db.QueryRowxContext(ctx, stmt, query, time.Now().Add(-persistence.ResolutionTTL)).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resolution %q: %w", query, err)
	}

	return &social.Instrument{
		Symbol:      row.Symbol,
		DisplayName: row.DisplayName,
		CIK:         row.CIK,
		ISIN:        row.ISIN,
		FIGI:        row.FIGI,
	}, nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
