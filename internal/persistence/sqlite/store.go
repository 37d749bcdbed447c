package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/social"
)

// Post is the posts table. Symbols are stored space-delimited with leading
// and trailing spaces so a LIKE '% SYM %' match is exact. Times are UTC.
type Post struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Source       string    `gorm:"uniqueIndex:idx_source_platform;not null"`
	PlatformID   string    `gorm:"uniqueIndex:idx_source_platform;not null"`
	AuthorID     string
	AuthorHandle string
	CreatedAt    time.Time `gorm:"index;not null"`
	Text         string    `gorm:"not null"`
	Symbols      string    `gorm:"index"`
	Likes        int
	Replies      int
	Reposts      int
	Followers    int
	Permalink    string
	Lang         string
	ReplyToID    string
	RepostOfID   string
	URLs         string `gorm:"column:urls"`
	IngestedAt   time.Time
}

// Sentiment is the sentiment table, one row per post
type Sentiment struct {
	PostID       int64 `gorm:"primaryKey;autoIncrement:false"`
	Polarity     float64
	Subjectivity float64
	SarcasmProb  float64
	Confidence   float64
	Model        string
	ScoredAt     time.Time
}

// Resolution is the resolver cache table
type Resolution struct {
	Query       string `gorm:"column:lookup;primaryKey"`
	Symbol      string `gorm:"not null"`
	DisplayName string
	CIK         string
	ISIN        string
	FIGI        string
	CachedAt    time.Time `gorm:"index"`
}

// Store implements persistence.Store on a local SQLite file through gorm
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an existing gorm connection and migrates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Post{}, &Sentiment{}, &Resolution{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// WithClock replaces the time source, mainly for tests
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func joinSymbols(symbols []string) string {
	if len(symbols) == 0 {
		return ""
	}
	return " " + strings.Join(symbols, " ") + " "
}

// UpsertPost implements persistence.Store
func (s *Store) UpsertPost(ctx context.Context, post social.CleanedPost) (int64, error) {
	row := Post{
		Source:       post.Source,
		PlatformID:   post.PlatformID,
		AuthorID:     post.AuthorID,
		AuthorHandle: post.AuthorHandle,
		CreatedAt:    post.CreatedAt.UTC(),
		Text:         post.Text,
		Symbols:      joinSymbols(post.Symbols),
		Likes:        post.Engagement.Likes,
		Replies:      post.Engagement.Replies,
		Reposts:      post.Engagement.Reposts,
		Followers:    post.Engagement.Followers,
		Permalink:    post.Permalink,
		Lang:         post.Lang,
		ReplyToID:    post.ReplyToID,
		RepostOfID:   post.RepostOfID,
		URLs:         strings.Join(post.URLs, " "),
		IngestedAt:   s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source"}, {Name: "platform_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"text", "symbols", "likes", "replies", "reposts", "followers", "urls", "ingested_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert post %s: %w", post.Key(), err)
	}

	// sqlite does not report the id of an updated row
	var stored Post
	err = s.db.WithContext(ctx).
		Select("id").
		Where("source = ? AND platform_id = ?", post.Source, post.PlatformID).
		Take(&stored).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read post id %s: %w", post.Key(), err)
	}
	return stored.ID, nil
}

// UpsertSentiment implements persistence.Store
func (s *Store) UpsertSentiment(ctx context.Context, postID int64, score social.SentimentScore) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("post %d not found", postID)
	}

	row := Sentiment{
		PostID:       postID,
		Polarity:     score.Polarity,
		Subjectivity: score.Subjectivity,
		SarcasmProb:  score.SarcasmProb,
		Confidence:   score.Confidence,
		Model:        score.Model,
		ScoredAt:     s.now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// Aggregate implements persistence.Store
func (s *Store) Aggregate(ctx context.Context, symbol string, since time.Time) ([]persistence.SourceAggregate, error) {
	var rows []persistence.SourceAggregate
	err := s.db.WithContext(ctx).
		Table("posts AS p").
		Select("p.source AS source, COUNT(*) AS count, AVG(s.polarity) AS avg_polarity, AVG(s.confidence) AS avg_confidence").
		Joins("JOIN sentiments AS s ON s.post_id = p.id").
		Where("p.symbols LIKE ? AND p.created_at >= ?", "% "+symbol+" %", since.UTC()).
		Group("p.source").
		Order("p.source").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", symbol, err)
	}
	return rows, nil
}

// CacheResolution implements persistence.Store
func (s *Store) CacheResolution(ctx context.Context, query string, inst social.Instrument) error {
	row := Resolution{
		Query:       query,
		Symbol:      inst.Symbol,
		DisplayName: inst.DisplayName,
		CIK:         inst.CIK,
		ISIN:        inst.ISIN,
		FIGI:        inst.FIGI,
		CachedAt:    s.now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// GetCachedResolution implements persistence.Store
func (s *Store) GetCachedResolution(ctx context.Context, query string) (*social.Instrument, error) {
	var row Resolution
	err := s.db.WithContext(ctx).
		Where("lookup = ? AND cached_at >= ?", query, s.now().Add(-persistence.ResolutionTTL).UTC()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &social.Instrument{
		Symbol:      row.Symbol,
		DisplayName: row.DisplayName,
		CIK:         row.CIK,
		ISIN:        row.ISIN,
		FIGI:        row.FIGI,
	}, nil
}

// Ping checks the underlying connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
