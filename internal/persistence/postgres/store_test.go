package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/social"
)

var _ persistence.Store = (*Store)(nil)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewStore(sqlx.NewDb(mockDB, "postgres"), 5*time.Second), mock
}

func TestStore_UpsertPost(t *testing.T) {
	store, mock := newMockStore(t)

	post := social.CleanedPost{
		RawPost: social.RawPost{
			Source:     "x",
			PlatformID: "123",
			AuthorID:   "u1",
			CreatedAt:  time.Now(),
			Text:       "$AAPL breakout",
		},
		Symbols: []string{"AAPL"},
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO posts")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (source, platform_id) DO UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id1, err := store.UpsertPost(context.Background(), post)
	require.NoError(t, err)
	post.Text = "$AAPL breakout confirmed"
	id2, err := store.UpsertPost(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, int64(42), id1)
	assert.Equal(t, id1, id2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertSentiment(t *testing.T) {
	store, mock := newMockStore(t)
	score := social.SentimentScore{Polarity: 0.5, Subjectivity: 0.2, SarcasmProb: 0.1, Confidence: 0.6, Model: "simple_heuristic"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sentiment")).
		WithArgs(int64(7), 0.5, 0.2, 0.1, 0.6, "simple_heuristic").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpsertSentiment(context.Background(), 7, score))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sentiment")).
		WillReturnError(&pq.Error{Code: "23503"})
	err := store.UpsertSentiment(context.Background(), 8, score)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "post 8 not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Aggregate(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM posts p")).
		WithArgs("AAPL", since).
		WillReturnRows(sqlmock.NewRows([]string{"source", "count", "avg_polarity", "avg_confidence"}).
			AddRow("reddit", 3, -1.0, 0.6).
			AddRow("x", 1, 1.0, 0.3))

	rows, err := store.Aggregate(context.Background(), "AAPL", since)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, persistence.SourceAggregate{Source: "reddit", Count: 3, AvgPolarity: -1, AvgConfidence: 0.6}, rows[0])
	assert.Equal(t, "x", rows[1].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolutionCache(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resolver_cache")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.CacheResolution(ctx, "APPLE", social.Instrument{Symbol: "AAPL", DisplayName: "APPLE"}))

	mock.ExpectQuery(regexp.QuoteMeta("FROM resolver_cache")).
		WithArgs("APPLE", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "display_name", "cik", "isin", "figi"}).
			AddRow("AAPL", "APPLE", "", "", ""))
	inst, err := store.GetCachedResolution(ctx, "APPLE")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "AAPL", inst.Symbol)

	mock.ExpectQuery(regexp.QuoteMeta("FROM resolver_cache")).
		WithArgs("TESLA", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	inst, err = store.GetCachedResolution(ctx, "TESLA")
	require.NoError(t, err)
	assert.Nil(t, inst)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectPing()
	assert.NoError(t, store.Ping(context.Background()))

	check := persistence.Check(context.Background(), "postgres", store)
	assert.False(t, check.Healthy, "unexpected ping must fail")
	assert.Equal(t, "postgres", check.Backend)
}
