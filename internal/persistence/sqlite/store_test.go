package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/social"
)

var _ persistence.Store = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func cleaned(source, id, text string, created time.Time, symbols ...string) social.CleanedPost {
	return social.CleanedPost{
		RawPost: social.RawPost{Source: source, PlatformID: id, Text: text, CreatedAt: created},
		Symbols: symbols,
	}
}

func TestStore_UpsertPostLatestWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id1, err := store.UpsertPost(ctx, cleaned("x", "1", "first", now, "AAPL"))
	require.NoError(t, err)
	id2, err := store.UpsertPost(ctx, cleaned("x", "1", "second", now, "AAPL"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var posts []Post
	require.NoError(t, store.db.Find(&posts).Error)
	require.Len(t, posts, 1)
	assert.Equal(t, "second", posts[0].Text)
	assert.Equal(t, " AAPL ", posts[0].Symbols)
}

func TestStore_AggregateTwoStage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seed := []struct {
		post     social.CleanedPost
		polarity float64
	}{
		{cleaned("reddit", "r1", "a", now, "AAPL"), 1.0},
		{cleaned("x", "x1", "b", now, "AAPL"), -1.0},
		{cleaned("x", "x2", "c", now, "AAPL", "TSLA"), -1.0},
		{cleaned("x", "x3", "d", now, "AAPL"), -1.0},
		{cleaned("x", "x4", "e", now, "AAPLX"), 1.0},
		{cleaned("x", "x5", "f", now.Add(-72*time.Hour), "AAPL"), 1.0},
	}
	for _, s := range seed {
		id, err := store.UpsertPost(ctx, s.post)
		require.NoError(t, err)
		require.NoError(t, store.UpsertSentiment(ctx, id, social.SentimentScore{Polarity: s.polarity, Confidence: 0.6}))
	}

	rows, err := store.Aggregate(ctx, "AAPL", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, persistence.SourceAggregate{Source: "reddit", Count: 1, AvgPolarity: 1, AvgConfidence: 0.6}, rows[0])
	assert.Equal(t, "x", rows[1].Source)
	assert.Equal(t, 3, rows[1].Count)
	assert.InDelta(t, -1.0, rows[1].AvgPolarity, 1e-9)
}

func TestStore_UpsertSentimentUnknownPost(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.UpsertSentiment(context.Background(), 12345, social.SentimentScore{}))
}

func TestStore_ResolutionCache(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	store.WithClock(func() time.Time { return now })

	require.NoError(t, store.CacheResolution(ctx, "APPLE", social.Instrument{Symbol: "AAPL", DisplayName: "APPLE"}))
	require.NoError(t, store.CacheResolution(ctx, "APPLE", social.Instrument{Symbol: "AAPL", DisplayName: "APPLE INC"}))

	inst, err := store.GetCachedResolution(ctx, "APPLE")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "APPLE INC", inst.DisplayName)

	store.WithClock(func() time.Time { return now.Add(persistence.ResolutionTTL + time.Hour) })
	inst, err = store.GetCachedResolution(ctx, "APPLE")
	require.NoError(t, err)
	assert.Nil(t, inst)

	assert.NoError(t, store.Ping(ctx))
}
