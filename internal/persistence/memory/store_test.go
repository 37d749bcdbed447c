package memory

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

func post(source, id, text string, created time.Time, symbols ...string) social.CleanedPost {
	return social.CleanedPost{
		RawPost: social.RawPost{Source: source, PlatformID: id, Text: text, CreatedAt: created},
		Symbols: symbols,
	}
}

func TestStore_UpsertPostDeduplicates(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	id1, err := store.UpsertPost(ctx, post("x", "1", "first version", now, "AAPL"))
	require.NoError(t, err)
	id2, err := store.UpsertPost(ctx, post("x", "1", "edited version", now, "AAPL"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, store.Stats().Posts)

	stored, ok := store.Post("x", "1")
	require.True(t, ok)
	assert.Equal(t, "edited version", stored.Text, "latest upsert wins")

	id3, err := store.UpsertPost(ctx, post("reddit", "1", "same id other source", now, "AAPL"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)

	_, err = store.UpsertPost(ctx, post("", "1", "no source", now))
	assert.ErrorIs(t, err, social.ErrInvalidInput)
}

func TestStore_UpsertSentimentReplaces(t *testing.T) {
	store := New()
	ctx := context.Background()

	id, err := store.UpsertPost(ctx, post("x", "1", "$AAPL", time.Now(), "AAPL"))
	require.NoError(t, err)

	require.NoError(t, store.UpsertSentiment(ctx, id, social.SentimentScore{Polarity: 0.2}))
	require.NoError(t, store.UpsertSentiment(ctx, id, social.SentimentScore{Polarity: 0.8}))
	assert.Equal(t, 1, store.Stats().Sentiments)

	rows, err := store.Aggregate(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.8, rows[0].AvgPolarity)

	assert.Error(t, store.UpsertSentiment(ctx, 999, social.SentimentScore{}))
}

func TestStore_Aggregate(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	seed := []struct {
		p     social.CleanedPost
		score float64
		conf  float64
	}{
		{post("x", "1", "a", now, "AAPL"), 1.0, 0.6},
		{post("x", "2", "b", now, "AAPL", "TSLA"), 0.0, 0.4},
		{post("reddit", "3", "c", now, "AAPL"), -1.0, 0.3},
		{post("reddit", "4", "d", now.Add(-48*time.Hour), "AAPL"), 1.0, 0.6},
		{post("reddit", "5", "e", now, "TSLA"), 1.0, 0.6},
	}
	for _, s := range seed {
		id, err := store.UpsertPost(ctx, s.p)
		require.NoError(t, err)
		require.NoError(t, store.UpsertSentiment(ctx, id, social.SentimentScore{Polarity: s.score, Confidence: s.conf}))
	}

	rows, err := store.Aggregate(ctx, "AAPL", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "reddit", rows[0].Source)
	assert.Equal(t, 1, rows[0].Count)
	assert.Equal(t, -1.0, rows[0].AvgPolarity)

	assert.Equal(t, "x", rows[1].Source)
	assert.Equal(t, 2, rows[1].Count)
	assert.InDelta(t, 0.5, rows[1].AvgPolarity, 1e-9)
	assert.InDelta(t, 0.5, rows[1].AvgConfidence, 1e-9)

	none, err := store.Aggregate(ctx, "MSFT", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ResolutionTTL(t *testing.T) {
	now := time.Now()
	store := New().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.CacheResolution(ctx, "APPLE", social.Instrument{Symbol: "AAPL"}))

	inst, err := store.GetCachedResolution(ctx, "APPLE")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "AAPL", inst.Symbol)

	now = now.Add(persistence.ResolutionTTL + time.Minute)
	inst, err = store.GetCachedResolution(ctx, "APPLE")
	require.NoError(t, err)
	assert.Nil(t, inst)

	store.Clear()
	assert.Equal(t, Stats{}, store.Stats())
}
