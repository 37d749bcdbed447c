package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentirun/internal/nlp"
	"github.com/sawpanic/sentirun/internal/social"
)

func TestCleanPost(t *testing.T) {
	inst := social.Instrument{Symbol: "AAPL", DisplayName: "APPLE"}

	kept := CleanPost(social.RawPost{Source: "x", PlatformID: "1", Text: "Apple earnings look bullish this quarter"}, inst, nil)
	require.True(t, kept.Kept())
	assert.Equal(t, []string{"AAPL"}, kept.Post.Symbols)

	none := CleanPost(social.RawPost{Source: "x", PlatformID: "2", Text: "nothing relevant in this long message"}, inst, nil)
	assert.Equal(t, ReasonNoSymbols, none.Reason)

	always := nlp.FilterFunc(func(*social.CleanedPost) bool { return true })
	bot := CleanPost(social.RawPost{Source: "x", PlatformID: "3", Text: "$AAPL to the moon tonight friends"}, inst, always)
	assert.Equal(t, ReasonProbableBot, bot.Reason)

	boom := CleanPost(social.RawPost{Source: "x", PlatformID: "4", Text: "$AAPL broken filter ahead of us"}, inst, nlp.FilterFunc(func(*social.CleanedPost) bool { panic("bad") }))
	assert.Equal(t, ReasonMalformed, boom.Reason)
	assert.Error(t, boom.Err)
}
