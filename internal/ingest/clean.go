package ingest

import (
	"fmt"

	"github.com/sawpanic/sentirun/internal/nlp"
	"github.com/sawpanic/sentirun/internal/social"
)

// Drop reasons reported in AggregateResult.Dropped
const (
	ReasonNoSymbols     = "no_symbols"
	ReasonProbableBot   = "probable_bot"
	ReasonMalformed     = "malformed"
	ReasonPersistFailed = "persist_failed"
	ReasonScoreFailed   = "score_failed"
)

// DropReasons lists every reason in reporting order
var DropReasons = []string{
	ReasonNoSymbols,
	ReasonProbableBot,
	ReasonMalformed,
	ReasonPersistFailed,
	ReasonScoreFailed,
}

// Outcome is the result of cleaning one post: either kept, or skipped with a reason
type Outcome struct {
	Post   social.CleanedPost
	Reason string
	Err    error
}

// Kept reports whether the post survived cleaning
func (o Outcome) Kept() bool {
	return o.Reason == ""
}

// CleanPost normalizes post, extracts its symbols and applies filter. A panic
// while cleaning yields a malformed outcome instead of propagating.
func CleanPost(post social.RawPost, inst social.Instrument, filter nlp.NoiseFilter) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Reason: ReasonMalformed, Err: fmt.Errorf("cleaning %s panicked: %v", post.Key(), r)}
		}
	}()

	cleaned := nlp.Clean(post, inst)
	if len(cleaned.Symbols) == 0 {
		return Outcome{Reason: ReasonNoSymbols}
	}
	if filter != nil && filter.IsProbableBot(&cleaned) {
		return Outcome{Reason: ReasonProbableBot}
	}
	return Outcome{Post: cleaned}
}
