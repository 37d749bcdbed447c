package social

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidInput is returned for malformed queries, windows or request
	// parameters. It is raised before any I/O happens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSymbolNotFound is returned when a query cannot be resolved to an
	// instrument. It aborts the whole aggregation call.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrSourceUnavailable marks a collector or price fetch failure. Callers
	// recover from it locally by treating the source as empty.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInsufficientData marks a symbol without enough posts or bars to
	// produce a signal.
	ErrInsufficientData = errors.New("insufficient data")
)

// Instrument is a resolved tradable symbol
type Instrument struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
	CIK         string `json:"cik,omitempty"`
	ISIN        string `json:"isin,omitempty"`
	FIGI        string `json:"figi,omitempty"`
}

// Engagement holds the platform-reported interaction counts of a post
type Engagement struct {
	Likes     int `json:"likes"`
	Replies   int `json:"replies"`
	Reposts   int `json:"reposts"`
	Followers int `json:"followers"`
}

// RawPost is a post as returned by a collector. (Source, PlatformID) is the
// natural key.
type RawPost struct {
	Source       string     `json:"source"`      // Collector identifier (reddit, x, stocktwits, discord)
	PlatformID   string     `json:"platform_id"` // Platform-native post id
	AuthorID     string     `json:"author_id"`
	AuthorHandle string     `json:"author_handle,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Text         string     `json:"text"`
	Engagement   Engagement `json:"engagement"`
	Permalink    string     `json:"permalink,omitempty"`
	Lang         string     `json:"lang,omitempty"`
	ReplyToID    string     `json:"reply_to_id,omitempty"`
	RepostOfID   string     `json:"repost_of_id,omitempty"`
	URLs         []string   `json:"urls,omitempty"`
}

// Key returns the deduplication key of the post
func (p RawPost) Key() string {
	return p.Source + ":" + p.PlatformID
}

// CleanedPost is a RawPost with normalized text and at least one symbol
type CleanedPost struct {
	RawPost
	Symbols []string `json:"symbols"`
}

// SentimentScore is the bounded output of a sentiment model
type SentimentScore struct {
	Polarity     float64 `json:"polarity"`      // [-1, 1]
	Subjectivity float64 `json:"subjectivity"`  // [0, 1]
	SarcasmProb  float64 `json:"sarcasm_prob"`  // [0, 1]
	Confidence   float64 `json:"confidence"`    // [0, 1]
	Model        string  `json:"model"`
}

// Clamp forces every component into its documented range
func (s SentimentScore) Clamp() SentimentScore {
	s.Polarity = clamp(s.Polarity, -1, 1)
	s.Subjectivity = clamp(s.Subjectivity, 0, 1)
	s.SarcasmProb = clamp(s.SarcasmProb, 0, 1)
	s.Confidence = clamp(s.Confidence, 0, 1)
	return s
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
