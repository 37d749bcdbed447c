package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/sawpanic/sentirun/internal/datasources"
	"github.com/sawpanic/sentirun/internal/social"
)

// Scorer assigns a bounded sentiment tuple to a piece of text
type Scorer interface {
	Score(ctx context.Context, text string) (social.SentimentScore, error)
	Model() string
}

// Config selects and configures a Scorer
type Config struct {
	Model    string        `yaml:"model" env:"SENTIRUN_SENTIMENT_MODEL"`       // lexicon | remote
	Endpoint string        `yaml:"endpoint" env:"SENTIRUN_SENTIMENT_ENDPOINT"` // remote inference URL
	APIKey   string        `yaml:"api_key" env:"SENTIMENT_API_KEY"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig selects the lexicon scorer
func DefaultConfig() Config {
	return Config{Model: LexiconModel, Timeout: 10 * time.Second}
}

// NewScorer builds the scorer named by config.Model. client is only used by
// the remote model and may be nil.
func NewScorer(config Config, client datasources.HTTPClient, guard *datasources.Guard) (Scorer, error) {
	switch strings.ToLower(config.Model) {
	case "", LexiconModel, "lexicon":
		return NewLexiconScorer(), nil
	case "remote":
		if config.Endpoint == "" {
			return nil, fmt.Errorf("remote sentiment model requires an endpoint: %w", social.ErrInvalidInput)
		}
		return NewRemoteScorer(config, client, guard), nil
	default:
		return nil, fmt.Errorf("unknown sentiment model %q: %w", config.Model, social.ErrInvalidInput)
	}
}

// LexiconModel is the model id recorded for lexicon scores
const LexiconModel = "simple_heuristic"

var (
	positiveWords = map[string]bool{
		"bullish": true, "moon": true, "buy": true, "long": true,
		"growth": true, "profit": true, "gain": true, "up": true,
	}
	negativeWords = map[string]bool{
		"bearish": true, "crash": true, "sell": true, "short": true,
		"loss": true, "down": true, "dump": true,
	}
	sarcasmMarkers = []string{"yeah right", "sure", "🙄"}
)

// LexiconScorer counts positive and negative trading words
type LexiconScorer struct{}

// NewLexiconScorer creates the word-count scorer
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{}
}

// Model returns the model id
func (s *LexiconScorer) Model() string { return LexiconModel }

// Score never fails
func (s *LexiconScorer) Score(ctx context.Context, text string) (social.SentimentScore, error) {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	// each lexicon word counts once, however often it appears
	seen := make(map[string]bool, len(words))
	pos, neg := 0, 0
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}

	score := social.SentimentScore{
		Subjectivity: math.Min(1, float64(len([]rune(text)))/280*0.7),
		SarcasmProb:  0.1,
		Confidence:   0.3,
		Model:        LexiconModel,
	}
	if total := pos + neg; total > 0 {
		score.Polarity = float64(pos-neg) / float64(total)
		score.Confidence = 0.6
	}
	for _, marker := range sarcasmMarkers {
		if strings.Contains(lower, marker) {
			score.SarcasmProb = 0.8
			break
		}
	}

	return score.Clamp(), nil
}

// RemoteScorer posts text to an inference endpoint returning a score tuple
type RemoteScorer struct {
	config Config
	client datasources.HTTPClient
	guard  *datasources.Guard
}

// NewRemoteScorer creates a scorer for config.Endpoint. client may be nil.
func NewRemoteScorer(config Config, client datasources.HTTPClient, guard *datasources.Guard) *RemoteScorer {
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteScorer{config: config, client: client, guard: guard}
}

// Model returns the remote model id
func (s *RemoteScorer) Model() string { return "remote:" + s.config.Endpoint }

type remoteScoreResponse struct {
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
	Sarcasm      float64 `json:"sarcasm_prob"`
	Confidence   float64 `json:"confidence"`
	Model        string  `json:"model"`
}

// Score sends the text and clamps the returned tuple into range
func (s *RemoteScorer) Score(ctx context.Context, text string) (social.SentimentScore, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return social.SentimentScore{}, err
	}

	req, err := http.NewRequest(http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return social.SentimentScore{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	var resp remoteScoreResponse
	if err := datasources.DoJSON(ctx, s.client, s.guard, req, &resp); err != nil {
		return social.SentimentScore{}, fmt.Errorf("remote sentiment: %w", err)
	}

	model := resp.Model
	if model == "" {
		model = s.Model()
	}
	return social.SentimentScore{
		Polarity:     resp.Polarity,
		Subjectivity: resp.Subjectivity,
		SarcasmProb:  resp.Sarcasm,
		Confidence:   resp.Confidence,
		Model:        model,
	}.Clamp(), nil
}
