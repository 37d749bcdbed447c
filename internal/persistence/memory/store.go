package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/social"
)

type storedPost struct {
	id         int64
	post       social.CleanedPost
	ingestedAt time.Time
}

type cachedResolution struct {
	inst     social.Instrument
	cachedAt time.Time
}

// Store is a mutex-guarded in-process implementation of persistence.Store
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	nextID      int64
	posts       map[string]*storedPost // keyed by source:platform id
	byID        map[int64]*storedPost
	sentiment   map[int64]social.SentimentScore
	resolutions map[string]cachedResolution
}

// Stats summarizes store contents
type Stats struct {
	Posts       int `json:"posts"`
	Sentiments  int `json:"sentiments"`
	Resolutions int `json:"resolutions"`
}

// New creates an empty store
func New() *Store {
	return &Store{
		now:         time.Now,
		posts:       make(map[string]*storedPost),
		byID:        make(map[int64]*storedPost),
		sentiment:   make(map[int64]social.SentimentScore),
		resolutions: make(map[string]cachedResolution),
	}
}

// WithClock replaces the time source, mainly for tests
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// UpsertPost implements persistence.Store
func (s *Store) UpsertPost(ctx context.Context, post social.CleanedPost) (int64, error) {
	if post.Source == "" || post.PlatformID == "" {
		return 0, fmt.Errorf("post key is incomplete: %w", social.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := post.Key()
	if existing, ok := s.posts[key]; ok {
		existing.post = post
		existing.ingestedAt = s.now()
		return existing.id, nil
	}

	s.nextID++
	sp := &storedPost{id: s.nextID, post: post, ingestedAt: s.now()}
	s.posts[key] = sp
	s.byID[sp.id] = sp
	return sp.id, nil
}

// UpsertSentiment implements persistence.Store
func (s *Store) UpsertSentiment(ctx context.Context, postID int64, score social.SentimentScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[postID]; !ok {
		return fmt.Errorf("post %d not found", postID)
	}
	s.sentiment[postID] = score
	return nil
}

// Aggregate implements persistence.Store
func (s *Store) Aggregate(ctx context.Context, symbol string, since time.Time) ([]persistence.SourceAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		count           int
		polSum, confSum float64
	}
	bySource := make(map[string]*acc)

	for id, score := range s.sentiment {
		sp := s.byID[id]
		if sp.post.CreatedAt.Before(since) || !slices.Contains(sp.post.Symbols, symbol) {
			continue
		}
		a, ok := bySource[sp.post.Source]
		if !ok {
			a = &acc{}
			bySource[sp.post.Source] = a
		}
		a.count++
		a.polSum += score.Polarity
		a.confSum += score.Confidence
	}

	out := make([]persistence.SourceAggregate, 0, len(bySource))
	for source, a := range bySource {
		out = append(out, persistence.SourceAggregate{
			Source:        source,
			Count:         a.count,
			AvgPolarity:   a.polSum / float64(a.count),
			AvgConfidence: a.confSum / float64(a.count),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// CacheResolution implements persistence.Store
func (s *Store) CacheResolution(ctx context.Context, query string, inst social.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions[query] = cachedResolution{inst: inst, cachedAt: s.now()}
	return nil
}

// GetCachedResolution implements persistence.Store
func (s *Store) GetCachedResolution(ctx context.Context, query string) (*social.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.resolutions[query]
	if !ok || s.now().Sub(entry.cachedAt) > persistence.ResolutionTTL {
		return nil, nil
	}
	inst := entry.inst
	return &inst, nil
}

// Post returns the stored post for a key
func (s *Store) Post(source, platformID string) (social.CleanedPost, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.posts[source+":"+platformID]
	if !ok {
		return social.CleanedPost{}, false
	}
	return sp.post, true
}

// Stats returns store counts
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Posts:       len(s.posts),
		Sentiments:  len(s.sentiment),
		Resolutions: len(s.resolutions),
	}
}

// Clear drops all data
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = make(map[string]*storedPost)
	s.byID = make(map[int64]*storedPost)
	s.sentiment = make(map[int64]social.SentimentScore)
	s.resolutions = make(map[string]cachedResolution)
}

// Close is a no-op
func (s *Store) Close() error { return nil }
