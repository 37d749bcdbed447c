package social

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// SourceCollector fetches raw posts about an instrument from one platform.
// An empty slice with a nil error is a valid response. Implementations must
// honour ctx and never block past its deadline.
type SourceCollector interface {
	// Name returns the source identifier stored with every post
	Name() string

	// Fetch returns posts created at or after since
	Fetch(ctx context.Context, inst Instrument, since time.Time) ([]RawPost, error)
}

// Enabler is implemented by collectors that can be switched off for lack of
// credentials
type Enabler interface {
	Enabled() bool
}

// IsEnabled reports whether c is configured to make upstream calls
func IsEnabled(c SourceCollector) bool {
	if e, ok := c.(Enabler); ok {
		return e.Enabled()
	}
	return true
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// FakeCollector serves canned posts for tests and offline runs
type FakeCollector struct {
	name  string
	mu    sync.Mutex
	posts []RawPost
	err   error
	delay time.Duration
	panic bool
	calls int
}

// NewFakeCollector creates a fake collector returning posts
func NewFakeCollector(name string, posts ...RawPost) *FakeCollector {
	return &FakeCollector{name: name, posts: posts}
}

// Name returns the fake source id
func (f *FakeCollector) Name() string {
	return f.name
}

// SetFailure makes every subsequent Fetch return err
func (f *FakeCollector) SetFailure(err error) *FakeCollector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// SetDelay makes Fetch block for d or until ctx is done
func (f *FakeCollector) SetDelay(d time.Duration) *FakeCollector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// SetPanic makes Fetch panic
func (f *FakeCollector) SetPanic() *FakeCollector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panic = true
	return f
}

// Calls returns how many times Fetch was invoked
func (f *FakeCollector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Fetch returns the canned posts created at or after since
func (f *FakeCollector) Fetch(ctx context.Context, inst Instrument, since time.Time) ([]RawPost, error) {
	f.mu.Lock()
	f.calls++
	delay, err, shouldPanic := f.delay, f.err, f.panic
	posts := make([]RawPost, len(f.posts))
	copy(posts, f.posts)
	f.mu.Unlock()

	if shouldPanic {
		panic("fake collector " + f.name + " exploded")
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}

	out := posts[:0]
	for _, p := range posts {
		if p.Source == "" {
			p.Source = f.name
		}
		if !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}
