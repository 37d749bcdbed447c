package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Progress logs batch progress every N items and a summary when finished.
// It is safe for concurrent use.
type Progress struct {
	mu        sync.Mutex
	name      string
	total     int
	every     int
	current   int
	failed    int
	startTime time.Time
}

// NewProgress creates a progress logger for total items reporting every n items
func NewProgress(name string, total, every int) *Progress {
	if every <= 0 {
		every = 20
	}
	return &Progress{
		name:      name,
		total:     total,
		every:     every,
		startTime: time.Now(),
	}
}

// Increment records one finished item and returns the running count
func (p *Progress) Increment() int {
	return p.record(false)
}

// Failure records one item that finished with an error
func (p *Progress) Failure() int {
	return p.record(true)
}

func (p *Progress) record(failed bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	if failed {
		p.failed++
	}

	if p.current%p.every == 0 && p.current < p.total {
		elapsed := time.Since(p.startTime)
		event := log.Info().
			Str("operation", p.name).
			Int("processed", p.current).
			Int("total", p.total).
			Dur("elapsed", elapsed)
		if rate := float64(p.current) / elapsed.Seconds(); elapsed > 0 && p.total > p.current {
			event = event.Dur("eta", time.Duration(float64(p.total-p.current)/rate*float64(time.Second)))
		}
		event.Msg("Progress")
	}
	return p.current
}

// Current returns the number of items recorded so far
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish logs the completion summary
func (p *Progress) Finish(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.Info().
		Str("operation", p.name).
		Int("processed", p.current).
		Int("total", p.total).
		Int("failed", p.failed).
		Dur("duration", time.Since(p.startTime)).
		Msg(msg)
}

// StepTimer logs the duration of named pipeline steps
type StepTimer struct {
	name    string
	started time.Time
	step    string
	stepAt  time.Time
	steps   []StepTiming
}

// StepTiming is one completed step
type StepTiming struct {
	Step     string
	Duration time.Duration
}

// NewStepTimer starts timing a pipeline
func NewStepTimer(name string) *StepTimer {
	now := time.Now()
	return &StepTimer{name: name, started: now, stepAt: now}
}

// Start closes the running step, if any, and begins step
func (t *StepTimer) Start(step string) {
	t.complete()
	t.step = step
	t.stepAt = time.Now()
	log.Debug().Str("pipeline", t.name).Str("step", step).Msg("Starting pipeline step")
}

func (t *StepTimer) complete() {
	if t.step == "" {
		return
	}
	d := time.Since(t.stepAt)
	t.steps = append(t.steps, StepTiming{Step: t.step, Duration: d})
	log.Debug().Str("pipeline", t.name).Str("step", t.step).Dur("duration", d).Msg("Pipeline step completed")
	t.step = ""
}

// Finish closes the running step and returns every step timing
func (t *StepTimer) Finish() []StepTiming {
	t.complete()
	log.Debug().Str("pipeline", t.name).Dur("total_duration", time.Since(t.started)).Int("steps", len(t.steps)).Msg("Pipeline completed")
	return t.steps
}
