package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNoData is returned when a provider has no bars for a symbol and range
var ErrNoData = errors.New("no price data")

// PriceBar is one daily OHLCV bar
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range is an inclusive date range
type Range struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the range covering the n days up to end
func LastDays(end time.Time, n int) Range {
	return Range{Start: end.AddDate(0, 0, -n), End: end}
}

// Contains reports whether t falls within the range
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// PriceProvider returns daily bars ascending by date
type PriceProvider interface {
	GetBars(ctx context.Context, symbol string, r Range) ([]PriceBar, error)
}

// StaticProvider serves bars from memory
type StaticProvider struct {
	mu   sync.RWMutex
	bars map[string][]PriceBar
	errs map[string]error
}

// NewStaticProvider creates an empty static provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		bars: make(map[string][]PriceBar),
		errs: make(map[string]error),
	}
}

// SetBars replaces the bars for symbol; they are sorted by date
func (p *StaticProvider) SetBars(symbol string, bars []PriceBar) *StaticProvider {
	sorted := make([]PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[strings.ToUpper(symbol)] = sorted
	return p
}

// SetError makes GetBars fail for symbol
func (p *StaticProvider) SetError(symbol string, err error) *StaticProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[strings.ToUpper(symbol)] = err
	return p
}

// GetBars implements PriceProvider
func (p *StaticProvider) GetBars(ctx context.Context, symbol string, r Range) ([]PriceBar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	symbol = strings.ToUpper(symbol)
	if err := p.errs[symbol]; err != nil {
		return nil, err
	}

	var out []PriceBar
	for _, bar := range p.bars[symbol] {
		if r.Contains(bar.Date) {
			out = append(out, bar)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	return out, nil
}

// PercentChange returns the percent move of the last close against the close
// n bars from the end, or the first bar when fewer than n bars exist
func PercentChange(bars []PriceBar, n int) float64 {
	if len(bars) == 0 || n <= 0 {
		return 0
	}
	idx := len(bars) - n
	if idx < 0 {
		idx = 0
	}
	base := bars[idx].Close
	if base == 0 {
		return 0
	}
	return (bars[len(bars)-1].Close - base) / base * 100
}
