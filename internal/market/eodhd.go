package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentirun/internal/datasources"
)

// EODHDConfig configures the EODHD end-of-day provider
type EODHDConfig struct {
	APIKey   string        `yaml:"api_key" env:"EODHD_API_KEY"`
	BaseURL  string        `yaml:"base_url"`
	Exchange string        `yaml:"exchange"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultEODHDConfig targets US listings on eodhd.com
func DefaultEODHDConfig() EODHDConfig {
	return EODHDConfig{
		BaseURL:  "https://eodhd.com/api",
		Exchange: "US",
		Timeout:  15 * time.Second,
	}
}

// EODHDProvider fetches daily bars from the EODHD eod endpoint
type EODHDProvider struct {
	config EODHDConfig
	client datasources.HTTPClient
	guard  *datasources.Guard
	cache  *datasources.TTLCache[[]PriceBar]
}

type eodhdBar struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        float64 `json:"volume"`
}

// NewEODHDProvider creates a provider. client may be nil; guard may be nil.
func NewEODHDProvider(config EODHDConfig, client datasources.HTTPClient, guard *datasources.Guard) *EODHDProvider {
	defaults := DefaultEODHDConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Exchange == "" {
		config.Exchange = defaults.Exchange
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &EODHDProvider{
		config: config,
		client: client,
		guard:  guard,
		cache:  datasources.NewTTLCache[[]PriceBar](time.Hour),
	}
}

// GetBars implements PriceProvider
func (p *EODHDProvider) GetBars(ctx context.Context, symbol string, r Range) ([]PriceBar, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("eodhd api key not configured: %w", ErrNoData)
	}

	symbol = strings.ToUpper(symbol)
	from, to := r.Start.Format("2006-01-02"), r.End.Format("2006-01-02")
	cacheKey := symbol + "|" + from + "|" + to
	if bars, ok := p.cache.Get(cacheKey); ok {
		return bars, nil
	}

	q := url.Values{}
	q.Set("api_token", p.config.APIKey)
	q.Set("fmt", "json")
	q.Set("period", "d")
	q.Set("from", from)
	q.Set("to", to)
	endpoint := fmt.Sprintf("%s/eod/%s.%s?%s", strings.TrimRight(p.config.BaseURL, "/"), url.PathEscape(symbol), p.config.Exchange, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	var raw []eodhdBar
	if err := datasources.DoJSON(ctx, p.client, p.guard, req, &raw); err != nil {
		return nil, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}

	bars := make([]PriceBar, 0, len(raw))
	for _, b := range raw {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			log.Debug().Str("symbol", symbol).Str("date", b.Date).Msg("Skipping bar with bad date")
			continue
		}
		bars = append(bars, PriceBar{Date: date, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	p.cache.Set(cacheKey, bars)
	return bars, nil
}
