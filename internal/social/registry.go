package social

import (
	"github.com/sawpanic/sentirun/internal/datasources"
)

// CollectorsConfig groups the configuration of every platform collector
type CollectorsConfig struct {
	Reddit     RedditConfig     `yaml:"reddit"`
	X          XConfig          `yaml:"x"`
	StockTwits StockTwitsConfig `yaml:"stocktwits"`
	Discord    DiscordConfig    `yaml:"discord"`
}

// DefaultCollectorsConfig returns defaults for all four platforms
func DefaultCollectorsConfig() CollectorsConfig {
	return CollectorsConfig{
		Reddit:     DefaultRedditConfig(),
		X:          DefaultXConfig(),
		StockTwits: DefaultStockTwitsConfig(),
		Discord:    DefaultDiscordConfig(),
	}
}

// NewCollectors builds the four platform collectors, each guarded by the
// registry entry of the same name and sharing client. A nil client gives each
// collector its own. Collectors without credentials are still returned; they
// report zero posts.
func NewCollectors(config CollectorsConfig, client datasources.HTTPClient, guards *datasources.GuardRegistry) []SourceCollector {
	if guards == nil {
		guards = datasources.NewGuardRegistry()
	}
	return []SourceCollector{
		NewRedditCollector(config.Reddit, client, guards.Get("reddit")),
		NewXCollector(config.X, client, guards.Get("x")),
		NewStockTwitsCollector(config.StockTwits, client, guards.Get("stocktwits")),
		NewDiscordCollector(config.Discord, client, guards.Get("discord")),
	}
}
