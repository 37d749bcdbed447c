package social

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sawpanic/sentirun/internal/datasources"
)

// DiscordConfig configures history reads from allow-listed channels
type DiscordConfig struct {
	BotToken         string        `yaml:"bot_token" env:"DISCORD_BOT_TOKEN"`
	GuildID          string        `yaml:"guild_id" env:"DISCORD_GUILD_ID"`
	ChannelAllowlist []string      `yaml:"channel_allowlist" env:"DISCORD_CHANNEL_ALLOWLIST"`
	APIURL           string        `yaml:"api_url"`
	Limit            int           `yaml:"limit"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DefaultDiscordConfig returns the v10 REST endpoint
func DefaultDiscordConfig() DiscordConfig {
	return DiscordConfig{
		APIURL:  "https://discord.com/api/v10",
		Limit:   100,
		Timeout: 15 * time.Second,
	}
}

// DiscordCollector reads recent messages from allow-listed channels only
type DiscordCollector struct {
	config DiscordConfig
	client datasources.HTTPClient
	guard  *datasources.Guard
}

// NewDiscordCollector creates a collector. client may be nil.
func NewDiscordCollector(config DiscordConfig, client datasources.HTTPClient, guard *datasources.Guard) *DiscordCollector {
	if client == nil {
		client = defaultHTTPClient(config.Timeout)
	}
	if config.Limit <= 0 || config.Limit > 100 {
		config.Limit = 100
	}
	return &DiscordCollector{config: config, client: client, guard: guard}
}

// Name returns "discord"
func (c *DiscordCollector) Name() string { return "discord" }

// Enabled reports whether a bot token and at least one channel are configured
func (c *DiscordCollector) Enabled() bool {
	return c.config.BotToken != "" && len(c.config.ChannelAllowlist) > 0
}

type discordMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
	Reactions []struct {
		Count int `json:"count"`
	} `json:"reactions"`
	Reference *struct {
		MessageID string `json:"message_id"`
	} `json:"message_reference"`
}

// Fetch reads channel history and keeps messages mentioning the instrument.
// Messages from bot accounts are skipped.
func (c *DiscordCollector) Fetch(ctx context.Context, inst Instrument, since time.Time) ([]RawPost, error) {
	if !c.Enabled() {
		return nil, nil
	}

	needles := []string{"$" + strings.ToUpper(inst.Symbol), strings.ToUpper(inst.Symbol)}
	if inst.DisplayName != "" {
		needles = append(needles, strings.ToUpper(inst.DisplayName))
	}

	var posts []RawPost
	for _, channel := range c.config.ChannelAllowlist {
		endpoint := fmt.Sprintf("%s/channels/%s/messages?limit=%d", c.config.APIURL, channel, c.config.Limit)
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bot "+c.config.BotToken)

		var messages []discordMessage
		if err := datasources.DoJSON(ctx, c.client, c.guard, req, &messages); err != nil {
			return nil, fmt.Errorf("discord channel %s: %w", channel, err)
		}

		for _, m := range messages {
			if m.Author.Bot || m.Timestamp.Before(since) || !mentionsAny(m.Content, needles) {
				continue
			}
			reactions := 0
			for _, r := range m.Reactions {
				reactions += r.Count
			}
			post := RawPost{
				Source:       c.Name(),
				PlatformID:   m.ID,
				AuthorID:     m.Author.ID,
				AuthorHandle: m.Author.Username,
				CreatedAt:    m.Timestamp.UTC(),
				Text:         m.Content,
				Engagement:   Engagement{Likes: reactions},
			}
			if c.config.GuildID != "" {
				post.Permalink = fmt.Sprintf("https://discord.com/channels/%s/%s/%s", c.config.GuildID, channel, m.ID)
			}
			if m.Reference != nil {
				post.ReplyToID = m.Reference.MessageID
			}
			posts = append(posts, post)
		}
	}

	return posts, nil
}

func mentionsAny(text string, needles []string) bool {
	upper := strings.ToUpper(text)
	for _, n := range needles {
		if n != "" && strings.Contains(upper, n) {
			return true
		}
	}
	return false
}
