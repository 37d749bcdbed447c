package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentirun/internal/datasources"
	"github.com/sawpanic/sentirun/internal/scanner"
)

// Discord rejects webhook payloads with more than ten embeds
const maxEmbedsPerMessage = 10

const (
	colorBlue  = 0x3498db
	colorGreen = 0x2ecc71
	colorRed   = 0xe74c3c
)

// DiscordConfig configures the webhook notifier
type DiscordConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"DISCORD_WEBHOOK_URL"`
	Username   string        `yaml:"username"`
	MaxLoss    float64       `yaml:"-"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Notifier delivers scan results to a chat channel
type Notifier interface {
	NotifyOpportunities(ctx context.Context, opps []scanner.Opportunity) error
}

// DiscordNotifier posts scan results to a Discord webhook
type DiscordNotifier struct {
	config DiscordConfig
	client datasources.HTTPClient
	now    func() time.Time
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// NewDiscordNotifier creates a notifier. client may be nil.
func NewDiscordNotifier(config DiscordConfig, client datasources.HTTPClient) (*DiscordNotifier, error) {
	if config.WebhookURL == "" {
		return nil, fmt.Errorf("discord webhook url is required")
	}
	if config.Username == "" {
		config.Username = "sentirun"
	}
	if config.MaxLoss <= 0 {
		config.MaxLoss = scanner.DefaultConfig().MaxLoss
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &DiscordNotifier{config: config, client: client, now: time.Now}, nil
}

// NotifyOpportunities posts a header plus one embed per opportunity, split
// into as many messages as Discord's embed limit requires
func (n *DiscordNotifier) NotifyOpportunities(ctx context.Context, opps []scanner.Opportunity) error {
	if len(opps) == 0 {
		return n.send(ctx, webhookPayload{
			Username: n.config.Username,
			Content:  "📊 **Daily Market Scan** - No high-conviction opportunities found today.",
		})
	}

	embeds := n.buildEmbeds(opps)
	for start := 0; start < len(embeds); start += maxEmbedsPerMessage {
		end := min(start+maxEmbedsPerMessage, len(embeds))
		if err := n.send(ctx, webhookPayload{Username: n.config.Username, Embeds: embeds[start:end]}); err != nil {
			return err
		}
	}

	log.Info().Int("opportunities", len(opps)).Msg("Posted opportunities to Discord")
	return nil
}

func (n *DiscordNotifier) buildEmbeds(opps []scanner.Opportunity) []embed {
	embeds := make([]embed, 0, len(opps)+1)
	embeds = append(embeds, embed{
		Title:       "📊 Swing Trading Scan",
		Description: fmt.Sprintf("Found %d high-conviction opportunities", len(opps)),
		Color:       colorBlue,
		Footer:      &embedFooter{Text: "Scan time: " + n.now().UTC().Format("2006-01-02 15:04:05 UTC")},
	})

	for i, opp := range opps {
		color := colorRed
		if opp.SentimentPolarity > 0 {
			color = colorGreen
		}
		embeds = append(embeds, embed{
			Title:       fmt.Sprintf("%d. %s - %s", i+1, opp.Symbol, opp.DisplayName),
			Description: opp.ReasonText,
			Color:       color,
			Fields: []embedField{
				{Name: "Signal Strength", Value: fmt.Sprintf("%s %.1f/10 (%s)", ConvictionBar(opp.ConvictionScore), opp.ConvictionScore, opp.SignalType)},
				{Name: "Sentiment", Value: fmt.Sprintf("Polarity: `%.2f`\nConfidence: `%.0f%%`", opp.SentimentPolarity, opp.SentimentConfidence*100), Inline: true},
				{Name: "Price Action", Value: fmt.Sprintf("7d: `%+.1f%%`\n30d: `%+.1f%%`", opp.PriceChange7d, opp.PriceChange30d), Inline: true},
				{Name: "💼 Trade Setup", Value: fmt.Sprintf("Entry: `$%.2f`\nStop: `$%.2f` (-10%%)\nT1: `$%.2f` (+20%%)\nT2: `$%.2f` (+50%%)\nT3: `$%.2f` (+100%%)",
					opp.EntryPrice, opp.StopLoss, opp.Target1, opp.Target2, opp.Target3)},
				{Name: "💰 Position Size", Value: fmt.Sprintf("`$%d` ($%.0f max loss)\nR/R: `%.1f:1`", opp.PositionValue, n.config.MaxLoss, opp.RiskRewardRatio)},
			},
		})
	}
	return embeds
}

func (n *DiscordNotifier) send(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := datasources.DoJSON(ctx, n.client, nil, req, nil); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

// ConvictionBar renders a 0-10 score as five blocks
func ConvictionBar(score float64) string {
	filled := int(score / 2)
	filled = max(0, min(5, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", 5-filled)
}
