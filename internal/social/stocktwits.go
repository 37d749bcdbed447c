package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sawpanic/sentirun/internal/datasources"
)

// StockTwitsConfig configures the symbol stream collector
type StockTwitsConfig struct {
	Token   string        `yaml:"token" env:"ST_TOKEN"`
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultStockTwitsConfig returns the public v2 endpoint
func DefaultStockTwitsConfig() StockTwitsConfig {
	return StockTwitsConfig{
		APIURL:  "https://api.stocktwits.com/api/2",
		Timeout: 15 * time.Second,
	}
}

// StockTwitsCollector reads the per-symbol message stream
type StockTwitsCollector struct {
	config StockTwitsConfig
	client datasources.HTTPClient
	guard  *datasources.Guard
}

// NewStockTwitsCollector creates a collector. client may be nil.
func NewStockTwitsCollector(config StockTwitsConfig, client datasources.HTTPClient, guard *datasources.Guard) *StockTwitsCollector {
	if client == nil {
		client = defaultHTTPClient(config.Timeout)
	}
	return &StockTwitsCollector{config: config, client: client, guard: guard}
}

// Name returns "stocktwits"
func (c *StockTwitsCollector) Name() string { return "stocktwits" }

// Enabled reports whether an access token is configured
func (c *StockTwitsCollector) Enabled() bool { return c.config.Token != "" }

type stockTwitsStream struct {
	Messages []struct {
		ID        int64     `json:"id"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"created_at"`
		User      struct {
			ID        int64  `json:"id"`
			Username  string `json:"username"`
			Followers int    `json:"followers"`
		} `json:"user"`
		Likes struct {
			Total int `json:"total"`
		} `json:"likes"`
		Conversation struct {
			Replies   int   `json:"replies"`
			InReplyTo int64 `json:"in_reply_to_message_id"`
		} `json:"conversation"`
		Reshares struct {
			Total int `json:"reshared_count"`
		} `json:"reshares"`
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	} `json:"messages"`
}

// Fetch returns the latest stream messages for the instrument symbol
func (c *StockTwitsCollector) Fetch(ctx context.Context, inst Instrument, since time.Time) ([]RawPost, error) {
	if !c.Enabled() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/streams/symbol/%s.json?access_token=%s",
		c.config.APIURL, url.PathEscape(inst.Symbol), url.QueryEscape(c.config.Token))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var stream stockTwitsStream
	if err := datasources.DoJSON(ctx, c.client, c.guard, req, &stream); err != nil {
		return nil, fmt.Errorf("stocktwits stream: %w", err)
	}

	posts := make([]RawPost, 0, len(stream.Messages))
	for _, m := range stream.Messages {
		if m.CreatedAt.Before(since) {
			continue
		}
		id := strconv.FormatInt(m.ID, 10)
		post := RawPost{
			Source:       c.Name(),
			PlatformID:   id,
			AuthorID:     strconv.FormatInt(m.User.ID, 10),
			AuthorHandle: m.User.Username,
			CreatedAt:    m.CreatedAt.UTC(),
			Text:         m.Body,
			Permalink:    fmt.Sprintf("https://stocktwits.com/%s/message/%s", m.User.Username, id),
			Engagement: Engagement{
				Likes:     m.Likes.Total,
				Replies:   m.Conversation.Replies,
				Reposts:   m.Reshares.Total,
				Followers: m.User.Followers,
			},
		}
		if m.Conversation.InReplyTo != 0 {
			post.ReplyToID = strconv.FormatInt(m.Conversation.InReplyTo, 10)
		}
		for _, l := range m.Links {
			post.URLs = append(post.URLs, l.URL)
		}
		posts = append(posts, post)
	}

	return posts, nil
}
