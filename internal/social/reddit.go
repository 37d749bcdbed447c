package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sawpanic/sentirun/internal/datasources"
)

// RedditConfig holds application-only OAuth credentials and search scope
type RedditConfig struct {
	ClientID     string        `yaml:"client_id" env:"REDDIT_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"REDDIT_CLIENT_SECRET"`
	UserAgent    string        `yaml:"user_agent" env:"REDDIT_USER_AGENT"`
	Subreddits   []string      `yaml:"subreddits"`
	Limit        int           `yaml:"limit"`
	AuthURL      string        `yaml:"auth_url"`
	APIURL       string        `yaml:"api_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DefaultRedditConfig returns the public endpoints and finance subreddits
func DefaultRedditConfig() RedditConfig {
	return RedditConfig{
		UserAgent:  "sentirun/1.0",
		Subreddits: []string{"wallstreetbets", "stocks", "investing", "StockMarket"},
		Limit:      100,
		AuthURL:    "https://www.reddit.com/api/v1/access_token",
		APIURL:     "https://oauth.reddit.com",
		Timeout:    15 * time.Second,
	}
}

// RedditCollector searches subreddits for instrument mentions
type RedditCollector struct {
	config RedditConfig
	client datasources.HTTPClient
	guard  *datasources.Guard

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewRedditCollector creates a collector. client may be nil.
func NewRedditCollector(config RedditConfig, client datasources.HTTPClient, guard *datasources.Guard) *RedditCollector {
	if client == nil {
		client = defaultHTTPClient(config.Timeout)
	}
	if config.Limit <= 0 || config.Limit > 100 {
		config.Limit = 100
	}
	return &RedditCollector{config: config, client: client, guard: guard}
}

// Name returns "reddit"
func (c *RedditCollector) Name() string { return "reddit" }

// Enabled reports whether OAuth credentials are configured
func (c *RedditCollector) Enabled() bool {
	return c.config.ClientID != "" && c.config.ClientSecret != ""
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID            string  `json:"id"`
				Author        string  `json:"author"`
				AuthorID      string  `json:"author_fullname"`
				CreatedUTC    float64 `json:"created_utc"`
				Title         string  `json:"title"`
				Selftext      string  `json:"selftext"`
				Score         int     `json:"score"`
				NumComments   int     `json:"num_comments"`
				Permalink     string  `json:"permalink"`
				URL           string  `json:"url"`
				CrosspostFrom string  `json:"crosspost_parent"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch searches every configured subreddit. A failing subreddit fails the
// whole fetch so the orchestrator records the source error.
func (c *RedditCollector) Fetch(ctx context.Context, inst Instrument, since time.Time) ([]RawPost, error) {
	if !c.Enabled() {
		return nil, nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit auth: %w", err)
	}

	query := "$" + inst.Symbol
	if inst.DisplayName != "" {
		query = fmt.Sprintf("%s OR %q", query, inst.DisplayName)
	}

	seen := make(map[string]bool)
	var posts []RawPost
	for _, sub := range c.config.Subreddits {
		params := url.Values{}
		params.Set("q", query)
		params.Set("restrict_sr", "1")
		params.Set("sort", "new")
		params.Set("t", "week")
		params.Set("limit", fmt.Sprint(c.config.Limit))

		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/r/%s/search?%s", c.config.APIURL, sub, params.Encode()), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.config.UserAgent)

		var listing redditListing
		if err := datasources.DoJSON(ctx, c.client, c.guard, req, &listing); err != nil {
			return nil, fmt.Errorf("reddit r/%s: %w", sub, err)
		}

		for _, child := range listing.Data.Children {
			d := child.Data
			created := time.Unix(int64(d.CreatedUTC), 0).UTC()
			if created.Before(since) || seen[d.ID] {
				continue
			}
			seen[d.ID] = true

			text := strings.TrimSpace(d.Title + "\n" + d.Selftext)
			post := RawPost{
				Source:       c.Name(),
				PlatformID:   d.ID,
				AuthorID:     d.AuthorID,
				AuthorHandle: d.Author,
				CreatedAt:    created,
				Text:         text,
				Engagement:   Engagement{Likes: d.Score, Replies: d.NumComments},
				RepostOfID:   d.CrosspostFrom,
			}
			if d.Permalink != "" {
				post.Permalink = "https://www.reddit.com" + d.Permalink
			}
			if d.URL != "" {
				post.URLs = []string{d.URL}
			}
			posts = append(posts, post)
		}
	}

	return posts, nil
}

func (c *RedditCollector) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequest(http.MethodPost, c.config.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgent)

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := datasources.DoJSON(ctx, c.client, c.guard, req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}

	c.token = resp.AccessToken
	// refresh a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}
