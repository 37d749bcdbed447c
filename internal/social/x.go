package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sawpanic/sentirun/internal/datasources"
)

// XConfig configures the recent-search collector
type XConfig struct {
	BearerToken string        `yaml:"bearer_token" env:"X_BEARER_TOKEN"`
	APIURL      string        `yaml:"api_url"`
	MaxResults  int           `yaml:"max_results"`
	MaxPages    int           `yaml:"max_pages"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultXConfig returns the public v2 endpoint with one page of 100 results
func DefaultXConfig() XConfig {
	return XConfig{
		APIURL:     "https://api.twitter.com/2",
		MaxResults: 100,
		MaxPages:   1,
		Timeout:    15 * time.Second,
	}
}

// XCollector queries the recent search endpoint
type XCollector struct {
	config XConfig
	client datasources.HTTPClient
	guard  *datasources.Guard
}

// NewXCollector creates a collector. client may be nil.
func NewXCollector(config XConfig, client datasources.HTTPClient, guard *datasources.Guard) *XCollector {
	if client == nil {
		client = defaultHTTPClient(config.Timeout)
	}
	if config.MaxResults < 10 || config.MaxResults > 100 {
		config.MaxResults = 100
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 1
	}
	return &XCollector{config: config, client: client, guard: guard}
}

// Name returns "x"
func (c *XCollector) Name() string { return "x" }

// Enabled reports whether a bearer token is configured
func (c *XCollector) Enabled() bool { return c.config.BearerToken != "" }

type xSearchResponse struct {
	Data []struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		AuthorID      string    `json:"author_id"`
		CreatedAt     time.Time `json:"created_at"`
		Lang          string    `json:"lang"`
		PublicMetrics struct {
			Likes    int `json:"like_count"`
			Replies  int `json:"reply_count"`
			Retweets int `json:"retweet_count"`
		} `json:"public_metrics"`
		Referenced []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
		Entities struct {
			URLs []struct {
				Expanded string `json:"expanded_url"`
			} `json:"urls"`
		} `json:"entities"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			PublicMetrics struct {
				Followers int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

// Fetch pages through recent search results up to MaxPages
func (c *XCollector) Fetch(ctx context.Context, inst Instrument, since time.Time) ([]RawPost, error) {
	if !c.Enabled() {
		return nil, nil
	}

	query := "$" + inst.Symbol
	if inst.DisplayName != "" {
		query = fmt.Sprintf("(%s OR %q)", query, inst.DisplayName)
	}
	query += " -is:retweet"

	// recent search only covers the last seven days
	start := since
	if floor := time.Now().Add(-7*24*time.Hour + time.Minute); start.Before(floor) {
		start = floor
	}

	var posts []RawPost
	nextToken := ""
	for page := 0; page < c.config.MaxPages; page++ {
		params := url.Values{}
		params.Set("query", query)
		params.Set("max_results", fmt.Sprint(c.config.MaxResults))
		params.Set("start_time", start.UTC().Format(time.RFC3339))
		params.Set("tweet.fields", "created_at,public_metrics,lang,author_id,referenced_tweets,entities")
		params.Set("expansions", "author_id")
		params.Set("user.fields", "username,public_metrics")
		if nextToken != "" {
			params.Set("next_token", nextToken)
		}

		req, err := http.NewRequest(http.MethodGet, c.config.APIURL+"/tweets/search/recent?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)

		var resp xSearchResponse
		if err := datasources.DoJSON(ctx, c.client, c.guard, req, &resp); err != nil {
			return nil, fmt.Errorf("x search: %w", err)
		}

		type author struct {
			handle    string
			followers int
		}
		authors := make(map[string]author, len(resp.Includes.Users))
		for _, u := range resp.Includes.Users {
			authors[u.ID] = author{handle: u.Username, followers: u.PublicMetrics.Followers}
		}

		for _, t := range resp.Data {
			if t.CreatedAt.Before(since) {
				continue
			}
			a := authors[t.AuthorID]
			post := RawPost{
				Source:       c.Name(),
				PlatformID:   t.ID,
				AuthorID:     t.AuthorID,
				AuthorHandle: a.handle,
				CreatedAt:    t.CreatedAt.UTC(),
				Text:         t.Text,
				Lang:         t.Lang,
				Engagement: Engagement{
					Likes:     t.PublicMetrics.Likes,
					Replies:   t.PublicMetrics.Replies,
					Reposts:   t.PublicMetrics.Retweets,
					Followers: a.followers,
				},
			}
			if a.handle != "" {
				post.Permalink = fmt.Sprintf("https://x.com/%s/status/%s", a.handle, t.ID)
			}
			for _, ref := range t.Referenced {
				switch ref.Type {
				case "replied_to":
					post.ReplyToID = ref.ID
				case "quoted", "retweeted":
					post.RepostOfID = ref.ID
				}
			}
			for _, u := range t.Entities.URLs {
				post.URLs = append(post.URLs, u.Expanded)
			}
			posts = append(posts, post)
		}

		nextToken = resp.Meta.NextToken
		if nextToken == "" {
			break
		}
	}

	return posts, nil
}
