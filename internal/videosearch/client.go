package videosearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"doubtdesk/internal/config"
	"doubtdesk/internal/models"
	"doubtdesk/pkg/httpclient"
)

// Client talks to the video-search collaborator, which takes a free-text
// topic and returns a ranked list of supplementary videos. Calls are wrapped
// in a circuit breaker so a slow or broken collaborator never drags down the
// answer path.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// NewClient creates a Client with the collaborator's short timeout.
func NewClient(cfg *config.VideoSearchConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpclient.New(time.Duration(cfg.TimeoutSeconds)*time.Second, 3),
	}
}

// Search returns the ranked video suggestions for a topic.
func (c *Client) Search(ctx context.Context, topic string) ([]models.VideoSuggestion, error) {
	u := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(topic))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build video search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video search returned status %d", resp.StatusCode)
	}

	var result struct {
		Videos []models.VideoSuggestion `json:"videos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode video search response: %w", err)
	}

	return result.Videos, nil
}
