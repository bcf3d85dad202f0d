package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
)

// Client is an HTTP Reader for a Discourse-style forum API. Requests are
// authenticated as the relay actor via Api-Key/Api-Username headers, so a
// 403 on a post fetch means the relay actor cannot see it.
type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	apiUser    string
	httpClient *http.Client

	// Reference data is cached briefly; categories and tags change
	// rarely compared to post traffic.
	refMu      sync.Mutex
	categories map[int64]string
	tags       map[string]struct{}
	groups     []Group
	refExpiry  time.Time
}

const refCacheTTL = time.Minute

// NewClient creates a forum API client from configuration.
func NewClient(log *logger.Logger, cfg config.ForumConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		log:     log,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		apiUser: cfg.APIUsername,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Post implements Reader.
func (c *Client) Post(ctx context.Context, id int64) (*Post, error) {
	var body struct {
		ID         int64     `json:"id"`
		TopicID    int64     `json:"topic_id"`
		PostNumber int       `json:"post_number"`
		PostType   int       `json:"post_type"`
		Username   string    `json:"username"`
		Raw        string    `json:"raw"`
		Excerpt    string    `json:"excerpt"`
		CreatedAt  time.Time `json:"created_at"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/posts/%d.json", id), &body); err != nil {
		return nil, err
	}
	return &Post{
		ID:         body.ID,
		TopicID:    body.TopicID,
		PostNumber: body.PostNumber,
		PostType:   body.PostType,
		Username:   body.Username,
		Raw:        body.Raw,
		Excerpt:    body.Excerpt,
		CreatedAt:  body.CreatedAt,
	}, nil
}

// Topic implements Reader.
func (c *Client) Topic(ctx context.Context, id int64) (*Topic, error) {
	var body struct {
		ID         int64    `json:"id"`
		Title      string   `json:"title"`
		Slug       string   `json:"slug"`
		Archetype  string   `json:"archetype"`
		CategoryID *int64   `json:"category_id"`
		Tags       []string `json:"tags"`
		Details    struct {
			AllowedGroups []struct {
				ID int64 `json:"id"`
			} `json:"allowed_groups"`
		} `json:"details"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/t/%d.json", id), &body); err != nil {
		return nil, err
	}

	t := &Topic{
		ID:         body.ID,
		Title:      body.Title,
		Slug:       body.Slug,
		Archetype:  body.Archetype,
		CategoryID: body.CategoryID,
		Tags:       body.Tags,
	}
	for _, g := range body.Details.AllowedGroups {
		t.AllowedGroupIDs = append(t.AllowedGroupIDs, g.ID)
	}
	return t, nil
}

// CanSee implements Reader. The forum enforces permissions on the API, so
// fetching the post as the relay actor doubles as the visibility check.
func (c *Client) CanSee(ctx context.Context, post *Post) (bool, error) {
	var ignored json.RawMessage
	err := c.getJSON(ctx, fmt.Sprintf("/posts/%d.json", post.ID), &ignored)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Groups implements Reader.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	if err := c.refreshRef(ctx); err != nil {
		return nil, err
	}
	c.refMu.Lock()
	defer c.refMu.Unlock()
	out := make([]Group, len(c.groups))
	copy(out, c.groups)
	return out, nil
}

// CategoryExists implements Reader.
func (c *Client) CategoryExists(ctx context.Context, id int64) (bool, error) {
	if err := c.refreshRef(ctx); err != nil {
		return false, err
	}
	c.refMu.Lock()
	defer c.refMu.Unlock()
	_, ok := c.categories[id]
	return ok, nil
}

// CategoryName implements Reader.
func (c *Client) CategoryName(ctx context.Context, id int64) string {
	if err := c.refreshRef(ctx); err != nil {
		c.log.Warn("Failed to load categories", zap.Error(err))
		return DeletedCategoryPlaceholder
	}
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if name, ok := c.categories[id]; ok {
		return name
	}
	return DeletedCategoryPlaceholder
}

// TagExists implements Reader.
func (c *Client) TagExists(ctx context.Context, name string) (bool, error) {
	if err := c.refreshRef(ctx); err != nil {
		return false, err
	}
	c.refMu.Lock()
	defer c.refMu.Unlock()
	_, ok := c.tags[name]
	return ok, nil
}

// refreshRef reloads categories, tags and groups when the cache expired.
func (c *Client) refreshRef(ctx context.Context) error {
	c.refMu.Lock()
	fresh := time.Now().Before(c.refExpiry)
	c.refMu.Unlock()
	if fresh {
		return nil
	}

	var site struct {
		Categories []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"categories"`
	}
	if err := c.getJSON(ctx, "/site.json", &site); err != nil {
		return fmt.Errorf("loading site data: %w", err)
	}

	var tagList struct {
		Tags []struct {
			ID string `json:"id"`
		} `json:"tags"`
	}
	if err := c.getJSON(ctx, "/tags.json", &tagList); err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}

	var groupList struct {
		Groups []Group `json:"groups"`
	}
	if err := c.getJSON(ctx, "/groups.json", &groupList); err != nil {
		return fmt.Errorf("loading groups: %w", err)
	}

	c.refMu.Lock()
	defer c.refMu.Unlock()
	c.categories = make(map[int64]string, len(site.Categories))
	for _, cat := range site.Categories {
		c.categories[cat.ID] = cat.Name
	}
	c.tags = make(map[string]struct{}, len(tagList.Tags))
	for _, t := range tagList.Tags {
		c.tags[t.ID] = struct{}{}
	}
	c.groups = groupList.Groups
	c.refExpiry = time.Now().Add(refCacheTTL)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", c.apiUser)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forum request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		// Both mean "not there" from the relay actor's point of view.
		return ErrNotFound
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("forum request %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// PostURL builds the public URL of a post for inclusion in notifications.
func PostURL(baseURL string, topic *Topic, post *Post) string {
	slug := topic.Slug
	if slug == "" {
		slug = "topic"
	}
	return fmt.Sprintf("%s/t/%s/%d/%d", strings.TrimRight(baseURL, "/"), slug, topic.ID, post.PostNumber)
}
