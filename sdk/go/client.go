package pactlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pactline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Decision represents the API decision model.
type Decision struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Category         string `json:"category"`
	Status           string `json:"status"`
	OwnerID          string `json:"owner_id"`
	DiscussionEndsAt string `json:"discussion_ends_at"`
	Overridden       bool   `json:"overridden"`
}

// Topic represents a governed conversation subject.
type Topic struct {
	ID              string  `json:"id"`
	Topic           string  `json:"topic"`
	Status          string  `json:"status"`
	DiscussionCount int     `json:"discussion_count"`
	FreezeUntil     *string `json:"freeze_until,omitempty"`
}

// Override represents an emergency override.
type Override struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// OverrideList partitions recent overrides.
type OverrideList struct {
	All       []Override `json:"all"`
	ActiveNow []Override `json:"active_now"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDecision creates a decision with an optional discussion window.
func (c *Client) CreateDecision(ctx context.Context, title, category string, discussionHours int) (Decision, error) {
	body := map[string]any{
		"title":    title,
		"category": category,
	}
	if discussionHours > 0 {
		body["discussion_hours"] = discussionHours
	}
	var resp Decision
	err := c.do(ctx, http.MethodPost, "decisions", body, &resp)
	return resp, err
}

// LockDecision locks a decision once its discussion window closed.
func (c *Client) LockDecision(ctx context.Context, id string) (Decision, error) {
	var resp Decision
	endpoint := fmt.Sprintf("decisions/%s/lock", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AddTopic starts tracking a conversation topic.
func (c *Client) AddTopic(ctx context.Context, topic string) (Topic, error) {
	var resp Topic
	err := c.do(ctx, http.MethodPost, "topics", map[string]any{"topic": topic}, &resp)
	return resp, err
}

// RecordDiscussion records one discussion on a topic.
func (c *Client) RecordDiscussion(ctx context.Context, topicID string) (Topic, error) {
	var resp Topic
	endpoint := fmt.Sprintf("topics/%s/discussions", url.PathEscape(topicID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ActivateOverride raises an emergency override against a decision.
func (c *Client) ActivateOverride(ctx context.Context, reason, decisionID string, hours int) (Override, error) {
	body := map[string]any{
		"reason":      reason,
		"decision_id": decisionID,
	}
	if hours > 0 {
		body["duration_hours"] = hours
	}
	var resp Override
	err := c.do(ctx, http.MethodPost, "overrides", body, &resp)
	return resp, err
}

// Overrides returns the caller's recent overrides.
func (c *Client) Overrides(ctx context.Context) (OverrideList, error) {
	var resp OverrideList
	err := c.do(ctx, http.MethodGet, "overrides", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
