// Package github is the write-back gateway to the issue tracker. It reads
// issues and pull requests and posts comments through the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// DefaultTimeout bounds every REST call when none is configured
const DefaultTimeout = 15 * time.Second

// Client wraps GitHub API operations
type Client struct {
	rest    *api.RESTClient
	timeout time.Duration
}

// NewClient creates a client authenticated the same way as the gh CLI
func NewClient(timeout time.Duration) (*Client, error) {
	return NewClientWithOptions(api.ClientOptions{}, timeout)
}

// NewClientWithOptions creates a client from explicit go-gh options
func NewClientWithOptions(opts api.ClientOptions, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts.Timeout = timeout

	rest, err := api.NewRESTClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create REST client: %w", err)
	}

	return &Client{
		rest:    rest,
		timeout: timeout,
	}, nil
}

// Close releases resources
func (c *Client) Close() error {
	return nil
}

// do issues one REST call with the client timeout and maps tracker errors
func (c *Client) do(ctx context.Context, method, path string, payload, response interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	if err := c.rest.DoWithContext(ctx, method, path, body, response); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, response interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, response)
}

// Issue represents a GitHub issue from the API
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	Labels    []Label   `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Set only when the item is a pull request listed by the issues endpoint
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// User represents a GitHub user
type User struct {
	Login string `json:"login"`
}

// Label represents a GitHub label
type Label struct {
	Name string `json:"name"`
}

// Comment represents a GitHub comment
type Comment struct {
	ID        int       `json:"id"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// ToModel converts API Issue to models.Issue
func (i *Issue) ToModel(org, repo string) *models.Issue {
	labels := make([]string, len(i.Labels))
	for j, l := range i.Labels {
		labels[j] = l.Name
	}

	return &models.Issue{
		Org:       org,
		Repo:      repo,
		Number:    i.Number,
		Title:     i.Title,
		Body:      i.Body,
		State:     i.State,
		Labels:    labels,
		Author:    i.User.Login,
		URL:       i.HTMLURL,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func (i *Issue) isPullRequest() bool {
	return i.PullRequest != nil
}
