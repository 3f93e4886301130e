package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ListComments fetches comments on an issue
func (c *Client) ListComments(ctx context.Context, project string, number int) ([]Comment, error) {
	org, repo, err := models.ParseProject(project)
	if err != nil {
		return nil, err
	}

	var comments []Comment
	if err := c.get(ctx, fmt.Sprintf("repos/%s/%s/issues/%d/comments", org, repo, number), &comments); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// PostComment adds a comment to an issue and returns its URL. Failures are
// reported once; callers decide whether to retry.
func (c *Client) PostComment(ctx context.Context, project string, number int, body string) (string, error) {
	org, repo, err := models.ParseProject(project)
	if err != nil {
		return "", err
	}

	var created Comment
	endpoint := fmt.Sprintf("repos/%s/%s/issues/%d/comments", org, repo, number)
	if err := c.do(ctx, http.MethodPost, endpoint, map[string]string{"body": body}, &created); err != nil {
		return "", fmt.Errorf("failed to post comment: %w", err)
	}

	return created.HTMLURL, nil
}
