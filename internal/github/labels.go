package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// AddLabels adds labels to an issue
func (c *Client) AddLabels(ctx context.Context, project string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}

	org, repo, err := models.ParseProject(project)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("repos/%s/%s/issues/%d/labels", org, repo, number)
	if err := c.do(ctx, http.MethodPost, endpoint, map[string][]string{"labels": labels}, nil); err != nil {
		return fmt.Errorf("failed to add labels: %w", err)
	}
	return nil
}

// CloseIssue closes an issue with an optional reason
// ("completed", "not_planned", "duplicate")
func (c *Client) CloseIssue(ctx context.Context, project string, number int, reason string) error {
	org, repo, err := models.ParseProject(project)
	if err != nil {
		return err
	}

	payload := map[string]string{"state": "closed"}
	if reason != "" {
		payload["state_reason"] = reason
	}

	endpoint := fmt.Sprintf("repos/%s/%s/issues/%d", org, repo, number)
	if err := c.do(ctx, http.MethodPatch, endpoint, payload, nil); err != nil {
		return fmt.Errorf("failed to close issue: %w", err)
	}
	return nil
}
