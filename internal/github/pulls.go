package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// PullRequest represents a GitHub pull request from the API
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	HTMLURL   string     `json:"html_url"`
	MergedAt  *time.Time `json:"merged_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ToModel converts an API pull request to models.PullRequest
func (p *PullRequest) ToModel(org, repo string) *models.PullRequest {
	state := p.State
	if p.MergedAt != nil {
		state = "merged"
	}
	return &models.PullRequest{
		Org:       org,
		Repo:      repo,
		Number:    p.Number,
		Title:     p.Title,
		Body:      p.Body,
		State:     state,
		URL:       p.HTMLURL,
		UpdatedAt: p.UpdatedAt,
	}
}

// ListPullRequests fetches pull requests page by page, stopping after max
// (0 = no limit)
func (c *Client) ListPullRequests(ctx context.Context, project, state string, max int) ([]*models.PullRequest, error) {
	org, repo, err := models.ParseProject(project)
	if err != nil {
		return nil, err
	}
	if state == "" {
		state = "all"
	}

	const perPage = 100
	var all []*models.PullRequest

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("state", state)
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", strconv.Itoa(page))
		params.Set("sort", "updated")
		params.Set("direction", "desc")

		var apiPRs []PullRequest
		if err := c.get(ctx, fmt.Sprintf("repos/%s/%s/pulls?%s", org, repo, params.Encode()), &apiPRs); err != nil {
			return nil, fmt.Errorf("failed to list pull requests: %w", err)
		}

		for i := range apiPRs {
			all = append(all, apiPRs[i].ToModel(org, repo))
		}

		if max > 0 && len(all) >= max {
			return all[:max], nil
		}
		if len(apiPRs) < perPage {
			return all, nil
		}
	}
}
