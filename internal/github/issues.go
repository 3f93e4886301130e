package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ListOptions configures issue listing
type ListOptions struct {
	State   string // "open", "closed", "all"
	PerPage int
	Page    int
	Since   time.Time
}

// FetchIssue fetches a single issue
func (c *Client) FetchIssue(ctx context.Context, project string, number int) (*models.Issue, error) {
	org, repo, err := models.ParseProject(project)
	if err != nil {
		return nil, err
	}

	var ai Issue
	if err := c.get(ctx, fmt.Sprintf("repos/%s/%s/issues/%d", org, repo, number), &ai); err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	if ai.isPullRequest() {
		return nil, fmt.Errorf("%w: #%d is a pull request", ErrNotFound, number)
	}

	return ai.ToModel(org, repo), nil
}

// ListIssues fetches one page of issues, skipping pull requests
func (c *Client) ListIssues(ctx context.Context, project string, opts ListOptions) ([]*models.Issue, int, error) {
	org, repo, err := models.ParseProject(project)
	if err != nil {
		return nil, 0, err
	}

	if opts.PerPage == 0 {
		opts.PerPage = 100
	}
	if opts.State == "" {
		opts.State = "all"
	}
	if opts.Page == 0 {
		opts.Page = 1
	}

	params := url.Values{}
	params.Set("state", opts.State)
	params.Set("per_page", strconv.Itoa(opts.PerPage))
	params.Set("page", strconv.Itoa(opts.Page))
	params.Set("sort", "updated")
	params.Set("direction", "desc")
	if !opts.Since.IsZero() {
		params.Set("since", opts.Since.Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("repos/%s/%s/issues?%s", org, repo, params.Encode())

	var apiIssues []Issue
	if err := c.get(ctx, endpoint, &apiIssues); err != nil {
		return nil, 0, fmt.Errorf("failed to list issues: %w", err)
	}

	issues := make([]*models.Issue, 0, len(apiIssues))
	for i := range apiIssues {
		if apiIssues[i].isPullRequest() {
			continue
		}
		issues = append(issues, apiIssues[i].ToModel(org, repo))
	}

	// The raw page size decides pagination, PRs included
	return issues, len(apiIssues), nil
}

// ListAllIssues fetches issues page by page, stopping after max (0 = no limit)
func (c *Client) ListAllIssues(ctx context.Context, project, state string, max int) ([]*models.Issue, error) {
	var all []*models.Issue
	const perPage = 100

	for page := 1; ; page++ {
		issues, raw, err := c.ListIssues(ctx, project, ListOptions{State: state, PerPage: perPage, Page: page})
		if err != nil {
			return nil, err
		}
		all = append(all, issues...)

		if max > 0 && len(all) >= max {
			return all[:max], nil
		}
		if raw < perPage {
			return all, nil
		}
	}
}

// OpenIssueNumbers lists the numbers of every open issue
func (c *Client) OpenIssueNumbers(ctx context.Context, project string) ([]int, error) {
	issues, err := c.ListAllIssues(ctx, project, "open", 0)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, len(issues))
	for i, issue := range issues {
		numbers[i] = issue.Number
	}
	return numbers, nil
}
