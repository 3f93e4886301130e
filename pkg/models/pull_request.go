package models

import "time"

// PullRequest is the part of a pull request the PR pool stores
type PullRequest struct {
	Org       string    `json:"org"`
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"` // "open", "closed" or "merged"
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullRepo returns org/repo
func (p *PullRequest) FullRepo() string {
	return p.Org + "/" + p.Repo
}
