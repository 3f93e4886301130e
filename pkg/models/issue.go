package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Issue is a snapshot of a tracker issue. The engine never mutates it.
type Issue struct {
	Org       string    `json:"org"`
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"` // "open" or "closed"
	Labels    []string  `json:"labels"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullRepo returns the full repository name (org/repo), which doubles as the project id
func (i *Issue) FullRepo() string {
	return fmt.Sprintf("%s/%s", i.Org, i.Repo)
}

// UUID generates a deterministic UUID based on org/repo#number
func (i *Issue) UUID() string {
	return IssueUUID(i.Org, i.Repo, i.Number)
}

// BodyHash returns a SHA256 hash of the body for change detection
func (i *Issue) BodyHash() string {
	h := sha256.Sum256([]byte(i.Body))
	return hex.EncodeToString(h[:])
}

// IsClosed reports whether the issue is in a terminal state
func (i *Issue) IsClosed() bool {
	return strings.EqualFold(i.State, "closed")
}

// HasLabel reports whether the issue carries the label (case-insensitive)
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// IssueUUID generates a deterministic UUID from issue identity
func IssueUUID(org, repo string, number int) string {
	data := fmt.Sprintf("%s/%s#%d", org, repo, number)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(data)).String()
}

// ParseProject splits an "org/repo" project id.
func ParseProject(project string) (org, repo string, err error) {
	parts := strings.Split(project, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid project %q: expected org/repo", project)
	}
	return parts[0], parts[1], nil
}
