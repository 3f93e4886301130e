package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Action strings carried by a suggested response
const (
	ActionComment  = "comment"
	ActionClose    = "close"
	ActionAddLabel = "add_label:"
)

// Writer is the subset of Client that applying a response needs
type Writer interface {
	PostComment(ctx context.Context, project string, number int, body string) (string, error)
	AddLabels(ctx context.Context, project string, number int, labels []string) error
	CloseIssue(ctx context.Context, project string, number int, reason string) error
}

// ApplyResult records what was done for one suggested response
type ApplyResult struct {
	CommentURL string   `json:"comment_url,omitempty"`
	Labels     []string `json:"labels,omitempty"`
	Closed     bool     `json:"closed"`
	DryRun     bool     `json:"dry_run,omitempty"`
}

// Executor applies suggested responses to the tracker
type Executor struct {
	client Writer
	dryRun bool
	log    logger.Logger
}

// NewExecutor creates a new response executor
func NewExecutor(client Writer, dryRun bool, log logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{
		client: client,
		dryRun: dryRun,
		log:    log,
	}
}

// ApplyResponse posts the response body and then applies its labels and
// close action. The first failure stops the sequence and is returned as is.
func (e *Executor) ApplyResponse(ctx context.Context, project string, number int, resp models.SuggestedResponse) (*ApplyResult, error) {
	var (
		comment     bool
		shouldClose bool
		labels      []string
	)
	for _, action := range resp.Actions {
		switch {
		case action == ActionComment:
			comment = true
		case action == ActionClose:
			shouldClose = true
		case strings.HasPrefix(action, ActionAddLabel):
			if label := strings.TrimPrefix(action, ActionAddLabel); label != "" {
				labels = append(labels, label)
			}
		default:
			return nil, fmt.Errorf("unknown action type: %s", action)
		}
	}

	result := &ApplyResult{DryRun: e.dryRun}
	if e.dryRun {
		e.log.Info("github", "Dry run, not applying response", map[string]interface{}{
			"project": project,
			"issue":   number,
			"type":    resp.Type,
			"actions": resp.Actions,
		})
		result.Labels = labels
		result.Closed = shouldClose
		return result, nil
	}

	if comment {
		url, err := e.client.PostComment(ctx, project, number, resp.Body)
		if err != nil {
			return nil, err
		}
		result.CommentURL = url
	}

	if len(labels) > 0 {
		if err := e.client.AddLabels(ctx, project, number, labels); err != nil {
			return result, err
		}
		result.Labels = labels
	}

	if shouldClose {
		if err := e.client.CloseIssue(ctx, project, number, closeReason(resp.Type)); err != nil {
			return result, err
		}
		result.Closed = true
	}

	e.log.Info("github", "Response applied", map[string]interface{}{
		"project": project,
		"issue":   number,
		"type":    resp.Type,
		"comment": result.CommentURL,
		"closed":  result.Closed,
	})
	return result, nil
}

func closeReason(responseType string) string {
	switch responseType {
	case "close_duplicate":
		return "duplicate"
	case "close_fixed", "close_exists":
		return "completed"
	default:
		return "not_planned"
	}
}
