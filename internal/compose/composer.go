// Package compose turns a triage decision into ready-to-post reply drafts.
package compose

import (
	"fmt"
	"strings"

	"github.com/Kavirubc/gh-triage/pkg/models"
)

// MaxResponses is the most drafts composed for one analysis
const MaxResponses = 3

// DefaultSignature is appended to every draft body
const DefaultSignature = "<sub>🤖 Powered by [gh-triage](https://github.com/Kavirubc/gh-triage)</sub>"

// Response types
const (
	TypeCloseDuplicate     = "close_duplicate"
	TypeCloseFixed         = "close_fixed"
	TypeCloseExists        = "close_exists"
	TypeProvideDocs        = "provide_docs"
	TypeLinkPRs            = "link_prs"
	TypeEscalateCritical   = "escalate_critical"
	TypeAcknowledgeBug     = "acknowledge_bug"
	TypeAcknowledgeFeature = "acknowledge_feature"
	TypeAnswerQuestion     = "answer_question"
	TypeRequestInfo        = "request_info"
	TypeCloseLowPriority   = "close_low_priority"
)

// template renders one draft; ok is false when it does not apply
type template func(a *models.TriageAnalysis) (resp models.SuggestedResponse, ok bool)

// Composer renders drafts from a fixed template table keyed by decision.
// Index 0 of the result is the primary recommendation.
type Composer struct {
	signature string
	table     map[models.Decision][]template
}

// New creates a composer; an empty signature uses DefaultSignature
func New(signature string) *Composer {
	if signature == "" {
		signature = DefaultSignature
	}

	return &Composer{
		signature: signature,
		table: map[models.Decision][]template{
			models.DecisionCloseDuplicate:     {closeDuplicate, linkPRs, provideDocs},
			models.DecisionCloseFixed:         {closeFixed, linkPRs},
			models.DecisionCloseExists:        {closeExists, provideDocs},
			models.DecisionNeedsInvestigation: {escalateCritical, acknowledgeBug, linkPRs, provideDocs},
			models.DecisionValidFeature:       {acknowledgeFeature, linkPRs, closeLowPriority},
			models.DecisionNeedsInfo:          {requestInfo, provideDocs, closeLowPriority},
			models.DecisionAnswerFromDocs:     {provideDocs, answerQuestion},
			models.DecisionInvalid:            nil,
		},
	}
}

// Compose returns up to MaxResponses drafts. It is a pure function of the
// analysis, so identical input gives identical output and ordering.
func (c *Composer) Compose(a *models.TriageAnalysis) []models.SuggestedResponse {
	responses := []models.SuggestedResponse{}
	if a == nil {
		return responses
	}

	for _, tmpl := range c.table[a.Decision] {
		resp, ok := tmpl(a)
		if !ok {
			continue
		}
		resp.Body = strings.TrimSpace(resp.Body) + "\n\n---\n" + c.signature
		responses = append(responses, resp)
		if len(responses) == MaxResponses {
			break
		}
	}
	return responses
}

func closeDuplicate(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	if a.DuplicateOf == nil {
		return models.SuggestedResponse{
			Type:        TypeCloseDuplicate,
			Title:       "Close as duplicate",
			Body:        "Thanks for reporting! This appears to be a duplicate of an existing issue. Please follow that issue for updates.",
			ActionLabel: "Post & Close as Duplicate",
			Actions:     []string{"comment", "close", "add_label:duplicate"},
		}, true
	}

	n := *a.DuplicateOf
	return models.SuggestedResponse{
		Type:  TypeCloseDuplicate,
		Title: fmt.Sprintf("Close as duplicate of #%d", n),
		Body: fmt.Sprintf("Thanks for reporting! This appears to be a duplicate of #%d. "+
			"Please follow that issue for updates. If you have information that is not covered there, feel free to add it on the original issue.", n),
		ActionLabel: fmt.Sprintf("Post & Close as Duplicate of #%d", n),
		Actions:     []string{"comment", "close", "add_label:duplicate"},
	}, true
}

func closeFixed(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	body := "Thanks for reporting! This has already been fixed in a recent version. Please update and let us know if you still see the problem."
	if len(a.RelatedPRs) > 0 {
		body = fmt.Sprintf("Thanks for reporting! This was fixed in %s. Please update to a release that includes the fix and let us know if you still see the problem.", prList(a.RelatedPRs))
	}
	return models.SuggestedResponse{
		Type:        TypeCloseFixed,
		Title:       "Close as already fixed",
		Body:        body,
		ActionLabel: "Post & Close as Fixed",
		Actions:     []string{"comment", "close"},
	}, true
}

func closeExists(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	body := "Good news! This feature already exists."
	if len(a.DocLinks) > 0 {
		body += "\n\nYou can find it in: **" + a.DocLinks[0].File + "**"
	}
	body += "\n\nLet us know if you need help using it!"
	return models.SuggestedResponse{
		Type:        TypeCloseExists,
		Title:       "Close as already supported",
		Body:        body,
		ActionLabel: "Post Explanation & Close",
		Actions:     []string{"comment", "close"},
	}, true
}

func provideDocs(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	if len(a.DocLinks) == 0 {
		return models.SuggestedResponse{}, false
	}

	links := a.DocLinks
	if len(links) > 3 {
		links = links[:3]
	}
	var list []string
	for _, d := range links {
		list = append(list, "- "+docLink(a.ProjectID, d))
	}

	return models.SuggestedResponse{
		Type:  TypeProvideDocs,
		Title: "Provide documentation links",
		Body: "Thanks for your interest! You might find these resources helpful:\n\n" +
			strings.Join(list, "\n") + "\n\nLet us know if you have any questions!",
		ActionLabel: "Post Documentation Links",
		Actions:     []string{"comment"},
	}, true
}

// docLink renders a repository file as a blob link. Relative targets in a
// comment resolve against the issue page, so without a project the path is
// shown as code.
func docLink(project string, d models.DocLink) string {
	if strings.HasPrefix(d.File, "https://") || strings.HasPrefix(d.File, "http://") {
		return fmt.Sprintf("[%s](%s)", d.File, d.File)
	}
	if _, _, err := models.ParseProject(project); err != nil {
		return "`" + d.File + "`"
	}

	url := fmt.Sprintf("https://github.com/%s/blob/HEAD/%s", project, strings.TrimPrefix(d.File, "/"))
	if d.Line > 0 {
		url += fmt.Sprintf("#L%d", d.Line)
	}
	return fmt.Sprintf("[%s](%s)", d.File, url)
}

func linkPRs(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	if len(a.RelatedPRs) == 0 {
		return models.SuggestedResponse{}, false
	}
	return models.SuggestedResponse{
		Type:        TypeLinkPRs,
		Title:       "Link related PRs",
		Body:        fmt.Sprintf("This may be related to %s. Please check if those PRs address your issue.", prList(a.RelatedPRs)),
		ActionLabel: "Post PR Links",
		Actions:     []string{"comment"},
	}, true
}

func escalateCritical(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	if a.Priority != models.PriorityCritical {
		return models.SuggestedResponse{}, false
	}
	return models.SuggestedResponse{
		Type:        TypeEscalateCritical,
		Title:       "Escalate as critical",
		Body:        "Thanks for reporting this critical issue. We're escalating this to the team for immediate attention.",
		ActionLabel: "Escalate",
		Actions:     []string{"comment", "add_label:critical", "add_label:urgent"},
	}, true
}

func acknowledgeBug(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	return models.SuggestedResponse{
		Type:  TypeAcknowledgeBug,
		Title: "Acknowledge bug",
		Body: "Thanks for the bug report! We've confirmed this is a bug and will work on a fix. " +
			"We'll update this issue as we make progress.",
		ActionLabel: "Confirm Bug",
		Actions:     []string{"comment", "add_label:bug", "add_label:confirmed"},
	}, true
}

func acknowledgeFeature(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	return models.SuggestedResponse{
		Type:  TypeAcknowledgeFeature,
		Title: "Acknowledge feature request",
		Body: "Thanks for the feature request! We'll consider this for a future release. " +
			"Feel free to contribute a PR if you'd like to help implement it!",
		ActionLabel: "Accept Feature",
		Actions:     []string{"comment", "add_label:enhancement"},
	}, true
}

func answerQuestion(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	body := "Thanks for your question! [Add your answer here]\n\nLet us know if this helps or if you need more clarification."
	if a.PrimaryMessage != "" {
		body = fmt.Sprintf("Thanks for your question! %s\n\nLet us know if this helps or if you need more clarification.", a.PrimaryMessage)
	}
	return models.SuggestedResponse{
		Type:        TypeAnswerQuestion,
		Title:       "Answer question",
		Body:        body,
		ActionLabel: "Post Answer",
		Actions:     []string{"comment", "add_label:question"},
	}, true
}

func requestInfo(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	return models.SuggestedResponse{
		Type:  TypeRequestInfo,
		Title: "Request more information",
		Body: "Thanks for opening this issue! Could you share a few more details so we can look into it?\n\n" +
			"- Steps to reproduce\n- Expected and actual behaviour\n- Version and environment",
		ActionLabel: "Request Info",
		Actions:     []string{"comment", "add_label:needs-info"},
	}, true
}

func closeLowPriority(a *models.TriageAnalysis) (models.SuggestedResponse, bool) {
	return models.SuggestedResponse{
		Type:  TypeCloseLowPriority,
		Title: "Close as low priority",
		Body: "Thanks for the report. This appears to be a very minor issue or lacks sufficient detail. " +
			"Please provide more information if this is a significant problem.",
		ActionLabel: "Close",
		Actions:     []string{"comment", "close", "add_label:wontfix"},
	}, true
}

func prList(prs []int) string {
	if len(prs) > 3 {
		prs = prs[:3]
	}
	refs := make([]string, len(prs))
	for i, pr := range prs {
		refs[i] = fmt.Sprintf("#%d", pr)
	}
	return strings.Join(refs, ", ")
}
