package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Spam flags issues whose title or body matches a spam pattern
type Spam struct {
	patterns []*regexp.Regexp
}

// NewSpam compiles case-insensitive spam patterns
func NewSpam(patterns []string) (*Spam, error) {
	s := &Spam{}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid spam pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

func (s *Spam) Name() string { return "spam" }

func (s *Spam) Match(issue *models.Issue) *Decision {
	for _, re := range s.patterns {
		if re.MatchString(issue.Title) || re.MatchString(issue.Body) {
			return &Decision{
				Decision: models.DecisionInvalid,
				Message:  "Issue matches a known spam pattern.",
			}
		}
	}
	return nil
}

// EmptyReport flags issues with a very short title and no body
type EmptyReport struct {
	MinTitleLength int
}

func (EmptyReport) Name() string { return "empty_report" }

func (r EmptyReport) Match(issue *models.Issue) *Decision {
	title := strings.TrimSpace(issue.Title)
	if len([]rune(title)) < r.MinTitleLength && strings.TrimSpace(issue.Body) == "" {
		return &Decision{
			Decision: models.DecisionNeedsInfo,
			Message:  "Issue has no description and too short a title to act on.",
		}
	}
	return nil
}

// TemplateUntouched flags issues whose body is only the unedited issue template
type TemplateUntouched struct {
	Markers []string
}

func (TemplateUntouched) Name() string { return "template_untouched" }

func (t TemplateUntouched) Match(issue *models.Issue) *Decision {
	if len(t.Markers) == 0 {
		return nil
	}

	rest := issue.Body
	for _, marker := range t.Markers {
		if !strings.Contains(rest, marker) {
			return nil
		}
		rest = strings.Replace(rest, marker, "", 1)
	}

	// Only markdown scaffolding may remain
	leftover := strings.Map(func(r rune) rune {
		switch r {
		case '#', '-', '*', '>', '[', ']', '_', '`', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, stripComments(rest))
	if leftover != "" {
		return nil
	}

	return &Decision{
		Decision: models.DecisionNeedsInfo,
		Message:  "Issue template was submitted without being filled in.",
	}
}

var htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)

func stripComments(s string) string {
	return htmlComment.ReplaceAllString(s, "")
}

// FlaggedLabel maps maintainer labels to a decision
type FlaggedLabel struct {
	labels map[string]models.Decision
	order  []string
}

// NewFlaggedLabel validates the label to decision table
func NewFlaggedLabel(labels map[string]string) (*FlaggedLabel, error) {
	f := &FlaggedLabel{labels: make(map[string]models.Decision, len(labels))}
	for label, raw := range labels {
		d, err := models.ParseDecision(raw)
		if err != nil {
			return nil, fmt.Errorf("flagged label %s: %w", label, err)
		}
		key := strings.ToLower(label)
		f.labels[key] = d
		f.order = append(f.order, key)
	}
	// Deterministic order when an issue carries several flagged labels
	sort.Strings(f.order)
	return f, nil
}

func (f *FlaggedLabel) Name() string { return "flagged_label" }

func (f *FlaggedLabel) Match(issue *models.Issue) *Decision {
	for _, label := range f.order {
		if issue.HasLabel(label) {
			return &Decision{
				Decision: f.labels[label],
				Message:  fmt.Sprintf("Issue was flagged with the %q label.", label),
			}
		}
	}
	return nil
}

// KnownDuplicate maps issue numbers to the original they duplicate
type KnownDuplicate map[int]int

func (KnownDuplicate) Name() string { return "known_duplicate" }

func (k KnownDuplicate) Match(issue *models.Issue) *Decision {
	original, ok := k[issue.Number]
	if !ok || original == issue.Number {
		return nil
	}
	return &Decision{
		Decision:    models.DecisionCloseDuplicate,
		Message:     fmt.Sprintf("Issue is a known duplicate of #%d.", original),
		DuplicateOf: models.IntPtr(original),
	}
}

// Custom is a user defined rule.
// Multiple conditions in a rule = AND; multiple values in a condition = OR.
type Custom struct {
	rule     config.RuleConfig
	decision models.Decision
	titleRe  *regexp.Regexp
}

func (c *Custom) Name() string {
	if c.rule.Name != "" {
		return "custom:" + c.rule.Name
	}
	return "custom"
}

func (c *Custom) Match(issue *models.Issue) *Decision {
	if !c.matches(issue) {
		return nil
	}

	msg := c.rule.Message
	if msg == "" {
		msg = fmt.Sprintf("Matched rule %s.", c.Name())
	}
	return &Decision{
		Decision:   c.decision,
		Confidence: c.rule.Confidence,
		Message:    msg,
	}
}

func (c *Custom) matches(issue *models.Issue) bool {
	cond := &c.rule.Match
	matchCount := 0
	condCount := 0

	if len(cond.Labels) > 0 {
		condCount++
		if matchesAnyLabel(issue.Labels, cond.Labels) {
			matchCount++
		}
	}

	if len(cond.TitleContains) > 0 {
		condCount++
		if containsAny(issue.Title, cond.TitleContains) {
			matchCount++
		}
	}

	if len(cond.BodyContains) > 0 {
		condCount++
		if containsAny(issue.Body, cond.BodyContains) {
			matchCount++
		}
	}

	if c.titleRe != nil {
		condCount++
		if c.titleRe.MatchString(issue.Title) {
			matchCount++
		}
	}

	if cond.Author != "" {
		condCount++
		if strings.EqualFold(issue.Author, cond.Author) {
			matchCount++
		}
	}

	return condCount > 0 && matchCount == condCount
}

func matchesAnyLabel(issueLabels, ruleLabels []string) bool {
	for _, il := range issueLabels {
		for _, rl := range ruleLabels {
			if strings.EqualFold(il, rl) {
				return true
			}
		}
	}
	return false
}

// containsAny is a case-insensitive substring check
func containsAny(text string, substrings []string) bool {
	lowerText := strings.ToLower(text)
	for _, sub := range substrings {
		if strings.Contains(lowerText, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
