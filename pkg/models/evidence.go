package models

import "fmt"

// SourceKind identifies which corpus pool an embedding belongs to
type SourceKind string

const (
	SourceIssue       SourceKind = "issue"
	SourceCodeChunk   SourceKind = "code_chunk"
	SourceDocChunk    SourceKind = "doc_chunk"
	SourcePullRequest SourceKind = "pull_request"
)

// SourceKinds lists every pool the evidence gatherer queries
var SourceKinds = []SourceKind{SourceIssue, SourceCodeChunk, SourceDocChunk, SourcePullRequest}

// EmbeddingRecord is a vector point as written by the indexing pipeline
type EmbeddingRecord struct {
	SourceID    string     `json:"source_id"`
	SourceKind  SourceKind `json:"source_kind"`
	ProjectID   string     `json:"project_id"`
	Vector      []float32  `json:"-"`
	TitleOrPath string     `json:"title_or_path"`
	Number      int        `json:"number,omitempty"`
	State       string     `json:"state,omitempty"`
	URL         string     `json:"url,omitempty"`
	Line        int        `json:"line,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
}

// EvidenceCandidate is one ranked nearest-neighbour hit
type EvidenceCandidate struct {
	SourceKind  SourceKind `json:"source_kind"`
	SourceID    string     `json:"source_id"`
	TitleOrPath string     `json:"title_or_path"`
	Similarity  float64    `json:"similarity"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Number      int        `json:"number,omitempty"`
	State       string     `json:"state,omitempty"`
	URL         string     `json:"url,omitempty"`
	Line        int        `json:"line,omitempty"`
}

// IsClosed reports whether the candidate issue or PR is in a terminal state
func (c EvidenceCandidate) IsClosed() bool {
	return c.State == "closed" || c.State == "merged"
}

// EvidenceBundle holds everything retrieved for one analysis
type EvidenceBundle struct {
	SimilarIssues  []EvidenceCandidate `json:"similar_issues"`
	SimilarCode    []EvidenceCandidate `json:"similar_code"`
	SimilarDocs    []EvidenceCandidate `json:"similar_docs"`
	SimilarPRs     []EvidenceCandidate `json:"similar_prs"`
	Degraded       bool                `json:"degraded"`
	DegradedReason string              `json:"degraded_reason,omitempty"`
}

// Pool returns the candidate list for a source kind
func (b *EvidenceBundle) Pool(kind SourceKind) []EvidenceCandidate {
	switch kind {
	case SourceIssue:
		return b.SimilarIssues
	case SourceCodeChunk:
		return b.SimilarCode
	case SourceDocChunk:
		return b.SimilarDocs
	case SourcePullRequest:
		return b.SimilarPRs
	}
	return nil
}

// SetPool replaces the candidate list for a source kind
func (b *EvidenceBundle) SetPool(kind SourceKind, candidates []EvidenceCandidate) {
	switch kind {
	case SourceIssue:
		b.SimilarIssues = candidates
	case SourceCodeChunk:
		b.SimilarCode = candidates
	case SourceDocChunk:
		b.SimilarDocs = candidates
	case SourcePullRequest:
		b.SimilarPRs = candidates
	}
}

// TopIssue returns the highest ranked similar issue, if any
func (b *EvidenceBundle) TopIssue() (EvidenceCandidate, bool) {
	if len(b.SimilarIssues) == 0 {
		return EvidenceCandidate{}, false
	}
	return b.SimilarIssues[0], true
}

// Empty reports whether no pool returned anything
func (b *EvidenceBundle) Empty() bool {
	return len(b.SimilarIssues) == 0 && len(b.SimilarCode) == 0 &&
		len(b.SimilarDocs) == 0 && len(b.SimilarPRs) == 0
}

// IssueSourceID is the source id of an issue in the issue pool
func IssueSourceID(project string, number int) string {
	return fmt.Sprintf("%s#%d", project, number)
}

// PullRequestSourceID is the source id of a pull request in the PR pool
func PullRequestSourceID(project string, number int) string {
	return fmt.Sprintf("%s!%d", project, number)
}
