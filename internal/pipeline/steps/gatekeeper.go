package steps

import (
	"github.com/Kavirubc/gh-triage/internal/pipeline/core"
)

// ProjectGatekeeper stops the pipeline for projects explicitly disabled in
// config. Projects that are not listed are allowed.
type ProjectGatekeeper struct{}

// NewProjectGatekeeper creates a new gatekeeper step
func NewProjectGatekeeper() *ProjectGatekeeper {
	return &ProjectGatekeeper{}
}

func (s *ProjectGatekeeper) Name() string {
	return "gatekeeper"
}

func (s *ProjectGatekeeper) Run(ctx *core.Context) error {
	p := ctx.Config.GetProjectConfig(ctx.Issue.Org, ctx.Issue.Repo)
	if p != nil && !p.Enabled {
		ctx.SkipReason = "project not enabled"
		return core.ErrSkipPipeline
	}
	return nil
}
