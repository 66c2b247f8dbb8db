package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/metrics"
)

// RunParseTask implements spec.md §4.4's parse-task behavior: load the job's
// stdout JobOutput rows in sequence order, concatenate them, run the tool's
// declared parser, and hand the result to the Upsert Layer.
func (e *Executor) RunParseTask(ctx context.Context, jobID uuid.UUID) error {
	j, err := e.gateway.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("jobs: parse task: load job %s: %w", jobID, err)
	}

	def, ok := e.tools.Lookup(j.ToolName)
	if !ok || def.OutputParser == "" {
		return fmt.Errorf("jobs: parse task: no parser declared for tool %q", j.ToolName)
	}

	lines, err := e.gateway.ListOutput(ctx, jobID, true)
	if err != nil {
		return fmt.Errorf("jobs: parse task: list output: %w", err)
	}

	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Content)
	}

	parsed, err := e.parserReg.Parse(def.OutputParser, []byte(sb.String()), j)
	if err != nil {
		return fmt.Errorf("jobs: parse task: %w", err)
	}

	counts, err := e.merger.Merge(ctx, j.ProjectID, jobID, parsed)
	if err != nil {
		return fmt.Errorf("jobs: parse task: merge: %w", err)
	}

	e.bus.Publish(eventbus.JobTopic(jobID), eventbus.JobStatusEvent{
		JobID:  jobID,
		Status: "parsed",
		Details: fmt.Sprintf(
			"assets +%d/~%d vulns +%d/~%d credentials +%d/~%d results +%d",
			counts.AssetsCreated, counts.AssetsUpdated,
			counts.VulnsCreated, counts.VulnsUpdated,
			counts.CredentialsCreated, counts.CredentialsUpdated,
			counts.ResultsCreated,
		),
	})
	metrics.RecordParseUpserts(def.OutputParser,
		counts.AssetsCreated+counts.AssetsUpdated,
		counts.VulnsCreated+counts.VulnsUpdated,
		counts.CredentialsCreated+counts.CredentialsUpdated,
		counts.ResultsCreated,
	)
	return nil
}
