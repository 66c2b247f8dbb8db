// Package importapi is the Import API: the entry point for externally
// supplied scan files (Nessus, Burp, Nuclei, Nmap) that were never run as a
// local Job. It synthesizes a completed Job record and then drives the same
// parser + Upsert Layer path a locally executed tool's output would.
package importapi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/metrics"
	"github.com/R3E-Network/orchestrator/internal/app/parsers"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

// parserByFormat maps an externally supplied format tag to the parser id
// registered in parsers.Default(), mirroring the dialects named for import
// support.
var parserByFormat = map[string]string{
	"nmap":   "nmap_xml",
	"nessus": "nessus_xml",
	"burp":   "burp_xml",
	"nuclei": "nuclei_jsonl",
}

// Importer wires the Persistence Gateway, Parser Registry, and Upsert Layer
// together for one-shot imports of externally produced scan files.
type Importer struct {
	gateway storage.Gateway
	parsers *parsers.Registry
	merger  *upsert.Merger
}

// New returns an Importer.
func New(gateway storage.Gateway, parserReg *parsers.Registry, merger *upsert.Merger) *Importer {
	return &Importer{gateway: gateway, parsers: parserReg, merger: merger}
}

// Import synthesizes a Job row already in the completed state for the given
// project and format, then parses data and merges the result through the
// Upsert Layer exactly as if the Job had executed locally, returning the
// created/updated counts.
func (i *Importer) Import(ctx context.Context, projectID uuid.UUID, format string, data []byte) (upsert.Counts, error) {
	parserID, ok := parserByFormat[format]
	if !ok {
		return upsert.Counts{}, fmt.Errorf("importapi: unsupported format %q", format)
	}

	now := time.Now()
	j := job.Job{
		ID:          uuid.New(),
		ProjectID:   projectID,
		ToolName:    "import_" + format,
		Status:      job.StatusCompleted,
		StartedAt:   &now,
		CompletedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := i.gateway.CreateJob(ctx, j)
	if err != nil {
		return upsert.Counts{}, fmt.Errorf("importapi: create job record: %w", err)
	}

	parsed, err := i.parsers.Parse(parserID, data, created)
	if err != nil {
		return upsert.Counts{}, fmt.Errorf("importapi: parse: %w", err)
	}

	counts, err := i.merger.Merge(ctx, projectID, created.ID, parsed)
	if err != nil {
		return upsert.Counts{}, fmt.Errorf("importapi: merge: %w", err)
	}

	metrics.RecordParseUpserts(parserID,
		counts.AssetsCreated+counts.AssetsUpdated,
		counts.VulnsCreated+counts.VulnsUpdated,
		counts.CredentialsCreated+counts.CredentialsUpdated,
		counts.ResultsCreated,
	)
	return counts, nil
}
