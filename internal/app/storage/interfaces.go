// Package storage defines the Persistence Gateway: one interface per
// aggregate, so callers depend on behavior, not on a specific query
// language or backing store. Two implementations exist: memory (tests,
// zero-config runs) and postgres (production).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/credential"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
	"github.com/R3E-Network/orchestrator/internal/app/domain/result"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/domain/workflow"
)

// ErrNotFound is returned by natural-key lookups (asset/vulnerability/
// credential dedup) when no matching row exists. Callers in the Upsert
// Layer treat it as "create a new row" rather than an error condition.
var ErrNotFound = errors.New("storage: not found")

// ProjectStore persists Project records. Deleting a project cascades to all
// child entities.
type ProjectStore interface {
	CreateProject(ctx context.Context, p project.Project) (project.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
}

// AssetStore persists Assets and their relations. GetAssetByNaturalKey backs
// the (project,type,value) uniqueness invariant the Upsert Layer relies on.
type AssetStore interface {
	CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error)
	UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (asset.Asset, error)
	GetAssetByNaturalKey(ctx context.Context, projectID uuid.UUID, typ asset.Type, value string) (asset.Asset, error)
	ListAssets(ctx context.Context, projectID uuid.UUID) ([]asset.Asset, error)
	CreateRelation(ctx context.Context, r asset.Relation) error
}

// JobStore persists Jobs.
type JobStore interface {
	CreateJob(ctx context.Context, j job.Job) (job.Job, error)
	UpdateJob(ctx context.Context, j job.Job) (job.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (job.Job, error)
	ListJobs(ctx context.Context, projectID uuid.UUID) ([]job.Job, error)
	ListDueScheduledJobs(ctx context.Context, before time.Time, limit int) ([]job.Job, error)
	CreateTarget(ctx context.Context, t job.Target) error
}

// JobOutputStore persists streamed JobOutput chunks.
type JobOutputStore interface {
	AppendOutput(ctx context.Context, o job.Output) error
	ListOutput(ctx context.Context, jobID uuid.UUID, stdoutOnly bool) ([]job.Output, error)
	NextSequence(ctx context.Context, jobID uuid.UUID) (int, error)
}

// VulnerabilityStore persists Vulnerabilities, deduplicated by fingerprint.
type VulnerabilityStore interface {
	CreateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error)
	UpdateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error)
	GetVulnerabilityByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (vuln.Vulnerability, error)
	ListVulnerabilities(ctx context.Context, projectID uuid.UUID) ([]vuln.Vulnerability, error)
}

// CredentialStore persists Credentials, deduplicated by fingerprint.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error)
	UpdateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error)
	GetCredentialByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (credential.Credential, error)
	ListCredentials(ctx context.Context, projectID uuid.UUID) ([]credential.Credential, error)
}

// ResultStore persists raw Results. Results are always inserted, never
// merged.
type ResultStore interface {
	CreateResult(ctx context.Context, r result.Result) (result.Result, error)
	ListResults(ctx context.Context, jobID uuid.UUID) ([]result.Result, error)
}

// WorkflowStore persists Workflow definitions.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, w workflow.Workflow) (workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id uuid.UUID) (workflow.Workflow, error)
	ListWorkflows(ctx context.Context, projectID uuid.UUID) ([]workflow.Workflow, error)
}

// WorkflowRunStore persists WorkflowRun execution instances, including the
// append-only execution_log.
type WorkflowRunStore interface {
	CreateRun(ctx context.Context, r workflow.Run) (workflow.Run, error)
	UpdateRun(ctx context.Context, r workflow.Run) (workflow.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (workflow.Run, error)
	ListRuns(ctx context.Context, workflowID uuid.UUID) ([]workflow.Run, error)
}

// Tx is a transactional session. The Upsert Layer requires one per job
// parse to satisfy its read-modify-write serialization requirement.
type Tx interface {
	Commit() error
	Rollback() error

	AssetStore
	VulnerabilityStore
	CredentialStore
	ResultStore
}

// Gateway is the full Persistence Gateway surface: row-level access plus
// transactional batched-upsert support.
type Gateway interface {
	ProjectStore
	AssetStore
	JobStore
	JobOutputStore
	VulnerabilityStore
	CredentialStore
	ResultStore
	WorkflowStore
	WorkflowRunStore

	BeginTx(ctx context.Context) (Tx, error)
	HealthCheck(ctx context.Context) error
}
