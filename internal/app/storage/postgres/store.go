// Package postgres implements the Persistence Gateway backed by PostgreSQL,
// using sqlx as the query layer (rows are scanned column by column) and
// lib/pq as the driver. Schema
// management is handled by the embedded migration set in this package
// (see migrations.go), applied idempotently at startup.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/credential"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
	"github.com/R3E-Network/orchestrator/internal/app/domain/result"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/domain/workflow"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
)

// Store implements storage.Gateway backed by a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.Gateway = (*Store)(nil)

// Open connects to dsn and verifies the connection is alive.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already-open sqlx handle.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) HealthCheck(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- ProjectStore ------------------------------------------------------

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (project.Project, error) {
	var p project.Project
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM projects WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return project.Project{}, wrapNotFound(err)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM projects ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// --- AssetStore ----------------------------------------------------------

func (s *Store) CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	return insertAsset(ctx, s.db, a)
}

func insertAsset(ctx context.Context, ex sqlx.ExtContext, a asset.Asset) (asset.Asset, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return asset.Asset{}, err
	}
	tagsJSON, err := json.Marshal(a.Tags)
	if err != nil {
		return asset.Asset{}, err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO assets (id, project_id, type, value, tags, metadata, risk_score, status, discovered_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.ProjectID, a.Type, a.Value, tagsJSON, metaJSON, a.RiskScore, a.Status, a.DiscoveredBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return asset.Asset{}, err
	}
	return a, nil
}

func (s *Store) UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	return updateAsset(ctx, s.db, a)
}

func updateAsset(ctx context.Context, ex sqlx.ExtContext, a asset.Asset) (asset.Asset, error) {
	a.UpdatedAt = time.Now().UTC()
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return asset.Asset{}, err
	}
	tagsJSON, err := json.Marshal(a.Tags)
	if err != nil {
		return asset.Asset{}, err
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE assets SET type=$2, value=$3, tags=$4, metadata=$5, risk_score=$6, status=$7, updated_at=$8
		WHERE id=$1
	`, a.ID, a.Type, a.Value, tagsJSON, metaJSON, a.RiskScore, a.Status, a.UpdatedAt)
	if err != nil {
		return asset.Asset{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return asset.Asset{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAsset(ctx context.Context, id uuid.UUID) (asset.Asset, error) {
	return getAsset(ctx, s.db, `id = $1`, id)
}

func (s *Store) GetAssetByNaturalKey(ctx context.Context, projectID uuid.UUID, typ asset.Type, value string) (asset.Asset, error) {
	return getAsset(ctx, s.db, `project_id = $1 AND type = $2 AND value = $3`, projectID, typ, value)
}

func getAsset(ctx context.Context, ex sqlx.QueryerContext, where string, args ...any) (asset.Asset, error) {
	rows, err := ex.QueryxContext(ctx, `
		SELECT id, project_id, type, value, tags, metadata, risk_score, status, discovered_by, created_at, updated_at
		FROM assets WHERE `+where, args...)
	if err != nil {
		return asset.Asset{}, err
	}
	if !rows.Next() {
		return asset.Asset{}, storage.ErrNotFound
	}
	a, err := scanAsset(rows)
	rows.Close()
	if err != nil {
		return asset.Asset{}, err
	}
	return a, nil
}

func scanAsset(scanner interface{ Scan(...any) error }) (asset.Asset, error) {
	var (
		a        asset.Asset
		tagsRaw  []byte
		metaRaw  []byte
	)
	if err := scanner.Scan(&a.ID, &a.ProjectID, &a.Type, &a.Value, &tagsRaw, &metaRaw, &a.RiskScore, &a.Status, &a.DiscoveredBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return asset.Asset{}, err
	}
	if len(tagsRaw) > 0 {
		_ = json.Unmarshal(tagsRaw, &a.Tags)
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &a.Metadata)
	}
	return a, nil
}

func (s *Store) ListAssets(ctx context.Context, projectID uuid.UUID) ([]asset.Asset, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, project_id, type, value, tags, metadata, risk_score, status, discovered_by, created_at, updated_at
		FROM assets WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateRelation(ctx context.Context, r asset.Relation) error {
	r.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_relations (project_id, parent_id, child_id, created_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING
	`, r.ProjectID, r.ParentID, r.ChildID, r.CreatedAt)
	return err
}

// --- JobStore --------------------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	paramsJSON, err := json.Marshal(j.Parameters)
	if err != nil {
		return job.Job{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, project_id, tool_name, parameters, command, priority, timeout_seconds, status,
			exit_code, error_message, started_at, completed_at, scheduled_at, created_by, workflow_run_id,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, j.ID, j.ProjectID, j.ToolName, paramsJSON, j.Command, j.Priority, j.TimeoutSeconds, j.Status,
		j.ExitCode, j.ErrorMessage, j.StartedAt, j.CompletedAt, j.ScheduledAt, j.CreatedBy, j.WorkflowRunID,
		j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	j.UpdatedAt = time.Now().UTC()
	paramsJSON, err := json.Marshal(j.Parameters)
	if err != nil {
		return job.Job{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET tool_name=$2, parameters=$3, command=$4, priority=$5, timeout_seconds=$6, status=$7,
			exit_code=$8, error_message=$9, started_at=$10, completed_at=$11, scheduled_at=$12, updated_at=$13
		WHERE id=$1
	`, j.ID, j.ToolName, paramsJSON, j.Command, j.Priority, j.TimeoutSeconds, j.Status,
		j.ExitCode, j.ErrorMessage, j.StartedAt, j.CompletedAt, j.ScheduledAt, j.UpdatedAt)
	if err != nil {
		return job.Job{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return job.Job{}, storage.ErrNotFound
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (job.Job, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, project_id, tool_name, parameters, command, priority, timeout_seconds, status,
			exit_code, error_message, started_at, completed_at, scheduled_at, created_by, workflow_run_id,
			created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)
	j, err := scanJob(row)
	if err != nil {
		return job.Job{}, wrapNotFound(err)
	}
	return j, nil
}

func scanJob(scanner interface{ Scan(...any) error }) (job.Job, error) {
	var (
		j          job.Job
		paramsRaw  []byte
	)
	if err := scanner.Scan(&j.ID, &j.ProjectID, &j.ToolName, &paramsRaw, &j.Command, &j.Priority, &j.TimeoutSeconds,
		&j.Status, &j.ExitCode, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.ScheduledAt, &j.CreatedBy,
		&j.WorkflowRunID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return job.Job{}, err
	}
	if len(paramsRaw) > 0 {
		_ = json.Unmarshal(paramsRaw, &j.Parameters)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, projectID uuid.UUID) ([]job.Job, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, project_id, tool_name, parameters, command, priority, timeout_seconds, status,
			exit_code, error_message, started_at, completed_at, scheduled_at, created_by, workflow_run_id,
			created_at, updated_at
		FROM jobs WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) ListDueScheduledJobs(ctx context.Context, before time.Time, limit int) ([]job.Job, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, project_id, tool_name, parameters, command, priority, timeout_seconds, status,
			exit_code, error_message, started_at, completed_at, scheduled_at, created_by, workflow_run_id,
			created_at, updated_at
		FROM jobs WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at LIMIT $3
	`, job.StatusQueued, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) CreateTarget(ctx context.Context, t job.Target) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_targets (job_id, asset_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, t.JobID, t.AssetID)
	return err
}

// --- JobOutputStore ----------------------------------------------------

func (s *Store) AppendOutput(ctx context.Context, o job.Output) error {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_outputs (job_id, sequence, type, content, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`, o.JobID, o.Sequence, o.Type, o.Content, o.Timestamp)
	return err
}

func (s *Store) ListOutput(ctx context.Context, jobID uuid.UUID, stdoutOnly bool) ([]job.Output, error) {
	query := `SELECT job_id, sequence, type, content, timestamp FROM job_outputs WHERE job_id = $1`
	args := []any{jobID}
	if stdoutOnly {
		query += ` AND type = $2`
		args = append(args, job.OutputStdout)
	}
	query += ` ORDER BY sequence`
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []job.Output
	for rows.Next() {
		var o job.Output
		if err := rows.Scan(&o.JobID, &o.Sequence, &o.Type, &o.Content, &o.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) NextSequence(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_outputs WHERE job_id = $1`, jobID).Scan(&n)
	return n, err
}

// --- VulnerabilityStore --------------------------------------------------

func (s *Store) CreateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	return insertVuln(ctx, s.db, v)
}

func insertVuln(ctx context.Context, ex sqlx.ExtContext, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	cveJSON, _ := json.Marshal(v.CVEIDs)
	cweJSON, _ := json.Marshal(v.CWEIDs)
	refsJSON, _ := json.Marshal(v.References)
	tagsJSON, _ := json.Marshal(v.Tags)
	metaJSON, err := json.Marshal(v.Metadata)
	if err != nil {
		return vuln.Vulnerability{}, err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO vulnerabilities (id, project_id, asset_id, title, severity, status, cvss_score, cvss_vector,
			cve_ids, cwe_ids, evidence, proof_of_concept, raw_request, raw_response, remediation, "references",
			tags, template_id, tool_name, metadata, fingerprint, discovered_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`, v.ID, v.ProjectID, v.AssetID, v.Title, v.Severity, v.Status, v.CVSSScore, v.CVSSVector,
		cveJSON, cweJSON, v.Evidence, v.ProofOfConcept, v.RawRequest, v.RawResponse, v.Remediation, refsJSON,
		tagsJSON, v.TemplateID, v.ToolName, metaJSON, v.Fingerprint, v.DiscoveredBy, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return vuln.Vulnerability{}, err
	}
	return v, nil
}

func (s *Store) UpdateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	return updateVuln(ctx, s.db, v)
}

func updateVuln(ctx context.Context, ex sqlx.ExtContext, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	v.UpdatedAt = time.Now().UTC()
	cveJSON, _ := json.Marshal(v.CVEIDs)
	cweJSON, _ := json.Marshal(v.CWEIDs)
	refsJSON, _ := json.Marshal(v.References)
	tagsJSON, _ := json.Marshal(v.Tags)
	metaJSON, err := json.Marshal(v.Metadata)
	if err != nil {
		return vuln.Vulnerability{}, err
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE vulnerabilities SET title=$2, severity=$3, status=$4, cvss_score=$5, cvss_vector=$6,
			cve_ids=$7, cwe_ids=$8, evidence=$9, proof_of_concept=$10, raw_request=$11, raw_response=$12,
			remediation=$13, "references"=$14, tags=$15, metadata=$16, updated_at=$17
		WHERE id=$1
	`, v.ID, v.Title, v.Severity, v.Status, v.CVSSScore, v.CVSSVector, cveJSON, cweJSON, v.Evidence,
		v.ProofOfConcept, v.RawRequest, v.RawResponse, v.Remediation, refsJSON, tagsJSON, metaJSON, v.UpdatedAt)
	if err != nil {
		return vuln.Vulnerability{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return vuln.Vulnerability{}, storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) GetVulnerabilityByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (vuln.Vulnerability, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, project_id, asset_id, title, severity, status, cvss_score, cvss_vector, cve_ids, cwe_ids,
			evidence, proof_of_concept, raw_request, raw_response, remediation, "references", tags, template_id,
			tool_name, metadata, fingerprint, discovered_by, created_at, updated_at
		FROM vulnerabilities WHERE project_id = $1 AND fingerprint = $2
	`, projectID, fingerprint)
	v, err := scanVuln(row)
	if err != nil {
		return vuln.Vulnerability{}, wrapNotFound(err)
	}
	return v, nil
}

func scanVuln(scanner interface{ Scan(...any) error }) (vuln.Vulnerability, error) {
	var (
		v                                      vuln.Vulnerability
		cveRaw, cweRaw, refsRaw, tagsRaw, meta  []byte
	)
	if err := scanner.Scan(&v.ID, &v.ProjectID, &v.AssetID, &v.Title, &v.Severity, &v.Status, &v.CVSSScore,
		&v.CVSSVector, &cveRaw, &cweRaw, &v.Evidence, &v.ProofOfConcept, &v.RawRequest, &v.RawResponse,
		&v.Remediation, &refsRaw, &tagsRaw, &v.TemplateID, &v.ToolName, &meta, &v.Fingerprint, &v.DiscoveredBy,
		&v.CreatedAt, &v.UpdatedAt); err != nil {
		return vuln.Vulnerability{}, err
	}
	_ = json.Unmarshal(cveRaw, &v.CVEIDs)
	_ = json.Unmarshal(cweRaw, &v.CWEIDs)
	_ = json.Unmarshal(refsRaw, &v.References)
	_ = json.Unmarshal(tagsRaw, &v.Tags)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &v.Metadata)
	}
	return v, nil
}

func (s *Store) ListVulnerabilities(ctx context.Context, projectID uuid.UUID) ([]vuln.Vulnerability, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, project_id, asset_id, title, severity, status, cvss_score, cvss_vector, cve_ids, cwe_ids,
			evidence, proof_of_concept, raw_request, raw_response, remediation, "references", tags, template_id,
			tool_name, metadata, fingerprint, discovered_by, created_at, updated_at
		FROM vulnerabilities WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []vuln.Vulnerability
	for rows.Next() {
		v, err := scanVuln(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- CredentialStore -----------------------------------------------------

func (s *Store) CreateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	return insertCredential(ctx, s.db, c)
}

func insertCredential(ctx context.Context, ex sqlx.ExtContext, c credential.Credential) (credential.Credential, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return credential.Credential{}, err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO credentials (id, project_id, asset_id, credential_type, username, domain, service, port, url,
			encrypted_plaintext, raw_hash, hash_type, is_valid, source, metadata, fingerprint, discovered_by,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, c.ID, c.ProjectID, c.AssetID, c.CredentialType, c.Username, c.Domain, c.Service, c.Port, c.URL,
		c.EncryptedPlaintext, c.RawHash, c.HashType, c.IsValid, c.Source, metaJSON, c.Fingerprint, c.DiscoveredBy,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return credential.Credential{}, err
	}
	return c, nil
}

func (s *Store) UpdateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	return updateCredential(ctx, s.db, c)
}

func updateCredential(ctx context.Context, ex sqlx.ExtContext, c credential.Credential) (credential.Credential, error) {
	c.UpdatedAt = time.Now().UTC()
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return credential.Credential{}, err
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE credentials SET username=$2, domain=$3, service=$4, port=$5, url=$6, encrypted_plaintext=$7,
			raw_hash=$8, hash_type=$9, is_valid=$10, source=$11, metadata=$12, updated_at=$13
		WHERE id=$1
	`, c.ID, c.Username, c.Domain, c.Service, c.Port, c.URL, c.EncryptedPlaintext, c.RawHash, c.HashType,
		c.IsValid, c.Source, metaJSON, c.UpdatedAt)
	if err != nil {
		return credential.Credential{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return credential.Credential{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetCredentialByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (credential.Credential, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, project_id, asset_id, credential_type, username, domain, service, port, url,
			encrypted_plaintext, raw_hash, hash_type, is_valid, source, metadata, fingerprint, discovered_by,
			created_at, updated_at
		FROM credentials WHERE project_id = $1 AND fingerprint = $2
	`, projectID, fingerprint)
	c, err := scanCredential(row)
	if err != nil {
		return credential.Credential{}, wrapNotFound(err)
	}
	return c, nil
}

func scanCredential(scanner interface{ Scan(...any) error }) (credential.Credential, error) {
	var (
		c       credential.Credential
		metaRaw []byte
	)
	if err := scanner.Scan(&c.ID, &c.ProjectID, &c.AssetID, &c.CredentialType, &c.Username, &c.Domain,
		&c.Service, &c.Port, &c.URL, &c.EncryptedPlaintext, &c.RawHash, &c.HashType, &c.IsValid, &c.Source,
		&metaRaw, &c.Fingerprint, &c.DiscoveredBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return credential.Credential{}, err
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &c.Metadata)
	}
	return c, nil
}

func (s *Store) ListCredentials(ctx context.Context, projectID uuid.UUID) ([]credential.Credential, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, project_id, asset_id, credential_type, username, domain, service, port, url,
			encrypted_plaintext, raw_hash, hash_type, is_valid, source, metadata, fingerprint, discovered_by,
			created_at, updated_at
		FROM credentials WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []credential.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- ResultStore -----------------------------------------------------------

func (s *Store) CreateResult(ctx context.Context, r result.Result) (result.Result, error) {
	return insertResult(ctx, s.db, r)
}

func insertResult(ctx context.Context, ex sqlx.ExtContext, r result.Result) (result.Result, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()
	dataJSON, err := json.Marshal(r.ParsedData)
	if err != nil {
		return result.Result{}, err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO results (id, project_id, job_id, asset_id, result_type, parsed_data, severity, fingerprint, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, r.ID, r.ProjectID, r.JobID, r.AssetID, r.ResultType, dataJSON, r.Severity, r.Fingerprint, r.CreatedAt)
	if err != nil {
		return result.Result{}, err
	}
	return r, nil
}

func (s *Store) ListResults(ctx context.Context, jobID uuid.UUID) ([]result.Result, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, project_id, job_id, asset_id, result_type, parsed_data, severity, fingerprint, created_at
		FROM results WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []result.Result
	for rows.Next() {
		var (
			r       result.Result
			dataRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.JobID, &r.AssetID, &r.ResultType, &dataRaw, &r.Severity,
			&r.Fingerprint, &r.CreatedAt); err != nil {
			return nil, err
		}
		if len(dataRaw) > 0 {
			_ = json.Unmarshal(dataRaw, &r.ParsedData)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- WorkflowStore / WorkflowRunStore --------------------------------------

func (s *Store) CreateWorkflow(ctx context.Context, w workflow.Workflow) (workflow.Workflow, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	defJSON, err := json.Marshal(w.Definition)
	if err != nil {
		return workflow.Workflow{}, err
	}
	settingsJSON, err := json.Marshal(w.Settings)
	if err != nil {
		return workflow.Workflow{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, project_id, name, definition, is_template, settings, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, w.ID, w.ProjectID, w.Name, defJSON, w.IsTemplate, settingsJSON, w.CreatedBy, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	return w, nil
}

func (s *Store) GetWorkflow(ctx context.Context, id uuid.UUID) (workflow.Workflow, error) {
	var (
		w                         workflow.Workflow
		defRaw, settingsRaw       []byte
	)
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, project_id, name, definition, is_template, settings, created_by, created_at, updated_at
		FROM workflows WHERE id = $1
	`, id).Scan(&w.ID, &w.ProjectID, &w.Name, &defRaw, &w.IsTemplate, &settingsRaw, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return workflow.Workflow{}, wrapNotFound(err)
	}
	_ = json.Unmarshal(defRaw, &w.Definition)
	_ = json.Unmarshal(settingsRaw, &w.Settings)
	return w, nil
}

func (s *Store) ListWorkflows(ctx context.Context, projectID uuid.UUID) ([]workflow.Workflow, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, project_id, name, definition, is_template, settings, created_by, created_at, updated_at
		FROM workflows WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.Workflow
	for rows.Next() {
		var (
			w                   workflow.Workflow
			defRaw, settingsRaw []byte
		)
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.Name, &defRaw, &w.IsTemplate, &settingsRaw, &w.CreatedBy,
			&w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(defRaw, &w.Definition)
		_ = json.Unmarshal(settingsRaw, &w.Settings)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) CreateRun(ctx context.Context, r workflow.Run) (workflow.Run, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	ctxJSON, err := json.Marshal(r.Context)
	if err != nil {
		return workflow.Run{}, err
	}
	inputJSON, _ := json.Marshal(r.InputParams)
	logJSON, _ := json.Marshal(r.ExecutionLog)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, project_id, status, current_node_id, current_step, context,
			input_params, execution_log, error_message, error_node_id, started_at, completed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.ID, r.WorkflowID, r.ProjectID, r.Status, r.CurrentNodeID, r.CurrentStep, ctxJSON, inputJSON, logJSON,
		r.ErrorMessage, r.ErrorNodeID, r.StartedAt, r.CompletedAt, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return workflow.Run{}, err
	}
	return r, nil
}

func (s *Store) UpdateRun(ctx context.Context, r workflow.Run) (workflow.Run, error) {
	r.UpdatedAt = time.Now().UTC()
	ctxJSON, err := json.Marshal(r.Context)
	if err != nil {
		return workflow.Run{}, err
	}
	inputJSON, _ := json.Marshal(r.InputParams)
	logJSON, _ := json.Marshal(r.ExecutionLog)
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status=$2, current_node_id=$3, current_step=$4, context=$5, input_params=$6,
			execution_log=$7, error_message=$8, error_node_id=$9, started_at=$10, completed_at=$11, updated_at=$12
		WHERE id=$1
	`, r.ID, r.Status, r.CurrentNodeID, r.CurrentStep, ctxJSON, inputJSON, logJSON, r.ErrorMessage, r.ErrorNodeID,
		r.StartedAt, r.CompletedAt, r.UpdatedAt)
	if err != nil {
		return workflow.Run{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workflow.Run{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (workflow.Run, error) {
	var (
		r                            workflow.Run
		ctxRaw, inputRaw, logRaw     []byte
	)
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, workflow_id, project_id, status, current_node_id, current_step, context, input_params,
			execution_log, error_message, error_node_id, started_at, completed_at, created_at, updated_at
		FROM workflow_runs WHERE id = $1
	`, id).Scan(&r.ID, &r.WorkflowID, &r.ProjectID, &r.Status, &r.CurrentNodeID, &r.CurrentStep, &ctxRaw,
		&inputRaw, &logRaw, &r.ErrorMessage, &r.ErrorNodeID, &r.StartedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return workflow.Run{}, wrapNotFound(err)
	}
	_ = json.Unmarshal(ctxRaw, &r.Context)
	_ = json.Unmarshal(inputRaw, &r.InputParams)
	_ = json.Unmarshal(logRaw, &r.ExecutionLog)
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context, workflowID uuid.UUID) ([]workflow.Run, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, workflow_id, project_id, status, current_node_id, current_step, context, input_params,
			execution_log, error_message, error_node_id, started_at, completed_at, created_at, updated_at
		FROM workflow_runs WHERE workflow_id = $1 ORDER BY created_at
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.Run
	for rows.Next() {
		var (
			r                        workflow.Run
			ctxRaw, inputRaw, logRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.ProjectID, &r.Status, &r.CurrentNodeID, &r.CurrentStep,
			&ctxRaw, &inputRaw, &logRaw, &r.ErrorMessage, &r.ErrorNodeID, &r.StartedAt, &r.CompletedAt,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ctxRaw, &r.Context)
		_ = json.Unmarshal(inputRaw, &r.InputParams)
		_ = json.Unmarshal(logRaw, &r.ExecutionLog)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- transactional view --------------------------------------------------

type tx struct {
	sqlTx *sqlx.Tx
}

func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, err
	}
	return &tx{sqlTx: sqlTx}, nil
}

func (t *tx) Commit() error   { return t.sqlTx.Commit() }
func (t *tx) Rollback() error { return t.sqlTx.Rollback() }

func (t *tx) CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	return insertAsset(ctx, t.sqlTx, a)
}
func (t *tx) UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	return updateAsset(ctx, t.sqlTx, a)
}
func (t *tx) GetAsset(ctx context.Context, id uuid.UUID) (asset.Asset, error) {
	return getAsset(ctx, t.sqlTx, `id = $1`, id)
}
func (t *tx) GetAssetByNaturalKey(ctx context.Context, projectID uuid.UUID, typ asset.Type, value string) (asset.Asset, error) {
	return getAsset(ctx, t.sqlTx, `project_id = $1 AND type = $2 AND value = $3`, projectID, typ, value)
}
func (t *tx) ListAssets(ctx context.Context, projectID uuid.UUID) ([]asset.Asset, error) {
	rows, err := t.sqlTx.QueryxContext(ctx, `
		SELECT id, project_id, type, value, tags, metadata, risk_score, status, discovered_by, created_at, updated_at
		FROM assets WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
func (t *tx) CreateRelation(ctx context.Context, r asset.Relation) error {
	r.CreatedAt = time.Now().UTC()
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO asset_relations (project_id, parent_id, child_id, created_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING
	`, r.ProjectID, r.ParentID, r.ChildID, r.CreatedAt)
	return err
}

func (t *tx) CreateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	return insertVuln(ctx, t.sqlTx, v)
}
func (t *tx) UpdateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	return updateVuln(ctx, t.sqlTx, v)
}
func (t *tx) GetVulnerabilityByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (vuln.Vulnerability, error) {
	row := t.sqlTx.QueryRowxContext(ctx, `
		SELECT id, project_id, asset_id, title, severity, status, cvss_score, cvss_vector, cve_ids, cwe_ids,
			evidence, proof_of_concept, raw_request, raw_response, remediation, "references", tags, template_id,
			tool_name, metadata, fingerprint, discovered_by, created_at, updated_at
		FROM vulnerabilities WHERE project_id = $1 AND fingerprint = $2
	`, projectID, fingerprint)
	v, err := scanVuln(row)
	if err != nil {
		return vuln.Vulnerability{}, wrapNotFound(err)
	}
	return v, nil
}
func (t *tx) ListVulnerabilities(ctx context.Context, projectID uuid.UUID) ([]vuln.Vulnerability, error) {
	rows, err := t.sqlTx.QueryxContext(ctx, `
		SELECT id, project_id, asset_id, title, severity, status, cvss_score, cvss_vector, cve_ids, cwe_ids,
			evidence, proof_of_concept, raw_request, raw_response, remediation, "references", tags, template_id,
			tool_name, metadata, fingerprint, discovered_by, created_at, updated_at
		FROM vulnerabilities WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []vuln.Vulnerability
	for rows.Next() {
		v, err := scanVuln(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *tx) CreateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	return insertCredential(ctx, t.sqlTx, c)
}
func (t *tx) UpdateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	return updateCredential(ctx, t.sqlTx, c)
}
func (t *tx) GetCredentialByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (credential.Credential, error) {
	row := t.sqlTx.QueryRowxContext(ctx, `
		SELECT id, project_id, asset_id, credential_type, username, domain, service, port, url,
			encrypted_plaintext, raw_hash, hash_type, is_valid, source, metadata, fingerprint, discovered_by,
			created_at, updated_at
		FROM credentials WHERE project_id = $1 AND fingerprint = $2
	`, projectID, fingerprint)
	c, err := scanCredential(row)
	if err != nil {
		return credential.Credential{}, wrapNotFound(err)
	}
	return c, nil
}
func (t *tx) ListCredentials(ctx context.Context, projectID uuid.UUID) ([]credential.Credential, error) {
	rows, err := t.sqlTx.QueryxContext(ctx, `
		SELECT id, project_id, asset_id, credential_type, username, domain, service, port, url,
			encrypted_plaintext, raw_hash, hash_type, is_valid, source, metadata, fingerprint, discovered_by,
			created_at, updated_at
		FROM credentials WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []credential.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) CreateResult(ctx context.Context, r result.Result) (result.Result, error) {
	return insertResult(ctx, t.sqlTx, r)
}
func (t *tx) ListResults(ctx context.Context, jobID uuid.UUID) ([]result.Result, error) {
	rows, err := t.sqlTx.QueryxContext(ctx, `
		SELECT id, project_id, job_id, asset_id, result_type, parsed_data, severity, fingerprint, created_at
		FROM results WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []result.Result
	for rows.Next() {
		var (
			r       result.Result
			dataRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.JobID, &r.AssetID, &r.ResultType, &dataRaw, &r.Severity,
			&r.Fingerprint, &r.CreatedAt); err != nil {
			return nil, err
		}
		if len(dataRaw) > 0 {
			_ = json.Unmarshal(dataRaw, &r.ParsedData)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
