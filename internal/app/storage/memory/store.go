// Package memory implements the Persistence Gateway entirely in process
// memory. It is used for tests and the zero-config run mode, mirroring the
// thread-safe map-backed store the teacher repo provides for the same
// purposes (internal/app/storage/memory.go).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/credential"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
	"github.com/R3E-Network/orchestrator/internal/app/domain/result"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/domain/workflow"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
)

// Store is a thread-safe in-memory implementation of storage.Gateway.
type Store struct {
	mu sync.RWMutex

	projects      map[uuid.UUID]project.Project
	assets        map[uuid.UUID]asset.Asset
	relations     []asset.Relation
	jobs          map[uuid.UUID]job.Job
	jobTargets    []job.Target
	jobOutputs    map[uuid.UUID][]job.Output
	vulns         map[uuid.UUID]vuln.Vulnerability
	creds         map[uuid.UUID]credential.Credential
	results       map[uuid.UUID]result.Result
	workflows     map[uuid.UUID]workflow.Workflow
	runs          map[uuid.UUID]workflow.Run
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		projects:   make(map[uuid.UUID]project.Project),
		assets:     make(map[uuid.UUID]asset.Asset),
		jobs:       make(map[uuid.UUID]job.Job),
		jobOutputs: make(map[uuid.UUID][]job.Output),
		vulns:      make(map[uuid.UUID]vuln.Vulnerability),
		creds:      make(map[uuid.UUID]credential.Credential),
		results:    make(map[uuid.UUID]result.Result),
		workflows:  make(map[uuid.UUID]workflow.Workflow),
		runs:       make(map[uuid.UUID]workflow.Run),
	}
}

var _ storage.Gateway = (*Store)(nil)

// --- ProjectStore ------------------------------------------------------

func (s *Store) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id uuid.UUID) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, fmt.Errorf("project %s not found", id)
	}
	return p, nil
}

func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteProject(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	for aid, a := range s.assets {
		if a.ProjectID == id {
			delete(s.assets, aid)
		}
	}
	for jid, j := range s.jobs {
		if j.ProjectID == id {
			delete(s.jobs, jid)
			delete(s.jobOutputs, jid)
		}
	}
	for vid, v := range s.vulns {
		if v.ProjectID == id {
			delete(s.vulns, vid)
		}
	}
	for cid, c := range s.creds {
		if c.ProjectID == id {
			delete(s.creds, cid)
		}
	}
	for rid, r := range s.results {
		if r.ProjectID == id {
			delete(s.results, rid)
		}
	}
	for wid, w := range s.workflows {
		if w.ProjectID != nil && *w.ProjectID == id {
			delete(s.workflows, wid)
		}
	}
	return nil
}

// --- AssetStore ----------------------------------------------------------

func (s *Store) CreateAsset(_ context.Context, a asset.Asset) (asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAssetLocked(a)
}

func (s *Store) createAssetLocked(a asset.Asset) (asset.Asset, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	a.Tags = append([]string(nil), a.Tags...)
	a.Metadata = copyMap(a.Metadata)
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAsset(_ context.Context, a asset.Asset) (asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.assets[a.ID]
	if !ok {
		return asset.Asset{}, fmt.Errorf("asset %s not found", a.ID)
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	a.Tags = append([]string(nil), a.Tags...)
	a.Metadata = copyMap(a.Metadata)
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) GetAsset(_ context.Context, id uuid.UUID) (asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return asset.Asset{}, fmt.Errorf("asset %s not found", id)
	}
	return a, nil
}

func (s *Store) GetAssetByNaturalKey(_ context.Context, projectID uuid.UUID, typ asset.Type, value string) (asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.ProjectID == projectID && a.Type == typ && a.Value == value {
			return a, nil
		}
	}
	return asset.Asset{}, storage.ErrNotFound
}

func (s *Store) ListAssets(_ context.Context, projectID uuid.UUID) ([]asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []asset.Asset
	for _, a := range s.assets {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateRelation(_ context.Context, r asset.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.CreatedAt = time.Now().UTC()
	s.relations = append(s.relations, r)
	return nil
}

// --- JobStore --------------------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	s.jobs[j.ID] = j
	return j, nil
}

func (s *Store) UpdateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[j.ID]
	if !ok {
		return job.Job{}, fmt.Errorf("job %s not found", j.ID)
	}
	j.CreatedAt = existing.CreatedAt
	j.UpdatedAt = time.Now().UTC()
	s.jobs[j.ID] = j
	return j, nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, fmt.Errorf("job %s not found", id)
	}
	return j, nil
}

func (s *Store) ListJobs(_ context.Context, projectID uuid.UUID) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []job.Job
	for _, j := range s.jobs {
		if j.ProjectID == projectID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDueScheduledJobs(_ context.Context, before time.Time, limit int) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []job.Job
	for _, j := range s.jobs {
		if j.Status != job.StatusQueued || j.ScheduledAt == nil {
			continue
		}
		if j.ScheduledAt.After(before) {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ScheduledAt.Before(*out[k].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateTarget(_ context.Context, t job.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobTargets = append(s.jobTargets, t)
	return nil
}

// --- JobOutputStore ----------------------------------------------------

func (s *Store) AppendOutput(_ context.Context, o job.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	s.jobOutputs[o.JobID] = append(s.jobOutputs[o.JobID], o)
	return nil
}

func (s *Store) ListOutput(_ context.Context, jobID uuid.UUID, stdoutOnly bool) ([]job.Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.jobOutputs[jobID]
	out := make([]job.Output, 0, len(all))
	for _, o := range all {
		if stdoutOnly && o.Type != job.OutputStdout {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *Store) NextSequence(_ context.Context, jobID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobOutputs[jobID]), nil
}

// --- VulnerabilityStore --------------------------------------------------

func (s *Store) CreateVulnerability(_ context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createVulnLocked(v)
}

func (s *Store) createVulnLocked(v vuln.Vulnerability) (vuln.Vulnerability, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	s.vulns[v.ID] = v
	return v, nil
}

func (s *Store) UpdateVulnerability(_ context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.vulns[v.ID]
	if !ok {
		return vuln.Vulnerability{}, fmt.Errorf("vulnerability %s not found", v.ID)
	}
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	s.vulns[v.ID] = v
	return v, nil
}

func (s *Store) GetVulnerabilityByFingerprint(_ context.Context, projectID uuid.UUID, fingerprint string) (vuln.Vulnerability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.vulns {
		if v.ProjectID == projectID && v.Fingerprint == fingerprint {
			return v, nil
		}
	}
	return vuln.Vulnerability{}, storage.ErrNotFound
}

func (s *Store) ListVulnerabilities(_ context.Context, projectID uuid.UUID) ([]vuln.Vulnerability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []vuln.Vulnerability
	for _, v := range s.vulns {
		if v.ProjectID == projectID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- CredentialStore -----------------------------------------------------

func (s *Store) CreateCredential(_ context.Context, c credential.Credential) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCredentialLocked(c)
}

func (s *Store) createCredentialLocked(c credential.Credential) (credential.Credential, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.creds[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCredential(_ context.Context, c credential.Credential) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.creds[c.ID]
	if !ok {
		return credential.Credential{}, fmt.Errorf("credential %s not found", c.ID)
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.creds[c.ID] = c
	return c, nil
}

func (s *Store) GetCredentialByFingerprint(_ context.Context, projectID uuid.UUID, fingerprint string) (credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creds {
		if c.ProjectID == projectID && c.Fingerprint == fingerprint {
			return c, nil
		}
	}
	return credential.Credential{}, storage.ErrNotFound
}

func (s *Store) ListCredentials(_ context.Context, projectID uuid.UUID) ([]credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []credential.Credential
	for _, c := range s.creds {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- ResultStore -----------------------------------------------------------

func (s *Store) CreateResult(_ context.Context, r result.Result) (result.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createResultLocked(r)
}

func (s *Store) createResultLocked(r result.Result) (result.Result, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()
	s.results[r.ID] = r
	return r, nil
}

func (s *Store) ListResults(_ context.Context, jobID uuid.UUID) ([]result.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []result.Result
	for _, r := range s.results {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- WorkflowStore / WorkflowRunStore --------------------------------------

func (s *Store) CreateWorkflow(_ context.Context, w workflow.Workflow) (workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	s.workflows[w.ID] = w
	return w, nil
}

func (s *Store) GetWorkflow(_ context.Context, id uuid.UUID) (workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return workflow.Workflow{}, fmt.Errorf("workflow %s not found", id)
	}
	return w, nil
}

func (s *Store) ListWorkflows(_ context.Context, projectID uuid.UUID) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Workflow
	for _, w := range s.workflows {
		if w.ProjectID != nil && *w.ProjectID == projectID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateRun(_ context.Context, r workflow.Run) (workflow.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	s.runs[r.ID] = cloneRun(r)
	return cloneRun(r), nil
}

func (s *Store) UpdateRun(_ context.Context, r workflow.Run) (workflow.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[r.ID]
	if !ok {
		return workflow.Run{}, fmt.Errorf("workflow run %s not found", r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	s.runs[r.ID] = cloneRun(r)
	return cloneRun(r), nil
}

func (s *Store) GetRun(_ context.Context, id uuid.UUID) (workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return workflow.Run{}, fmt.Errorf("workflow run %s not found", id)
	}
	return cloneRun(r), nil
}

func (s *Store) ListRuns(_ context.Context, workflowID uuid.UUID) ([]workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Run
	for _, r := range s.runs {
		if r.WorkflowID == workflowID {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- transactional view --------------------------------------------------

// tx is a storage.Tx view over the Store. Because the in-memory store has
// no real journal, rollback is implemented by snapshotting affected maps at
// BeginTx time and restoring them on Rollback.
type tx struct {
	s        *Store
	snapshot snapshot
	done     bool
}

type snapshot struct {
	assets  map[uuid.UUID]asset.Asset
	vulns   map[uuid.UUID]vuln.Vulnerability
	creds   map[uuid.UUID]credential.Credential
	results map[uuid.UUID]result.Result
}

func (s *Store) BeginTx(_ context.Context) (storage.Tx, error) {
	s.mu.Lock()
	snap := snapshot{
		assets:  cloneAssetMap(s.assets),
		vulns:   cloneVulnMap(s.vulns),
		creds:   cloneCredMap(s.creds),
		results: cloneResultMap(s.results),
	}
	return &tx{s: s, snapshot: snap}, nil
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.assets = t.snapshot.assets
	t.s.vulns = t.snapshot.vulns
	t.s.creds = t.snapshot.creds
	t.s.results = t.snapshot.results
	t.s.mu.Unlock()
	return nil
}

func (t *tx) CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	return t.s.createAssetLocked(a)
}
func (t *tx) UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	existing, ok := t.s.assets[a.ID]
	if !ok {
		return asset.Asset{}, fmt.Errorf("asset %s not found", a.ID)
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	a.Tags = append([]string(nil), a.Tags...)
	a.Metadata = copyMap(a.Metadata)
	t.s.assets[a.ID] = a
	return a, nil
}
func (t *tx) GetAsset(ctx context.Context, id uuid.UUID) (asset.Asset, error) {
	a, ok := t.s.assets[id]
	if !ok {
		return asset.Asset{}, fmt.Errorf("asset %s not found", id)
	}
	return a, nil
}
func (t *tx) GetAssetByNaturalKey(ctx context.Context, projectID uuid.UUID, typ asset.Type, value string) (asset.Asset, error) {
	for _, a := range t.s.assets {
		if a.ProjectID == projectID && a.Type == typ && a.Value == value {
			return a, nil
		}
	}
	return asset.Asset{}, storage.ErrNotFound
}
func (t *tx) ListAssets(ctx context.Context, projectID uuid.UUID) ([]asset.Asset, error) {
	return t.s.ListAssets(ctx, projectID)
}
func (t *tx) CreateRelation(ctx context.Context, r asset.Relation) error {
	return t.s.CreateRelation(ctx, r)
}

func (t *tx) CreateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	return t.s.createVulnLocked(v)
}
func (t *tx) UpdateVulnerability(ctx context.Context, v vuln.Vulnerability) (vuln.Vulnerability, error) {
	existing, ok := t.s.vulns[v.ID]
	if !ok {
		return vuln.Vulnerability{}, fmt.Errorf("vulnerability %s not found", v.ID)
	}
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	t.s.vulns[v.ID] = v
	return v, nil
}
func (t *tx) GetVulnerabilityByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (vuln.Vulnerability, error) {
	for _, v := range t.s.vulns {
		if v.ProjectID == projectID && v.Fingerprint == fingerprint {
			return v, nil
		}
	}
	return vuln.Vulnerability{}, storage.ErrNotFound
}
func (t *tx) ListVulnerabilities(ctx context.Context, projectID uuid.UUID) ([]vuln.Vulnerability, error) {
	return t.s.ListVulnerabilities(ctx, projectID)
}

func (t *tx) CreateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	return t.s.createCredentialLocked(c)
}
func (t *tx) UpdateCredential(ctx context.Context, c credential.Credential) (credential.Credential, error) {
	existing, ok := t.s.creds[c.ID]
	if !ok {
		return credential.Credential{}, fmt.Errorf("credential %s not found", c.ID)
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	t.s.creds[c.ID] = c
	return c, nil
}
func (t *tx) GetCredentialByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (credential.Credential, error) {
	for _, c := range t.s.creds {
		if c.ProjectID == projectID && c.Fingerprint == fingerprint {
			return c, nil
		}
	}
	return credential.Credential{}, storage.ErrNotFound
}
func (t *tx) ListCredentials(ctx context.Context, projectID uuid.UUID) ([]credential.Credential, error) {
	return t.s.ListCredentials(ctx, projectID)
}

func (t *tx) CreateResult(ctx context.Context, r result.Result) (result.Result, error) {
	return t.s.createResultLocked(r)
}
func (t *tx) ListResults(ctx context.Context, jobID uuid.UUID) ([]result.Result, error) {
	return t.s.ListResults(ctx, jobID)
}

func (s *Store) HealthCheck(_ context.Context) error { return nil }

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAssetMap(m map[uuid.UUID]asset.Asset) map[uuid.UUID]asset.Asset {
	out := make(map[uuid.UUID]asset.Asset, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneVulnMap(m map[uuid.UUID]vuln.Vulnerability) map[uuid.UUID]vuln.Vulnerability {
	out := make(map[uuid.UUID]vuln.Vulnerability, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneCredMap(m map[uuid.UUID]credential.Credential) map[uuid.UUID]credential.Credential {
	out := make(map[uuid.UUID]credential.Credential, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneResultMap(m map[uuid.UUID]result.Result) map[uuid.UUID]result.Result {
	out := make(map[uuid.UUID]result.Result, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRun(r workflow.Run) workflow.Run {
	r.Context = copyMap(r.Context)
	r.InputParams = copyMap(r.InputParams)
	logs := make([]workflow.LogEntry, len(r.ExecutionLog))
	copy(logs, r.ExecutionLog)
	r.ExecutionLog = logs
	return r
}
