// Package upsert is the Upsert Layer: fingerprint-based idempotent merge of
// a parser's ParseOutput into the Persistence Gateway, all inside one
// transaction.
package upsert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/credential"
	"github.com/R3E-Network/orchestrator/internal/app/domain/result"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/encryption"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
)

// ParseOutput is the uniform shape every parser produces: the parsed
// entities for one job's output, plus non-fatal parse errors.
type ParseOutput struct {
	Assets        []asset.Asset
	Vulns         []vuln.Vulnerability
	Credentials   []credential.Credential
	Results       []result.Result
	ParseErrors   []string
}

// Counts reports how many rows of each kind were created vs. updated by a
// merge, for event notification and the Import API response.
type Counts struct {
	AssetsCreated       int
	AssetsUpdated       int
	VulnsCreated        int
	VulnsUpdated        int
	CredentialsCreated  int
	CredentialsUpdated  int
	ResultsCreated      int
}

// Merger applies a ParseOutput to the Persistence Gateway.
type Merger struct {
	gateway    storage.Gateway
	encryptor  *encryption.Collaborator
}

// New returns a Merger. encryptor may be nil only if no Credential in any
// ParseOutput carries Plaintext (tests with no secrets).
func New(gateway storage.Gateway, encryptor *encryption.Collaborator) *Merger {
	return &Merger{gateway: gateway, encryptor: encryptor}
}

// Merge applies out to storage for the given job, inside one transaction,
// implementing spec's five-step algorithm: assets first (building an
// asset-value cache), then vulnerabilities, then credentials, then results
// (always inserted, never merged).
func (m *Merger) Merge(ctx context.Context, projectID, jobID uuid.UUID, out ParseOutput) (Counts, error) {
	tx, err := m.gateway.BeginTx(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("upsert: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var counts Counts
	assetCache := make(map[string]asset.Asset) // keyed by asset value

	for _, a := range out.Assets {
		merged, created, err := mergeAsset(ctx, tx, projectID, jobID, a)
		if err != nil {
			return Counts{}, fmt.Errorf("upsert: merge asset %q: %w", a.Value, err)
		}
		assetCache[merged.Value] = merged
		if created {
			counts.AssetsCreated++
		} else {
			counts.AssetsUpdated++
		}
	}

	for _, v := range out.Vulns {
		linkAssetID(ctx, tx, projectID, assetCache, v.AssetValue, v.AssetType, &v.AssetID)
		created, err := mergeVuln(ctx, tx, projectID, jobID, v)
		if err != nil {
			return Counts{}, fmt.Errorf("upsert: merge vulnerability %q: %w", v.Title, err)
		}
		if created {
			counts.VulnsCreated++
		} else {
			counts.VulnsUpdated++
		}
	}

	for _, c := range out.Credentials {
		linkAssetID(ctx, tx, projectID, assetCache, c.AssetValue, c.AssetType, &c.AssetID)
		created, err := mergeCredential(ctx, tx, projectID, jobID, c, m.encryptor)
		if err != nil {
			return Counts{}, fmt.Errorf("upsert: merge credential %q: %w", c.Username, err)
		}
		if created {
			counts.CredentialsCreated++
		} else {
			counts.CredentialsUpdated++
		}
	}

	for _, r := range out.Results {
		linkAssetID(ctx, tx, projectID, assetCache, r.AssetValue, r.AssetType, &r.AssetID)
		r.ProjectID = projectID
		r.JobID = jobID
		r.Fingerprint = resultFingerprint(r)
		r.CreatedAt = time.Now().UTC()
		if _, err := tx.CreateResult(ctx, r); err != nil {
			return Counts{}, fmt.Errorf("upsert: insert result: %w", err)
		}
		counts.ResultsCreated++
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("upsert: commit: %w", err)
	}
	committed = true

	return counts, nil
}

func mergeAsset(ctx context.Context, tx storage.Tx, projectID, jobID uuid.UUID, a asset.Asset) (asset.Asset, bool, error) {
	existing, err := tx.GetAssetByNaturalKey(ctx, projectID, a.Type, a.Value)
	if err == storage.ErrNotFound {
		now := time.Now().UTC()
		a.ID = uuid.New()
		a.ProjectID = projectID
		a.DiscoveredBy = jobID
		a.Status = asset.StatusActive
		a.CreatedAt = now
		a.UpdatedAt = now
		created, err := tx.CreateAsset(ctx, a)
		return created, true, err
	}
	if err != nil {
		return asset.Asset{}, false, err
	}

	existing.Tags = unionStrings(existing.Tags, a.Tags)
	existing.Metadata = mergeMetadata(existing.Metadata, a.Metadata)
	if a.RiskScore > existing.RiskScore {
		existing.RiskScore = a.RiskScore
	}
	existing.UpdatedAt = time.Now().UTC()

	updated, err := tx.UpdateAsset(ctx, existing)
	return updated, false, err
}

// linkAssetID resolves an asset_value/asset_type hint to an asset id, first
// via the in-batch cache, then via a DB lookup, leaving target untouched if
// no hint or no match exists.
func linkAssetID(ctx context.Context, tx storage.Tx, projectID uuid.UUID, cache map[string]asset.Asset, value, typ string, target **uuid.UUID) {
	if value == "" {
		return
	}
	if cached, ok := cache[value]; ok {
		id := cached.ID
		*target = &id
		return
	}
	found, err := tx.GetAssetByNaturalKey(ctx, projectID, asset.Type(typ), value)
	if err != nil {
		return
	}
	cache[value] = found
	id := found.ID
	*target = &id
}

func mergeVuln(ctx context.Context, tx storage.Tx, projectID, jobID uuid.UUID, v vuln.Vulnerability) (bool, error) {
	v.ProjectID = projectID
	v.Fingerprint = vulnFingerprint(v)

	existing, err := tx.GetVulnerabilityByFingerprint(ctx, projectID, v.Fingerprint)
	if err == storage.ErrNotFound {
		now := time.Now().UTC()
		v.ID = uuid.New()
		v.DiscoveredBy = jobID
		if v.Status == "" {
			v.Status = vuln.StatusOpen
		}
		v.CreatedAt = now
		v.UpdatedAt = now
		_, err := tx.CreateVulnerability(ctx, v)
		return true, err
	}
	if err != nil {
		return false, err
	}

	existing.References = unionStrings(existing.References, v.References)
	existing.CVEIDs = unionStrings(existing.CVEIDs, v.CVEIDs)
	existing.CWEIDs = unionStrings(existing.CWEIDs, v.CWEIDs)
	existing.Tags = unionStrings(existing.Tags, v.Tags)
	existing.Metadata = mergeMetadata(existing.Metadata, v.Metadata)
	if v.Evidence != "" {
		existing.Evidence = v.Evidence
	}
	if v.RawRequest != "" {
		existing.RawRequest = v.RawRequest
	}
	if v.RawResponse != "" {
		existing.RawResponse = v.RawResponse
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = tx.UpdateVulnerability(ctx, existing)
	return false, err
}

func mergeCredential(ctx context.Context, tx storage.Tx, projectID, jobID uuid.UUID, c credential.Credential, enc *encryption.Collaborator) (bool, error) {
	c.ProjectID = projectID
	c.Fingerprint = credentialFingerprint(c)

	existing, err := tx.GetCredentialByFingerprint(ctx, projectID, c.Fingerprint)
	if err == storage.ErrNotFound {
		now := time.Now().UTC()
		c.ID = uuid.New()
		c.DiscoveredBy = jobID
		c.CreatedAt = now
		c.UpdatedAt = now
		if err := sealCredentialSecret(&c, enc); err != nil {
			return false, err
		}
		_, err := tx.CreateCredential(ctx, c)
		return true, err
	}
	if err != nil {
		return false, err
	}

	if c.Plaintext != "" {
		existing.Plaintext = c.Plaintext
		if err := sealCredentialSecret(&existing, enc); err != nil {
			return false, err
		}
	}
	if c.RawHash != "" {
		existing.RawHash = c.RawHash
		existing.HashType = c.HashType
	}
	existing.IsValid = true
	existing.Metadata = mergeMetadata(existing.Metadata, c.Metadata)
	existing.UpdatedAt = time.Now().UTC()

	_, err = tx.UpdateCredential(ctx, existing)
	return false, err
}

func sealCredentialSecret(c *credential.Credential, enc *encryption.Collaborator) error {
	if c.Plaintext == "" {
		return nil
	}
	if enc == nil {
		return fmt.Errorf("upsert: credential carries plaintext but no encryption collaborator is configured")
	}
	sealed, err := enc.Seal(c.ID[:], "credential.plaintext", []byte(c.Plaintext))
	if err != nil {
		return fmt.Errorf("seal credential plaintext: %w", err)
	}
	c.EncryptedPlaintext = sealed
	c.Plaintext = ""
	return nil
}

func unionStrings(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range incoming {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func mergeMetadata(existing, incoming map[string]any) map[string]any {
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range incoming {
		existing[k] = v
	}
	return existing
}

func fingerprint(fields ...string) string {
	sum := sha256.Sum256([]byte(joinFields(fields)))
	return hex.EncodeToString(sum[:])[:32]
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ":"
		}
		out += f
	}
	return out
}

func assetIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func vulnFingerprint(v vuln.Vulnerability) string {
	return fingerprint(v.ProjectID.String(), v.Title, v.TemplateID, assetIDString(v.AssetID))
}

func credentialFingerprint(c credential.Credential) string {
	port := ""
	if c.Port != 0 {
		port = fmt.Sprintf("%d", c.Port)
	}
	return fingerprint(c.ProjectID.String(), c.Username, c.Service, port, assetIDString(c.AssetID))
}

func resultFingerprint(r result.Result) string {
	return fingerprint(r.JobID.String(), r.ResultType, canonicalJSON(r.ParsedData))
}

// canonicalJSON serializes a map[string]any with sorted keys, so two
// semantically-equal maps always fingerprint identically regardless of
// original key order.
func canonicalJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 64)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		keyJSON, _ := json.Marshal(k)
		valJSON, _ := json.Marshal(m[k])
		ordered = append(ordered, keyJSON...)
		ordered = append(ordered, ':')
		ordered = append(ordered, valJSON...)
	}
	ordered = append(ordered, '}')
	return string(ordered)
}
