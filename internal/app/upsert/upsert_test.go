package upsert

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/credential"
	"github.com/R3E-Network/orchestrator/internal/app/domain/result"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/encryption"
	"github.com/R3E-Network/orchestrator/internal/app/storage/memory"
)

func testEncryptor(t *testing.T) *encryption.Collaborator {
	t.Helper()
	enc, err := encryption.New(bytes.Repeat([]byte{0x11}, 32))
	if err != nil {
		t.Fatalf("encryption.New: %v", err)
	}
	return enc
}

func TestMergeInsertsNewAsset(t *testing.T) {
	store := memory.New()
	merger := New(store, testEncryptor(t))

	projectID := uuid.New()
	jobID := uuid.New()

	out := ParseOutput{
		Assets: []asset.Asset{{Type: asset.TypeHost, Value: "10.0.0.1", Tags: []string{"scanned"}}},
	}

	counts, err := merger.Merge(context.Background(), projectID, jobID, out)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if counts.AssetsCreated != 1 || counts.AssetsUpdated != 0 {
		t.Fatalf("got counts %#v", counts)
	}

	got, err := store.GetAssetByNaturalKey(context.Background(), projectID, asset.TypeHost, "10.0.0.1")
	if err != nil {
		t.Fatalf("GetAssetByNaturalKey: %v", err)
	}
	if got.DiscoveredBy != jobID {
		t.Fatalf("expected discovered_by to be job id, got %v", got.DiscoveredBy)
	}
}

// P3: asset uniqueness (type, value) per project — second merge updates,
// never duplicates.
// P5: asset merge — union tags, max(risk_score).
func TestMergeExistingAssetUnionsTagsAndMaxesRisk(t *testing.T) {
	store := memory.New()
	merger := New(store, testEncryptor(t))
	projectID := uuid.New()

	_, err := merger.Merge(context.Background(), projectID, uuid.New(), ParseOutput{
		Assets: []asset.Asset{{Type: asset.TypeHost, Value: "10.0.0.1", Tags: []string{"a"}, RiskScore: 10}},
	})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}

	counts, err := merger.Merge(context.Background(), projectID, uuid.New(), ParseOutput{
		Assets: []asset.Asset{{Type: asset.TypeHost, Value: "10.0.0.1", Tags: []string{"b"}, RiskScore: 40}},
	})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if counts.AssetsCreated != 0 || counts.AssetsUpdated != 1 {
		t.Fatalf("got counts %#v", counts)
	}

	got, _ := store.GetAssetByNaturalKey(context.Background(), projectID, asset.TypeHost, "10.0.0.1")
	if got.RiskScore != 40 {
		t.Fatalf("expected risk score 40, got %d", got.RiskScore)
	}
	if len(got.Tags) != 2 {
		t.Fatalf("expected tags to union to 2, got %v", got.Tags)
	}
}

// P4: fingerprint idempotence — re-merging the same vulnerability produces
// zero new rows on the second run.
func TestMergeVulnerabilityDedupsByFingerprint(t *testing.T) {
	store := memory.New()
	merger := New(store, testEncryptor(t))
	projectID := uuid.New()

	v := vuln.Vulnerability{Title: "SQL Injection", Severity: vuln.SeverityHigh, TemplateID: "sqli-1"}

	counts1, err := merger.Merge(context.Background(), projectID, uuid.New(), ParseOutput{Vulns: []vuln.Vulnerability{v}})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if counts1.VulnsCreated != 1 {
		t.Fatalf("got counts %#v", counts1)
	}

	counts2, err := merger.Merge(context.Background(), projectID, uuid.New(), ParseOutput{Vulns: []vuln.Vulnerability{v}})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if counts2.VulnsUpdated != 1 || counts2.VulnsCreated != 0 {
		t.Fatalf("got counts %#v", counts2)
	}
}

func TestMergeCredentialEncryptsPlaintext(t *testing.T) {
	store := memory.New()
	merger := New(store, testEncryptor(t))
	projectID := uuid.New()

	c := credential.Credential{
		CredentialType: credential.TypePassword,
		Username:       "admin",
		Service:        "ssh",
		Plaintext:      "hunter2",
	}

	_, err := merger.Merge(context.Background(), projectID, uuid.New(), ParseOutput{Credentials: []credential.Credential{c}})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	list, err := store.ListCredentials(context.Background(), projectID)
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(list))
	}
	if list[0].EncryptedPlaintext == "" {
		t.Fatal("expected encrypted plaintext to be set")
	}
	if list[0].Plaintext != "" {
		t.Fatal("expected transient plaintext field to be cleared")
	}
}

func TestMergeResultAlwaysInserts(t *testing.T) {
	store := memory.New()
	merger := New(store, testEncryptor(t))
	projectID := uuid.New()
	jobID := uuid.New()

	r := result.Result{ResultType: "port", ParsedData: map[string]any{"port": float64(22)}}

	counts, err := merger.Merge(context.Background(), projectID, jobID, ParseOutput{Results: []result.Result{r, r}})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if counts.ResultsCreated != 2 {
		t.Fatalf("expected both identical results to be inserted separately, got %#v", counts)
	}

	list, err := store.ListResults(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 stored results, got %d", len(list))
	}
}
