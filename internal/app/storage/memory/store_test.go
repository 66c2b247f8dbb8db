package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
)

func TestStoreCreateProjectAssetAndJob(t *testing.T) {
	store := New()

	proj, err := store.CreateProject(context.Background(), project.Project{Name: "demo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	a, err := store.CreateAsset(context.Background(), asset.Asset{ProjectID: proj.ID, Type: asset.TypeHost, Value: "10.0.0.1"})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if a.ProjectID != proj.ID {
		t.Fatalf("expected asset to retain project id")
	}

	j, err := store.CreateJob(context.Background(), job.Job{ProjectID: proj.ID, ToolName: "nmap"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	list, err := store.ListJobs(context.Background(), proj.ID)
	if err != nil || len(list) != 1 || list[0].ID != j.ID {
		t.Fatalf("expected job to be listed, got %#v err=%v", list, err)
	}
}

func TestStoreGetAssetByNaturalKeyDedupesOnReinsert(t *testing.T) {
	store := New()
	proj, _ := store.CreateProject(context.Background(), project.Project{Name: "demo"})

	first, err := store.CreateAsset(context.Background(), asset.Asset{ProjectID: proj.ID, Type: asset.TypeHost, Value: "10.0.0.1"})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}

	got, err := store.GetAssetByNaturalKey(context.Background(), proj.ID, asset.TypeHost, "10.0.0.1")
	if err != nil {
		t.Fatalf("get by natural key: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected to find the asset just created")
	}
}

func TestStoreGetVulnerabilityByFingerprintReturnsErrNotFound(t *testing.T) {
	store := New()
	_, err := store.GetVulnerabilityByFingerprint(context.Background(), uuid.New(), "nope")
	if err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreCreateVulnerabilityRoundTrips(t *testing.T) {
	store := New()
	proj, _ := store.CreateProject(context.Background(), project.Project{Name: "demo"})

	v, err := store.CreateVulnerability(context.Background(), vuln.Vulnerability{
		ProjectID:   proj.ID,
		Title:       "SQLi",
		Severity:    vuln.SeverityHigh,
		Fingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("create vulnerability: %v", err)
	}

	got, err := store.GetVulnerabilityByFingerprint(context.Background(), proj.ID, "fp-1")
	if err != nil || got.ID != v.ID {
		t.Fatalf("expected to find vulnerability by fingerprint, got %#v err=%v", got, err)
	}
}

func TestStoreBeginTxCommitPersistsChanges(t *testing.T) {
	store := New()
	proj, _ := store.CreateProject(context.Background(), project.Project{Name: "demo"})

	txn, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if _, err := txn.CreateAsset(context.Background(), asset.Asset{ProjectID: proj.ID, Type: asset.TypeHost, Value: "10.0.0.2"}); err != nil {
		t.Fatalf("create asset in tx: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	assets, err := store.ListAssets(context.Background(), proj.ID)
	if err != nil || len(assets) != 1 {
		t.Fatalf("expected committed asset to be visible, got %#v err=%v", assets, err)
	}
}
