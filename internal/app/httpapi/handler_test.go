package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/importapi"
	"github.com/R3E-Network/orchestrator/internal/app/parsers"
	"github.com/R3E-Network/orchestrator/internal/app/storage/memory"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

const nmapFixture = `<?xml version="1.0"?>
<nmaprun>
  <host>
    <address addr="10.0.0.5" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="22">
        <state state="open"/>
        <service name="ssh"/>
      </port>
    </ports>
  </host>
</nmaprun>`

func newTestRouter(t *testing.T) (http.Handler, uuid.UUID) {
	t.Helper()
	store := memory.New()
	proj, err := store.CreateProject(context.Background(), project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)
	importer := importapi.New(store, parsers.Default(), upsert.New(store, nil))
	return newRouter(importer, eventbus.New(nil), nil), proj.ID
}

func TestHealthzReturnsOK(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestImportEndpointMergesScanFile(t *testing.T) {
	router, projectID := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/import/"+projectID.String()+"/nmap", strings.NewReader(nmapFixture))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "assets_created")
}

func TestImportEndpointRejectsBadProjectID(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/import/not-a-uuid/nmap", strings.NewReader(nmapFixture))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportEndpointRejectsUnsupportedFormat(t *testing.T) {
	router, projectID := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/import/"+projectID.String()+"/does_not_exist", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
