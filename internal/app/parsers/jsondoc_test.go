package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
)

func TestParseFfufJSONProducesEndpointAssets(t *testing.T) {
	raw := []byte(`{
		"config": {"url": "https://example.com/FUZZ"},
		"results": [
			{"input": {"FUZZ": "admin"}, "status": 200, "length": 1024, "url": "https://example.com/admin"},
			{"input": {"FUZZ": "backup"}, "status": 403, "length": 512,}
		]
	}`)

	out := ParseFfufJSON(raw, job.Job{})

	assert.Len(t, out.Assets, 2)
	assert.Equal(t, "https://example.com/admin", out.Assets[0].Value)
	assert.Equal(t, "https://example.com/backup", out.Assets[1].Value)
}

func TestParseNiktoJSONHandlesWrappedHostsArray(t *testing.T) {
	raw := []byte(`{"hosts": [
		{"hostname": "a.example.com", "port": 80, "vulnerabilities": [
			{"id": "999999", "msg": "Cross-site scripting possible", "uri": "/search"}
		]}
	]}`)

	out := ParseNiktoJSON(raw, job.Job{})

	assert.Len(t, out.Assets, 1)
	assert.Len(t, out.Vulns, 1)
	assert.Contains(t, out.Vulns[0].Title, "Cross-site scripting")
}

func TestParseWPScanJSONExtractsVulnsAndUsers(t *testing.T) {
	raw := []byte(`{
		"target_url": "https://example.com",
		"version": {"number": "5.8", "vulnerabilities": [
			{"title": "WordPress Core SQL Injection", "vuln_type": "sqli", "references": {"cve": ["2021-1234"]}}
		]},
		"users": {"admin": {"id": 1}},
		"password_attack": {"admin": "hunter2"}
	}`)

	out := ParseWPScanJSON(raw, job.Job{})

	assert.Len(t, out.Assets, 1)
	assert.Len(t, out.Vulns, 1)
	assert.Equal(t, []string{"CVE-2021-1234"}, out.Vulns[0].CVEIDs)
	assert.Len(t, out.Credentials, 2)
}

func TestParseWPScanJSONReportsMissingJSONObject(t *testing.T) {
	out := ParseWPScanJSON([]byte("no json here"), job.Job{})

	assert.Empty(t, out.Assets)
	assert.Len(t, out.ParseErrors, 1)
}
