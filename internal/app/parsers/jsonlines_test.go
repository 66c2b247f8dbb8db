package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
)

func TestParseNucleiJSONLProducesTwoVulns(t *testing.T) {
	raw := []byte(strings.Join([]string{
		`{"template-id":"CVE-2021-44228","info":{"name":"Apache log4j RCE","severity":"critical"},"host":"https://a.example.com","matched-at":"https://a.example.com/log"}`,
		`{"template-id":"exposed-panel","info":{"name":"Exposed Admin Panel","severity":"medium"},"host":"https://b.example.com","matched-at":"https://b.example.com/admin"}`,
	}, "\n"))

	out := ParseNucleiJSONL(raw, job.Job{})

	assert.Len(t, out.Vulns, 2)
	assert.Empty(t, out.ParseErrors)

	found := false
	for _, v := range out.Vulns {
		if strings.Contains(strings.ToLower(v.Title), "log4j") {
			found = true
		}
	}
	assert.True(t, found, "expected a vuln with a log4j title")
}

// P8: parser tolerance — one invalid line among valid JSON lines still
// yields output for every valid line plus a non-empty error list.
func TestParseNucleiJSONLSkipsInvalidLines(t *testing.T) {
	raw := []byte(strings.Join([]string{
		`{"template-id":"t1","info":{"name":"Finding One","severity":"low"},"host":"https://a.example.com"}`,
		`not json at all`,
		`{"template-id":"t2","info":{"name":"Finding Two","severity":"low"},"host":"https://b.example.com"}`,
	}, "\n"))

	out := ParseNucleiJSONL(raw, job.Job{})

	assert.Len(t, out.Vulns, 2)
	assert.Len(t, out.ParseErrors, 1)
}

func TestParseSubfinderJSONL(t *testing.T) {
	raw := []byte(strings.Join([]string{
		`{"host":"dev.example.com","source":"crtsh"}`,
		`{"host":"api.example.com","source":"dns"}`,
	}, "\n"))

	out := ParseSubfinderJSONL(raw, job.Job{})

	assert.Len(t, out.Assets, 2)
}

func TestParseHTTPXJSONL(t *testing.T) {
	raw := []byte(`{"url":"https://a.example.com","status-code":200,"title":"Home","webserver":"nginx"}`)

	out := ParseHTTPXJSONL(raw, job.Job{})

	assert.Len(t, out.Assets, 1)
	assert.Len(t, out.Results, 1)
	assert.Equal(t, "endpoint", out.Results[0].ResultType)
}

func TestParseAmassJSONLProducesDomainAndHostAssets(t *testing.T) {
	raw := []byte(`{"name":"dev.example.com","domain":"example.com","source":"crtsh","addresses":[{"ip":"10.0.0.1","cidr":"10.0.0.0/24"}]}`)

	out := ParseAmassJSONL(raw, job.Job{})

	assert.Len(t, out.Assets, 2)
	assert.Equal(t, "dev.example.com", out.Assets[0].Value)
	assert.Equal(t, "10.0.0.1", out.Assets[1].Value)
}
