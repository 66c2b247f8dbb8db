package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
)

const nessusFixture = `<?xml version="1.0"?>
<NessusClientData_v2>
  <Report>
    <ReportHost name="10.0.0.7">
      <ReportItem pluginName="SSL Certificate Expiry" severity="1">
        <cvss_base_score>3.1</cvss_base_score>
        <synopsis>The SSL certificate will expire soon.</synopsis>
        <solution>Renew the certificate.</solution>
      </ReportItem>
      <ReportItem pluginName="Unsupported Windows Version" severity="4">
        <cve>CVE-2020-0601</cve>
        <synopsis>The remote host runs an unsupported Windows version.</synopsis>
        <solution>Upgrade the operating system.</solution>
      </ReportItem>
    </ReportHost>
  </Report>
</NessusClientData_v2>`

func TestParseNessusXML(t *testing.T) {
	out := ParseNessusXML([]byte(nessusFixture), job.Job{})

	assert.Len(t, out.Assets, 1)
	assert.Len(t, out.Vulns, 2)

	var critical bool
	for _, v := range out.Vulns {
		if v.Severity == "critical" {
			critical = true
			assert.Contains(t, v.CVEIDs, "CVE-2020-0601")
		}
	}
	assert.True(t, critical)
}
