package parsers

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
)

func TestParseBurpXML(t *testing.T) {
	reqB64 := base64.StdEncoding.EncodeToString([]byte("GET /admin HTTP/1.1"))
	fixture := fmt.Sprintf(`<?xml version="1.0"?>
<issues>
  <issue>
    <name>Cross-site scripting (reflected)</name>
    <host>https://app.example.com</host>
    <severity>High</severity>
    <path>/search</path>
    <requestresponse>
      <request base64="true">%s</request>
      <response base64="false">HTTP/1.1 200 OK</response>
    </requestresponse>
    <remediationBackground>Escape user input before rendering.</remediationBackground>
  </issue>
</issues>`, reqB64)

	out := ParseBurpXML([]byte(fixture), job.Job{})

	assert.Len(t, out.Assets, 1)
	assert.Len(t, out.Vulns, 1)
	v := out.Vulns[0]
	assert.Equal(t, "high", string(v.Severity))
	assert.Equal(t, "GET /admin HTTP/1.1", v.RawRequest)
	assert.Equal(t, "HTTP/1.1 200 OK", v.RawResponse)
}
