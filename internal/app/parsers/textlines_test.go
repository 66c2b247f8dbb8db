package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
)

func TestParseHydraTextProducesTwoCredentials(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"[22][ssh] host: 10.0.0.5   login: admin   password: password123",
		"[22][ssh] host: 10.0.0.5   login: root   password: toor",
	}, "\n"))

	out := ParseHydraText(raw, job.Job{})

	assert.Len(t, out.Credentials, 2)
	first := out.Credentials[0]
	assert.Equal(t, "admin", first.Username)
	assert.Equal(t, "password123", first.Plaintext)
	assert.Equal(t, "ssh", first.Service)
	assert.Equal(t, 22, first.Port)
}

func TestParseHydraTextRecordsUnrecognizedLines(t *testing.T) {
	raw := []byte("some banner line that is not a hydra result\n")

	out := ParseHydraText(raw, job.Job{})

	assert.Empty(t, out.Credentials)
	assert.Len(t, out.ParseErrors, 1)
}

func TestParseGobusterText(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"/admin (Status: 200) [Size: 1024]",
		"/backup (Status: 403) [Size: 512]",
	}, "\n"))

	out := ParseGobusterText(raw, job.Job{})

	assert.Len(t, out.Assets, 2)
}

func TestParseHashcatTextPotfileFormat(t *testing.T) {
	raw := []byte("5f4dcc3b5aa765d61d8327deb882cf99:password\n")

	out := ParseHashcatText(raw, job.Job{})

	assert.Len(t, out.Credentials, 1)
	assert.Equal(t, "password", out.Credentials[0].Plaintext)
	assert.Equal(t, "MD5/NTLM", out.Credentials[0].HashType)
}

func TestParseHashcatTextShowFormatWithUsername(t *testing.T) {
	raw := []byte("admin:5f4dcc3b5aa765d61d8327deb882cf99:password\n")

	out := ParseHashcatText(raw, job.Job{})

	assert.Len(t, out.Credentials, 1)
	assert.Equal(t, "admin", out.Credentials[0].Username)
	assert.Equal(t, "password", out.Credentials[0].Plaintext)
}

func TestParseHashcatJSONLRecordsRecoveredCount(t *testing.T) {
	raw := []byte(`{"session":"job","status":3,"recovered":[2,5]}` + "\n")

	out := ParseHashcatJSONL(raw, job.Job{})

	assert.Len(t, out.Results, 1)
	assert.Equal(t, int64(2), out.Results[0].ParsedData["recovered"])
}

func TestParseJohnTextDefaultFormat(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"Loaded 1 password hash (Raw-MD5 [MD5 256/256 AVX2 8x3])",
		"admin:password123",
		"1g 0:00:00:01 DONE",
	}, "\n"))

	out := ParseJohnText(raw, job.Job{})

	assert.Len(t, out.Credentials, 1)
	assert.Equal(t, "admin", out.Credentials[0].Username)
	assert.Equal(t, "password123", out.Credentials[0].Plaintext)
	assert.Equal(t, "raw-md5", out.Credentials[0].HashType)
}

func TestParseSqlmapTextFindsInjectionAndDBMS(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"Parameter: id (GET)",
		"Type: boolean-based blind",
		"[INFO] the back-end DBMS is MySQL",
	}, "\n"))

	out := ParseSqlmapText(raw, job.Job{Parameters: map[string]any{"target": "https://example.com/?id=1"}})

	assert.Len(t, out.Vulns, 1)
	assert.Equal(t, "https://example.com/?id=1", out.Vulns[0].AssetValue)
	assert.Len(t, out.Assets, 1)
	assert.Contains(t, out.Assets[0].Value, "MySQL")
}
