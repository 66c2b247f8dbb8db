package parsers

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/result"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

// eachJSONLine scans raw line by line, skipping blank lines, calling fn for
// every line that parses as valid JSON and recording a ParseOutput error
// for every line that does not.
func eachJSONLine(raw []byte, out *upsert.ParseOutput, fn func(line gjson.Result)) {
	raw = stripBOM(raw)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("line %d: invalid JSON", lineNo))
			continue
		}
		fn(gjson.ParseBytes(line))
	}
}

// ParseNucleiJSONL parses nuclei's `-jsonl` output format.
func ParseNucleiJSONL(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	vulnDedup := NewVulnDedup()
	assetDedup := NewAssetDedup()

	eachJSONLine(raw, &out, func(line gjson.Result) {
		templateID := line.Get("template-id").String()
		name := line.Get("info.name").String()
		severity := line.Get("info.severity").String()
		host := line.Get("host").String()
		matchedAt := line.Get("matched-at").String()

		if name == "" || host == "" {
			return
		}
		if vulnDedup.Seen(name, templateID, host) {
			return
		}
		if !assetDedup.SeenAsset(string(asset.TypeURL), host) {
			out.Assets = append(out.Assets, asset.Asset{Type: asset.TypeURL, Value: host})
		}

		out.Vulns = append(out.Vulns, vuln.Vulnerability{
			Title:      name,
			Severity:   NormalizeSeverity(severity),
			TemplateID: templateID,
			Evidence:   matchedAt,
			ToolName:   "nuclei",
			AssetValue: host,
			AssetType:  string(asset.TypeURL),
		})
	})

	return out
}

// ParseSubfinderJSONL parses subfinder's `-oJ` line-delimited output
// (`{"host": "...", "source": "..."}` per line).
func ParseSubfinderJSONL(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	assetDedup := NewAssetDedup()

	eachJSONLine(raw, &out, func(line gjson.Result) {
		host := line.Get("host").String()
		if host == "" {
			return
		}
		if assetDedup.SeenAsset(string(asset.TypeSubdomain), host) {
			return
		}
		out.Assets = append(out.Assets, asset.Asset{
			Type:     asset.TypeSubdomain,
			Value:    host,
			Metadata: map[string]any{"source": line.Get("source").String()},
		})
	})

	return out
}

// ParseAmassJSONL parses amass's `-json` line-delimited output
// (`{"name": "...", "domain": "...", "addresses": [{"ip": "..."}]}` per
// line).
func ParseAmassJSONL(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	assetDedup := NewAssetDedup()

	eachJSONLine(raw, &out, func(line gjson.Result) {
		name := line.Get("name").String()
		domain := line.Get("domain").String()
		if name == "" {
			return
		}

		if !assetDedup.SeenAsset(string(asset.TypeDomain), name) {
			isSubdomain := name != domain && domain != "" && strings.HasSuffix(name, "."+domain)
			tag := "root-domain"
			if isSubdomain {
				tag = "subdomain"
			}
			out.Assets = append(out.Assets, asset.Asset{
				Type:     asset.TypeDomain,
				Value:    name,
				Metadata: map[string]any{"root_domain": domain, "source": line.Get("source").String()},
				Tags:     []string{"amass", tag},
			})
		}

		for _, addr := range line.Get("addresses").Array() {
			ip := addr.Get("ip").String()
			if ip == "" {
				continue
			}
			if assetDedup.SeenAsset(string(asset.TypeHost), ip) {
				continue
			}
			out.Assets = append(out.Assets, asset.Asset{
				Type:     asset.TypeHost,
				Value:    ip,
				Metadata: map[string]any{"cidr": addr.Get("cidr").String(), "associated_domain": name},
				Tags:     []string{"amass", "discovered-ip"},
			})
		}
	})

	return out
}

// hashcatStatusLine is hashcat's `--status-json` status-update format.
// Hashcat never emits cracked hash:password pairs as JSON (those only
// appear in potfile/`--show` text output, see ParseHashcatText), so this
// parser only surfaces the recovered count as a Result for progress
// tracking.
type hashcatStatusLine struct {
	Recovered []int `json:"recovered"`
}

// ParseHashcatJSONL parses hashcat's `--status-json` line-delimited status
// updates, recording the recovered-hash count. Invalid lines that don't
// look like a hashcat status object are ignored rather than flagged, since
// `--status-json` output is commonly interleaved with plain progress text.
func ParseHashcatJSONL(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput

	scanner := bufio.NewScanner(bytes.NewReader(stripBOM(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		parsed := gjson.ParseBytes(line)
		recovered := parsed.Get("recovered")
		if !recovered.Exists() {
			continue
		}
		vals := recovered.Array()
		if len(vals) == 0 || vals[0].Int() <= 0 {
			continue
		}
		out.Results = append(out.Results, result.Result{
			ResultType: "credential_progress",
			ParsedData: map[string]any{"recovered": vals[0].Int()},
			Severity:   "info",
		})
	}

	return out
}

// ParseHTTPXJSONL parses httpx's `-json` line-delimited output.
func ParseHTTPXJSONL(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	assetDedup := NewAssetDedup()

	eachJSONLine(raw, &out, func(line gjson.Result) {
		url := line.Get("url").String()
		if url == "" {
			return
		}
		if !assetDedup.SeenAsset(string(asset.TypeURL), url) {
			out.Assets = append(out.Assets, asset.Asset{
				Type:  asset.TypeURL,
				Value: url,
				Metadata: map[string]any{
					"status_code": line.Get("status-code").Int(),
					"title":       line.Get("title").String(),
					"tech":        line.Get("tech").Value(),
				},
			})
		}
		out.Results = append(out.Results, result.Result{
			ResultType: "endpoint",
			AssetValue: url,
			AssetType:  string(asset.TypeURL),
			ParsedData: map[string]any{
				"status_code": line.Get("status-code").Int(),
				"webserver":   line.Get("webserver").String(),
			},
		})
	})

	return out
}
