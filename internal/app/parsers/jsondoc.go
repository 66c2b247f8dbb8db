package parsers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/credential"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

// trailingCommaRe matches a comma immediately followed (modulo whitespace)
// by a closing bracket or brace, the one malformation real-world tool JSON
// occasionally introduces (an aborted run leaving a dangling separator).
var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// decodeTolerantJSON trims dangling trailing commas before decoding raw
// into v, tolerating the one class of malformed whole-document JSON seen
// from interrupted tool runs.
func decodeTolerantJSON(raw []byte, v any) error {
	raw = stripBOM(raw)
	cleaned := trailingCommaRe.ReplaceAll(raw, []byte("$1"))
	return json.Unmarshal(cleaned, v)
}

// ffufDoc mirrors ffuf's `-o out.json -of json` whole-document report.
type ffufDoc struct {
	Config struct {
		URL string `json:"url"`
	} `json:"config"`
	Results []struct {
		Input            map[string]string `json:"input"`
		Status           int               `json:"status"`
		Length           int               `json:"length"`
		Words            int               `json:"words"`
		Lines            int               `json:"lines"`
		ContentType      string            `json:"content-type"`
		RedirectLocation string            `json:"redirectlocation"`
		URL              string            `json:"url"`
	} `json:"results"`
}

// ParseFfufJSON parses ffuf's whole-document JSON report (`-of json`).
func ParseFfufJSON(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput

	var doc ffufDoc
	if err := decodeTolerantJSON(raw, &doc); err != nil {
		out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("ffuf: %v", err))
		return out
	}

	assetDedup := NewAssetDedup()

	for _, item := range doc.Results {
		url := item.URL
		if url == "" {
			fuzz := item.Input["FUZZ"]
			if doc.Config.URL != "" {
				url = strings.ReplaceAll(doc.Config.URL, "FUZZ", fuzz)
			} else {
				url = fuzz
			}
		}
		if url == "" {
			continue
		}
		if assetDedup.SeenAsset(string(asset.TypeEndpoint), url) {
			continue
		}
		out.Assets = append(out.Assets, asset.Asset{
			Type:  asset.TypeEndpoint,
			Value: url,
			Metadata: map[string]any{
				"status_code": item.Status,
				"length":      item.Length,
				"words":       item.Words,
				"lines":       item.Lines,
				"content_type": item.ContentType,
			},
			Tags: []string{"ffuf"},
		})
	}

	return out
}

// niktoHost mirrors one host entry of Nikto's `-Format json` report, which
// may arrive as a bare object, an array of hosts, or an object wrapping a
// `hosts` array.
type niktoHost struct {
	IP       string         `json:"ip"`
	Host     string         `json:"host"`
	Hostname string         `json:"hostname"`
	Port     int            `json:"port"`
	Banner   string         `json:"banner"`
	Vulns    []niktoFinding `json:"vulnerabilities"`
	Items    []niktoFinding `json:"items"`
}

type niktoFinding struct {
	ID      json.Number `json:"id"`
	OSVDB   json.Number `json:"OSVDB"`
	Msg     string      `json:"msg"`
	Message string      `json:"message"`
	Method  string      `json:"method"`
	URI     string      `json:"uri"`
}

func (f niktoFinding) message() string {
	if f.Msg != "" {
		return f.Msg
	}
	return f.Message
}

func (f niktoFinding) id() string {
	if f.ID != "" {
		return f.ID.String()
	}
	return f.OSVDB.String()
}

// niktoSeverityKeywords maps a keyword found in a finding's message to a
// severity, checked from most to least severe; anything unmatched is info.
var niktoSeverityKeywords = []struct {
	severity vuln.Severity
	words    []string
}{
	{vuln.SeverityCritical, []string{"remote code execution", "command injection", "sql injection", "arbitrary file"}},
	{vuln.SeverityHigh, []string{"authentication bypass", "directory traversal", "path traversal", "file inclusion", "cross-site", "credentials", "password"}},
	{vuln.SeverityMedium, []string{"disclosure", "outdated", "deprecated", "clickjacking"}},
	{vuln.SeverityLow, []string{"allowed", "methods", "options", "trace", "etag"}},
}

func niktoSeverity(message string) vuln.Severity {
	lower := strings.ToLower(message)
	for _, bucket := range niktoSeverityKeywords {
		for _, word := range bucket.words {
			if strings.Contains(lower, word) {
				return bucket.severity
			}
		}
	}
	return vuln.SeverityInfo
}

// ParseNiktoJSON parses Nikto's `-Format json` report.
func ParseNiktoJSON(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	raw = stripBOM(raw)
	cleaned := trailingCommaRe.ReplaceAll(raw, []byte("$1"))

	var hosts []niktoHost
	trimmed := strings.TrimSpace(string(cleaned))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(cleaned, &hosts); err != nil {
			out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("nikto: %v", err))
			return out
		}
	default:
		var wrapper struct {
			Hosts []niktoHost `json:"hosts"`
		}
		if err := json.Unmarshal(cleaned, &wrapper); err == nil && len(wrapper.Hosts) > 0 {
			hosts = wrapper.Hosts
		} else {
			var single niktoHost
			if err := json.Unmarshal(cleaned, &single); err != nil {
				out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("nikto: %v", err))
				return out
			}
			hosts = []niktoHost{single}
		}
	}

	assetDedup := NewAssetDedup()

	for _, host := range hosts {
		target := host.Hostname
		if target == "" {
			target = host.Host
		}
		if target == "" {
			target = host.IP
		}
		if target == "" {
			continue
		}
		assetType := asset.TypeDomain
		if host.IP == target {
			assetType = asset.TypeHost
		}
		if !assetDedup.SeenAsset(string(assetType), target) {
			out.Assets = append(out.Assets, asset.Asset{
				Type:     assetType,
				Value:    target,
				Metadata: map[string]any{"port": host.Port, "banner": host.Banner},
				Tags:     []string{"nikto"},
			})
		}

		findings := host.Vulns
		if len(findings) == 0 {
			findings = host.Items
		}
		for _, f := range findings {
			msg := f.message()
			if msg == "" {
				continue
			}
			id := f.id()
			out.Vulns = append(out.Vulns, vuln.Vulnerability{
				Title:      "Nikto: " + msg,
				Severity:   niktoSeverity(msg),
				Evidence:   fmt.Sprintf("URI: %s\nMethod: %s", f.URI, f.Method),
				TemplateID: "nikto:" + id,
				ToolName:   "nikto",
				Tags:       []string{"nikto"},
				AssetValue: target,
				AssetType:  string(assetType),
			})
		}
	}

	return out
}

// wpscanDoc mirrors the subset of WPScan's `--format json` report this
// system cares about.
type wpscanDoc struct {
	TargetURL string `json:"target_url"`
	Version   struct {
		Number          string          `json:"number"`
		Vulnerabilities []wpscanVuln    `json:"vulnerabilities"`
	} `json:"version"`
	MainTheme      wpscanComponent            `json:"main_theme"`
	Plugins        map[string]wpscanComponent `json:"plugins"`
	Themes         map[string]wpscanComponent `json:"themes"`
	Users          map[string]wpscanUser      `json:"users"`
	PasswordAttack map[string]string          `json:"password_attack"`
}

type wpscanComponent struct {
	Slug            string       `json:"slug"`
	Vulnerabilities []wpscanVuln `json:"vulnerabilities"`
}

type wpscanVuln struct {
	Title      string              `json:"title"`
	VulnType   string              `json:"vuln_type"`
	References map[string][]string `json:"references"`
}

type wpscanUser struct {
	ID json.Number `json:"id"`
}

var wpscanTypeSeverity = map[string]vuln.Severity{
	"rce":                     vuln.SeverityCritical,
	"sqli":                    vuln.SeverityCritical,
	"sql injection":           vuln.SeverityCritical,
	"file upload":             vuln.SeverityCritical,
	"arbitrary file":          vuln.SeverityHigh,
	"xss":                     vuln.SeverityMedium,
	"csrf":                    vuln.SeverityMedium,
	"lfi":                     vuln.SeverityHigh,
	"rfi":                     vuln.SeverityCritical,
	"ssrf":                    vuln.SeverityHigh,
	"idor":                    vuln.SeverityMedium,
	"information disclosure":  vuln.SeverityLow,
}

func wpscanSeverity(title, vulnType string) vuln.Severity {
	lower := strings.ToLower(title) + " " + strings.ToLower(vulnType)
	for keyword, severity := range wpscanTypeSeverity {
		if strings.Contains(lower, keyword) {
			return severity
		}
	}
	return vuln.SeverityMedium
}

func wpscanAddVulns(out *upsert.ParseOutput, vulns []wpscanVuln, component, targetURL string) {
	for _, v := range vulns {
		if v.Title == "" {
			continue
		}
		var cveIDs []string
		for _, cve := range v.References["cve"] {
			if !strings.HasPrefix(strings.ToUpper(cve), "CVE-") {
				cve = "CVE-" + cve
			}
			cveIDs = append(cveIDs, cve)
		}
		out.Vulns = append(out.Vulns, vuln.Vulnerability{
			Title:      v.Title,
			Severity:   wpscanSeverity(v.Title, v.VulnType),
			Evidence:   fmt.Sprintf("WordPress vulnerability in %s: %s", component, v.Title),
			CVEIDs:     cveIDs,
			Tags:       []string{"wpscan", "wordpress"},
			ToolName:   "wpscan",
			AssetValue: targetURL,
			AssetType:  string(asset.TypeURL),
		})
	}
}

// ParseWPScanJSON parses WPScan's `--format json` report.
func ParseWPScanJSON(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	raw = stripBOM(raw)

	// WPScan sometimes prefixes/suffixes its JSON with banner text; slice
	// to the outermost braces before decoding.
	start := strings.IndexByte(string(raw), '{')
	end := strings.LastIndexByte(string(raw), '}')
	if start < 0 || end <= start {
		out.ParseErrors = append(out.ParseErrors, "wpscan: no JSON object found in output")
		return out
	}

	var doc wpscanDoc
	if err := decodeTolerantJSON(raw[start:end+1], &doc); err != nil {
		out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("wpscan: %v", err))
		return out
	}

	if doc.TargetURL != "" {
		out.Assets = append(out.Assets, asset.Asset{
			Type:     asset.TypeURL,
			Value:    doc.TargetURL,
			Metadata: map[string]any{"wordpress": true, "wordpress_version": doc.Version.Number},
			Tags:     []string{"wpscan", "wordpress"},
		})
	}

	wpscanAddVulns(&out, doc.Version.Vulnerabilities, "WordPress Core", doc.TargetURL)
	if doc.MainTheme.Slug != "" {
		wpscanAddVulns(&out, doc.MainTheme.Vulnerabilities, "Theme: "+doc.MainTheme.Slug, doc.TargetURL)
	}
	for name, plugin := range doc.Plugins {
		slug := plugin.Slug
		if slug == "" {
			slug = name
		}
		wpscanAddVulns(&out, plugin.Vulnerabilities, "Plugin: "+slug, doc.TargetURL)
	}
	for name, theme := range doc.Themes {
		slug := theme.Slug
		if slug == "" {
			slug = name
		}
		wpscanAddVulns(&out, theme.Vulnerabilities, "Theme: "+slug, doc.TargetURL)
	}

	for username := range doc.Users {
		out.Credentials = append(out.Credentials, credential.Credential{
			CredentialType: credential.TypeOther,
			Username:       username,
			Service:        "wordpress",
			URL:            doc.TargetURL,
			Source:         "wpscan",
			AssetValue:     doc.TargetURL,
			AssetType:      string(asset.TypeURL),
		})
	}
	for username, password := range doc.PasswordAttack {
		out.Credentials = append(out.Credentials, credential.Credential{
			CredentialType: credential.TypePassword,
			Username:       username,
			Plaintext:      password,
			Service:        "wordpress",
			URL:            doc.TargetURL,
			Source:         "wpscan-bruteforce",
			IsValid:        true,
			AssetValue:     doc.TargetURL,
			AssetType:      string(asset.TypeURL),
		})
	}

	return out
}
