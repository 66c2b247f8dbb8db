package parsers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
)

// cveRe matches CVE-YYYY-NNNN(+) tokens in free text.
var cveRe = regexp.MustCompile(`CVE-\d{4}-\d{4,}`)

// cvssRe matches a floating-point score, used to pair a nearby CVE token
// with its CVSS score in free-text tool output (e.g. nmap's vulners NSE
// script).
var cvssRe = regexp.MustCompile(`\b(\d{1,2}(?:\.\d)?)\b`)

// ExtractCVEs returns every distinct CVE-YYYY-NNNN token found in text, in
// order of first appearance.
func ExtractCVEs(text string) []string {
	matches := cveRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// SeverityFromScore maps a CVSS score to a Severity per the standard
// cut-off table: >=9.0 critical, >=7.0 high, >=4.0 medium, >0 low, else
// info.
func SeverityFromScore(score float64) vuln.Severity {
	switch {
	case score >= 9.0:
		return vuln.SeverityCritical
	case score >= 7.0:
		return vuln.SeverityHigh
	case score >= 4.0:
		return vuln.SeverityMedium
	case score > 0:
		return vuln.SeverityLow
	default:
		return vuln.SeverityInfo
	}
}

// NearbyCVSSScore scans text for the first plausible CVSS score token
// (0-10, one decimal place) near a CVE reference, returning 0 if none is
// found.
func NearbyCVSSScore(text string) float64 {
	m := cvssRe.FindString(text)
	if m == "" {
		return 0
	}
	score, err := strconv.ParseFloat(m, 64)
	if err != nil || score < 0 || score > 10 {
		return 0
	}
	return score
}

// severityAliases maps the many tool-specific severity spellings onto this
// system's closed Severity enum; anything unrecognized maps to info.
var severityAliases = map[string]vuln.Severity{
	"info":           vuln.SeverityInfo,
	"informational":  vuln.SeverityInfo,
	"low":            vuln.SeverityLow,
	"medium":         vuln.SeverityMedium,
	"moderate":       vuln.SeverityMedium,
	"high":           vuln.SeverityHigh,
	"critical":       vuln.SeverityCritical,
	"severe":         vuln.SeverityCritical,
}

// NormalizeSeverity maps a tool-reported severity string onto the closed
// Severity enum, defaulting to info for anything unrecognized.
func NormalizeSeverity(raw string) vuln.Severity {
	s, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return vuln.SeverityInfo
	}
	return s
}

// AssetDedup tracks (type,value) pairs already seen within one parser
// invocation, per spec's "local seen set" cross-parser responsibility.
type AssetDedup struct {
	seen map[string]bool
}

// NewAssetDedup returns an empty AssetDedup.
func NewAssetDedup() *AssetDedup {
	return &AssetDedup{seen: make(map[string]bool)}
}

// SeenAsset reports whether (typ,value) was already observed, marking it
// seen as a side effect.
func (d *AssetDedup) SeenAsset(typ, value string) bool {
	key := typ + ":" + value
	if d.seen[key] {
		return true
	}
	d.seen[key] = true
	return false
}

// VulnDedup tracks (title,templateID,host) triples already seen.
type VulnDedup struct {
	seen map[string]bool
}

func NewVulnDedup() *VulnDedup { return &VulnDedup{seen: make(map[string]bool)} }

func (d *VulnDedup) Seen(title, templateID, host string) bool {
	key := title + ":" + templateID + ":" + host
	if d.seen[key] {
		return true
	}
	d.seen[key] = true
	return false
}

// CredentialDedup tracks (username,service,port,host) quadruples already
// seen.
type CredentialDedup struct {
	seen map[string]bool
}

func NewCredentialDedup() *CredentialDedup { return &CredentialDedup{seen: make(map[string]bool)} }

func (d *CredentialDedup) Seen(username, service, port, host string) bool {
	key := username + ":" + service + ":" + port + ":" + host
	if d.seen[key] {
		return true
	}
	d.seen[key] = true
	return false
}
