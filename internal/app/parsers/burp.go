package parsers

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

type burpIssues struct {
	Issues []burpIssue `xml:"issue"`
}

type burpIssue struct {
	Name       string        `xml:"name"`
	Host       string        `xml:"host"`
	Severity   string        `xml:"severity"`
	Path       string        `xml:"path"`
	Request    burpBase64    `xml:"requestresponse>request"`
	Response   burpBase64    `xml:"requestresponse>response"`
	Remediation string       `xml:"remediationBackground"`
}

type burpBase64 struct {
	Base64  string `xml:"base64,attr"`
	Content string `xml:",chardata"`
}

func (b burpBase64) decoded() string {
	if b.Base64 != "true" {
		return b.Content
	}
	decoded, err := base64.StdEncoding.DecodeString(b.Content)
	if err != nil {
		return b.Content
	}
	return string(decoded)
}

// ParseBurpXML parses a Burp Suite scanner XML export.
func ParseBurpXML(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	raw = stripBOM(raw)

	var doc burpIssues
	if err := xml.Unmarshal(raw, &doc); err != nil {
		out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("burp: %v", err))
		return out
	}

	assetDedup := NewAssetDedup()

	for _, issue := range doc.Issues {
		if issue.Host == "" {
			continue
		}
		if !assetDedup.SeenAsset(string(asset.TypeURL), issue.Host) {
			out.Assets = append(out.Assets, asset.Asset{Type: asset.TypeURL, Value: issue.Host})
		}

		out.Vulns = append(out.Vulns, vuln.Vulnerability{
			Title:       issue.Name,
			Severity:    NormalizeSeverity(issue.Severity),
			RawRequest:  issue.Request.decoded(),
			RawResponse: issue.Response.decoded(),
			Remediation: issue.Remediation,
			ToolName:    "burp",
			AssetValue:  issue.Host,
			AssetType:   string(asset.TypeURL),
		})
	}

	return out
}
