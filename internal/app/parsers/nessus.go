package parsers

import (
	"encoding/xml"
	"fmt"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

type nessusReport struct {
	Hosts []nessusHost `xml:"Report>ReportHost"`
}

type nessusHost struct {
	Name  string        `xml:"name,attr"`
	Items []nessusItem  `xml:"ReportItem"`
}

type nessusItem struct {
	PluginName     string `xml:"pluginName,attr"`
	Severity       string `xml:"severity,attr"`
	CVSSBaseScore  string `xml:"cvss_base_score"`
	CVE            []string `xml:"cve"`
	Synopsis       string `xml:"synopsis"`
	Solution       string `xml:"solution"`
}

var nessusSeverityByCode = map[string]vuln.Severity{
	"0": vuln.SeverityInfo,
	"1": vuln.SeverityLow,
	"2": vuln.SeverityMedium,
	"3": vuln.SeverityHigh,
	"4": vuln.SeverityCritical,
}

// ParseNessusXML parses a Nessus `.nessus` XML export.
func ParseNessusXML(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	raw = stripBOM(raw)

	var report nessusReport
	if err := xml.Unmarshal(raw, &report); err != nil {
		out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("nessus: %v", err))
		return out
	}

	assetDedup := NewAssetDedup()

	for _, host := range report.Hosts {
		if host.Name == "" {
			continue
		}
		if !assetDedup.SeenAsset(string(asset.TypeHost), host.Name) {
			out.Assets = append(out.Assets, asset.Asset{Type: asset.TypeHost, Value: host.Name})
		}

		for _, item := range host.Items {
			if item.PluginName == "" {
				continue
			}
			severity, ok := nessusSeverityByCode[item.Severity]
			if !ok {
				severity = vuln.SeverityInfo
			}
			out.Vulns = append(out.Vulns, vuln.Vulnerability{
				Title:       item.PluginName,
				Severity:    severity,
				CVEIDs:      item.CVE,
				Evidence:    item.Synopsis,
				Remediation: item.Solution,
				ToolName:    "nessus",
				AssetValue:  host.Name,
				AssetType:   string(asset.TypeHost),
			})
		}
	}

	return out
}
