package parsers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/result"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

type nmapRun struct {
	Hosts []nmapHost `xml:"host"`
}

type nmapHost struct {
	Addresses []nmapAddress `xml:"address"`
	Ports     nmapPorts     `xml:"ports"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type nmapPorts struct {
	Ports []nmapPort `xml:"port"`
}

type nmapPort struct {
	Protocol string       `xml:"protocol,attr"`
	PortID   string       `xml:"portid,attr"`
	State    nmapState    `xml:"state"`
	Service  nmapService  `xml:"service"`
	Scripts  []nmapScript `xml:"script"`
}

type nmapState struct {
	State string `xml:"state,attr"`
}

type nmapService struct {
	Name    string `xml:"name,attr"`
	Product string `xml:"product,attr"`
	Version string `xml:"version,attr"`
}

type nmapScript struct {
	ID     string `xml:"id,attr"`
	Output string `xml:"output,attr"`
}

// ParseNmapXML parses nmap's `-oX` XML report format.
func ParseNmapXML(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	raw = stripBOM(raw)

	var run nmapRun
	if err := xml.Unmarshal(raw, &run); err != nil {
		out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("nmap: %v", err))
		return out
	}

	assetDedup := NewAssetDedup()

	for _, host := range run.Hosts {
		hostAddr := ""
		for _, a := range host.Addresses {
			if a.AddrType == "ipv4" || a.AddrType == "ipv6" || hostAddr == "" {
				hostAddr = a.Addr
			}
		}
		if hostAddr == "" {
			continue
		}

		if !assetDedup.SeenAsset(string(asset.TypeHost), hostAddr) {
			out.Assets = append(out.Assets, asset.Asset{Type: asset.TypeHost, Value: hostAddr})
		}

		for _, port := range host.Ports.Ports {
			if !strings.EqualFold(port.State.State, "open") {
				continue
			}
			serviceValue := fmt.Sprintf("%s:%s/%s", hostAddr, port.PortID, port.Protocol)
			if !assetDedup.SeenAsset(string(asset.TypeService), serviceValue) {
				out.Assets = append(out.Assets, asset.Asset{
					Type:  asset.TypeService,
					Value: serviceValue,
					Metadata: map[string]any{
						"service": port.Service.Name,
						"product": port.Service.Product,
						"version": port.Service.Version,
					},
				})
			}

			out.Results = append(out.Results, result.Result{
				ResultType: "port",
				AssetValue: hostAddr,
				AssetType:  string(asset.TypeHost),
				ParsedData: map[string]any{
					"port":     port.PortID,
					"protocol": port.Protocol,
					"service":  port.Service.Name,
					"product":  port.Service.Product,
					"version":  port.Service.Version,
				},
			})

			for _, script := range port.Scripts {
				if v, ok := vulnFromNmapScript(script, serviceValue); ok {
					out.Vulns = append(out.Vulns, v)
				}
			}
		}
	}

	return out
}

func vulnFromNmapScript(script nmapScript, assetValue string) (vuln.Vulnerability, bool) {
	if !strings.Contains(strings.ToUpper(script.Output), "VULNERABLE") {
		return vuln.Vulnerability{}, false
	}

	cves := ExtractCVEs(script.Output)
	score := NearbyCVSSScore(script.Output)
	severity := SeverityFromScore(score)
	if severity == vuln.SeverityInfo {
		// Nmap vuln scripts flag real findings even without an adjacent
		// CVSS score; default such findings to high rather than info.
		severity = vuln.SeverityHigh
	}

	var cvssScore *float64
	if score > 0 {
		cvssScore = &score
	}

	return vuln.Vulnerability{
		Title:      script.ID,
		Severity:   severity,
		CVSSScore:  cvssScore,
		CVEIDs:     cves,
		Evidence:   script.Output,
		ToolName:   "nmap",
		AssetValue: assetValue,
		AssetType:  string(asset.TypeService),
	}, true
}

// stripBOM removes a leading UTF-8 byte order mark, if present.
func stripBOM(raw []byte) []byte {
	return bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
}
