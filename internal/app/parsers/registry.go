// Package parsers is the Parser Registry: a read-mostly, process-wide
// lookup from parser identifier to implementation, plus the parsers
// themselves, one file per input-format family (jsonlines.go, jsondoc.go,
// the XML parsers nmap.go/nessus.go/burp.go, textlines.go).
package parsers

import (
	"fmt"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

// Parser converts the concatenated stdout of a completed Job into a
// ParseOutput. Parsing never mutates storage.
type Parser interface {
	Parse(raw []byte, j job.Job) upsert.ParseOutput
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(raw []byte, j job.Job) upsert.ParseOutput

func (f ParserFunc) Parse(raw []byte, j job.Job) upsert.ParseOutput {
	return f(raw, j)
}

// Registry is a read-only-after-construction map of parser id to Parser.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser under id. Intended to be called only during
// process startup, before concurrent Lookup callers appear.
func (r *Registry) Register(id string, p Parser) {
	r.parsers[id] = p
}

// Lookup returns the parser registered under id.
func (r *Registry) Lookup(id string) (Parser, bool) {
	p, ok := r.parsers[id]
	return p, ok
}

// Parse looks up id and parses raw, returning an error only if id is
// unknown (all format-level tolerances are handled inside each Parser,
// surfaced via ParseOutput.ParseErrors instead of a Go error).
func (r *Registry) Parse(id string, raw []byte, j job.Job) (upsert.ParseOutput, error) {
	p, ok := r.Lookup(id)
	if !ok {
		return upsert.ParseOutput{}, fmt.Errorf("parsers: unknown parser %q", id)
	}
	return p.Parse(raw, j), nil
}

// Default returns a Registry with every parser this repository ships
// pre-registered, keyed by the parser ids that tools.yaml entries name.
func Default() *Registry {
	r := NewRegistry()
	r.Register("nmap_xml", ParserFunc(ParseNmapXML))
	r.Register("nessus_xml", ParserFunc(ParseNessusXML))
	r.Register("burp_xml", ParserFunc(ParseBurpXML))
	r.Register("nuclei_jsonl", ParserFunc(ParseNucleiJSONL))
	r.Register("subfinder_jsonl", ParserFunc(ParseSubfinderJSONL))
	r.Register("httpx_jsonl", ParserFunc(ParseHTTPXJSONL))
	r.Register("hydra_text", ParserFunc(ParseHydraText))
	r.Register("gobuster_text", ParserFunc(ParseGobusterText))
	r.Register("amass_jsonl", ParserFunc(ParseAmassJSONL))
	r.Register("hashcat_jsonl", ParserFunc(ParseHashcatJSONL))
	r.Register("hashcat_text", ParserFunc(ParseHashcatText))
	r.Register("john_text", ParserFunc(ParseJohnText))
	r.Register("sqlmap_text", ParserFunc(ParseSqlmapText))
	r.Register("ffuf_jsondoc", ParserFunc(ParseFfufJSON))
	r.Register("nikto_jsondoc", ParserFunc(ParseNiktoJSON))
	r.Register("wpscan_jsondoc", ParserFunc(ParseWPScanJSON))
	return r
}
