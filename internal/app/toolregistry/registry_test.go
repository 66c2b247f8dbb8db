package toolregistry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempTools(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write tools.yaml: %v", err)
	}
	return path
}

func TestLoadMissingFileIsEmptyRegistry(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := reg.Lookup("nmap"); ok {
		t.Fatal("expected empty registry")
	}
}

func TestLoadAndLookup(t *testing.T) {
	path := writeTempTools(t, `
tools:
  - name: nmap
    command_template: "nmap -p {ports} {target}"
    output_parser: nmap_xml
    parameters:
      - name: target
        type: string
        required: true
      - name: ports
        type: string
        default: "1-1000"
        required: false
`)
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def, ok := reg.Lookup("nmap")
	if !ok {
		t.Fatal("expected nmap to be registered")
	}
	if def.OutputParser != "nmap_xml" {
		t.Fatalf("got parser %q", def.OutputParser)
	}

	cmd, err := def.Render(map[string]any{"target": "10.0.0.1"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if cmd != "nmap -p 1-1000 10.0.0.1" {
		t.Fatalf("got %q", cmd)
	}
}

func TestRenderMissingRequiredFails(t *testing.T) {
	path := writeTempTools(t, `
tools:
  - name: nuclei
    command_template: "nuclei -u {target}"
    parameters:
      - name: target
        type: string
        required: true
`)
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def, _ := reg.Lookup("nuclei")
	if _, err := def.Render(map[string]any{}); err == nil {
		t.Fatal("expected error for missing required parameter")
	}
}

func TestRenderOptionalParameterWithoutDefaultSubstitutesEmpty(t *testing.T) {
	path := writeTempTools(t, `
tools:
  - name: ffuf
    command_template: "ffuf -u {target} {extra}"
    parameters:
      - name: target
        type: string
        required: true
      - name: extra
        type: string
        required: false
`)
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def, _ := reg.Lookup("ffuf")
	cmd, err := def.Render(map[string]any{"target": "https://example.com"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if cmd != "ffuf -u https://example.com " {
		t.Fatalf("got %q", cmd)
	}
}
