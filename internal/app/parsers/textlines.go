package parsers

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/credential"
	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/vuln"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
)

// eachTextLine scans raw line by line, skipping blank lines, calling fn for
// every non-blank line.
func eachTextLine(raw []byte, fn func(line string)) {
	raw = stripBOM(raw)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
}

// hydraLineRe matches hydra's "[port][service] host: X   login: Y   password: Z" lines.
var hydraLineRe = regexp.MustCompile(`^\[(\d+)\]\[([^\]]+)\]\s+host:\s+(\S+)\s+login:\s+(\S+)\s+password:\s+(\S+)`)

// ParseHydraText parses hydra's default stdout line format.
func ParseHydraText(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	assetDedup := NewAssetDedup()
	credDedup := NewCredentialDedup()

	eachTextLine(raw, func(line string) {
		m := hydraLineRe.FindStringSubmatch(line)
		if m == nil {
			out.ParseErrors = append(out.ParseErrors, "hydra: unrecognized line: "+line)
			return
		}
		port, service, host, username, password := m[1], m[2], m[3], m[4], m[5]

		if credDedup.Seen(username, service, port, host) {
			return
		}
		if !assetDedup.SeenAsset(string(asset.TypeHost), host) {
			out.Assets = append(out.Assets, asset.Asset{Type: asset.TypeHost, Value: host})
		}

		portNum, _ := strconv.Atoi(port)
		out.Credentials = append(out.Credentials, credential.Credential{
			CredentialType: credential.TypePassword,
			Username:       username,
			Plaintext:      password,
			Service:        service,
			Port:           portNum,
			Source:         "hydra",
			IsValid:        true,
			AssetValue:     host,
			AssetType:      string(asset.TypeHost),
		})
	})

	return out
}

// hashcatCredRe matches hashcat potfile/`--show` lines: `hash:password`,
// optionally prefixed with `username:` when `--username` was passed.
var hashcatCredRe = regexp.MustCompile(`^([^:\s]+):(.+)$`)

// hashcatSkipWords flags hashcat status/progress lines that are not
// cracked-hash results, so they don't get reported as unrecognized lines.
var hashcatSkipWords = []string{"session", "status", "speed", "progress", "time", "recovered", "hashtype", "candidates", "hardware"}

// hashcatHashLenTypes maps a raw all-hex hash's byte length to a guessed
// algorithm name, the same cheap heuristic the upstream tool's --show
// output leaves for a human to resolve.
var hashcatHashLenTypes = map[int]string{32: "MD5/NTLM", 40: "SHA1", 64: "SHA256", 128: "SHA512"}

var hexOnlyRe = regexp.MustCompile(`^[a-fA-F0-9]+$`)

func looksLikeHash(s string) bool {
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "$") {
		return true
	}
	if hexOnlyRe.MatchString(s) {
		_, ok := hashcatHashLenTypes[len(s)]
		return ok
	}
	return false
}

func detectHashType(hash string) string {
	switch {
	case strings.HasPrefix(hash, "$1$"):
		return "MD5crypt"
	case strings.HasPrefix(hash, "$2"):
		return "bcrypt"
	case strings.HasPrefix(hash, "$5$"):
		return "SHA256crypt"
	case strings.HasPrefix(hash, "$6$"):
		return "SHA512crypt"
	case hexOnlyRe.MatchString(hash):
		return hashcatHashLenTypes[len(hash)]
	default:
		return ""
	}
}

// ParseHashcatText parses hashcat's potfile (`hash:password`) and `--show`
// (`username:hash:password`) text output formats. `--status-json` progress
// lines are handled separately by ParseHashcatJSONL.
func ParseHashcatText(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	credDedup := NewCredentialDedup()

	eachTextLine(raw, func(line string) {
		lower := strings.ToLower(line)
		for _, skip := range hashcatSkipWords {
			if strings.Contains(lower, skip) {
				return
			}
		}

		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			return
		}

		var username, hashValue, password string
		switch {
		case len(parts) == 2:
			hashValue, password = parts[0], parts[1]
		default:
			// username:hash:password, tolerating a colon-bearing hash by
			// always treating the last field as the password and the
			// first as a username when it doesn't look like a hash.
			if !looksLikeHash(parts[0]) {
				username = parts[0]
				password = parts[len(parts)-1]
				hashValue = strings.Join(parts[1:len(parts)-1], ":")
			} else {
				password = parts[len(parts)-1]
				hashValue = strings.Join(parts[:len(parts)-1], ":")
			}
		}

		if password == "" || looksLikeHash(password) {
			return
		}
		if credDedup.Seen(username, "hashcat", hashValue, password) {
			return
		}

		out.Credentials = append(out.Credentials, credential.Credential{
			CredentialType: credential.TypeHash,
			Username:       username,
			Plaintext:      password,
			RawHash:        hashValue,
			HashType:       detectHashType(hashValue),
			Source:         "hashcat",
		})
	})

	return out
}

// johnHashTypeRe extracts the hash format name from John's startup banner,
// e.g. "Loaded 5 password hashes with 5 different salts (bcrypt [...])".
var johnHashTypeRe = regexp.MustCompile(`(?i)Loaded \d+ password hash(?:es)?(?: with \d+ different salts)? \(([^)\[]+)`)

// johnShowRe matches John's `--show` format: username:password:uid:gid:...
var johnShowRe = regexp.MustCompile(`^([^:]+):([^:]+):\d*:\d*:`)

// johnCrackedRe matches John's default cracked-line format: identifier:password.
var johnCrackedRe = regexp.MustCompile(`^([^\s:]+):(.+)$`)

// johnSkipRe matches John's status/banner lines that are never cracked
// credentials.
var johnSkipRe = regexp.MustCompile(`(?i)^(Using default input encoding|Loaded \d+ password|Will run \d+ OpenMP|Press 'q' or Ctrl-C|Session |\d+g \d+:|Warning:|Note:|Proceeding with|Cost \d+ |\d+ password hash)`)

func johnDetectHashType(output string) string {
	m := johnHashTypeRe.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(strings.ToLower(m[1]))
}

// ParseJohnText parses John the Ripper's default stdout and `--show`
// output formats.
func ParseJohnText(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	credDedup := NewCredentialDedup()
	hashType := johnDetectHashType(string(stripBOM(raw)))

	eachTextLine(raw, func(line string) {
		if johnSkipRe.MatchString(line) {
			return
		}

		var identifier, password string
		if m := johnShowRe.FindStringSubmatch(line); m != nil {
			identifier, password = m[1], m[2]
		} else if m := johnCrackedRe.FindStringSubmatch(line); m != nil {
			identifier, password = m[1], m[2]
			if strings.HasPrefix(password, "$") || len(password) > 100 {
				return
			}
		} else {
			return
		}

		if credDedup.Seen(identifier, "john", hashType, password) {
			return
		}

		isHashIdentifier := strings.HasPrefix(identifier, "$") || looksLikeHash(identifier)
		cred := credential.Credential{
			CredentialType: credential.TypeHash,
			Plaintext:      password,
			HashType:       hashType,
			Source:         "john",
		}
		if isHashIdentifier {
			cred.RawHash = identifier
		} else {
			cred.Username = identifier
		}
		out.Credentials = append(out.Credentials, cred)
	})

	return out
}

// sqlmapParamRe matches sqlmap's "Parameter: id (GET)" injection-point header.
var sqlmapParamRe = regexp.MustCompile(`(?i)Parameter:\s*(\S+)\s*\((\w+)\)`)

// sqlmapTypeRe matches sqlmap's "Type: boolean-based blind" line.
var sqlmapTypeRe = regexp.MustCompile(`(?i)Type:\s*(.+)`)

// sqlmapDBMSRe matches sqlmap's back-end DBMS detection line.
var sqlmapDBMSRe = regexp.MustCompile(`(?i)\[INFO\]\s*the back-end DBMS is\s+(\S+)`)

func sqlmapSeverity(injType string) vuln.Severity {
	lower := strings.ToLower(injType)
	if strings.Contains(lower, "stacked") || strings.Contains(lower, "union") {
		return vuln.SeverityCritical
	}
	return vuln.SeverityHigh
}

// ParseSqlmapText parses sqlmap's default stdout report for injection
// points and back-end DBMS detection. Credential extraction from `--dump`
// ASCII table output is out of scope: sqlmap's dump format is free-form
// per database driver and this system favors targeted scans over dumping.
func ParseSqlmapText(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	target := "unknown"
	if v, ok := j.Parameters["target"]; ok {
		if s, ok := v.(string); ok && s != "" {
			target = s
		}
	}

	seen := map[string]bool{}
	var currentParam, currentMethod string

	eachTextLine(raw, func(line string) {
		if m := sqlmapParamRe.FindStringSubmatch(line); m != nil {
			currentParam, currentMethod = m[1], m[2]
			return
		}
		m := sqlmapTypeRe.FindStringSubmatch(line)
		if m == nil || currentParam == "" {
			return
		}
		injType := strings.TrimSpace(m[1])
		key := currentParam + ":" + currentMethod + ":" + injType
		if seen[key] {
			return
		}
		seen[key] = true

		out.Vulns = append(out.Vulns, vuln.Vulnerability{
			Title:       fmt.Sprintf("SQL Injection - %s (%s)", currentParam, injType),
			Severity:    sqlmapSeverity(injType),
			Evidence:    fmt.Sprintf("Parameter: %s\nMethod: %s\nType: %s", currentParam, currentMethod, injType),
			CWEIDs:      []string{"CWE-89"},
			Remediation: "Use parameterized queries or prepared statements.",
			Tags:        []string{"sqlmap", "sql-injection"},
			ToolName:    "sqlmap",
			AssetValue:  target,
			AssetType:   string(asset.TypeURL),
		})
	})

	if m := sqlmapDBMSRe.FindStringSubmatch(string(stripBOM(raw))); m != nil {
		dbms := m[1]
		out.Assets = append(out.Assets, asset.Asset{
			Type:      asset.TypeService,
			Value:     fmt.Sprintf("%s:database:%s", target, dbms),
			Metadata:  map[string]any{"dbms": dbms, "source": "sqlmap"},
			Tags:      []string{"sqlmap", "database"},
			RiskScore: 70,
		})
	}

	return out
}

// gobusterLineRe matches gobuster dir mode's "/path (Status: 200) [Size: 123]" lines.
var gobusterLineRe = regexp.MustCompile(`^(/\S*)\s+\(Status:\s+(\d+)\)(?:\s+\[Size:\s+(\d+)\])?`)

// ParseGobusterText parses gobuster's default dir-mode stdout format.
func ParseGobusterText(raw []byte, j job.Job) upsert.ParseOutput {
	var out upsert.ParseOutput
	assetDedup := NewAssetDedup()

	eachTextLine(raw, func(line string) {
		m := gobusterLineRe.FindStringSubmatch(line)
		if m == nil {
			out.ParseErrors = append(out.ParseErrors, "gobuster: unrecognized line: "+line)
			return
		}
		path, status := m[1], m[2]

		if assetDedup.SeenAsset(string(asset.TypeEndpoint), path) {
			return
		}
		statusCode, _ := strconv.Atoi(status)
		out.Assets = append(out.Assets, asset.Asset{
			Type:     asset.TypeEndpoint,
			Value:    path,
			Metadata: map[string]any{"status_code": statusCode},
		})
	})

	return out
}
