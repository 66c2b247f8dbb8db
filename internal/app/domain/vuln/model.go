// Package vuln holds the Vulnerability finding entity.
package vuln

import (
	"time"

	"github.com/google/uuid"
)

// Severity enumerates the supported severity levels, ordered low to high.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status enumerates the triage lifecycle of a Vulnerability.
type Status string

const (
	StatusOpen          Status = "open"
	StatusConfirmed     Status = "confirmed"
	StatusFalsePositive Status = "false_positive"
	StatusRemediated    Status = "remediated"
	StatusAccepted      Status = "accepted_risk"
)

// Vulnerability is a finding discovered by a tool or imported scan.
type Vulnerability struct {
	ID              uuid.UUID
	ProjectID       uuid.UUID
	AssetID         *uuid.UUID
	Title           string
	Severity        Severity
	Status          Status
	CVSSScore       *float64
	CVSSVector      string
	CVEIDs          []string
	CWEIDs          []string
	Evidence        string
	ProofOfConcept  string
	RawRequest      string
	RawResponse     string
	Remediation     string
	References      []string
	Tags            []string
	TemplateID      string
	ToolName        string
	Metadata        map[string]any
	Fingerprint     string
	DiscoveredBy    uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// AssetValue/AssetType are parser-time hints used to link this
	// vulnerability to an Asset during the upsert merge; they are not
	// persisted columns.
	AssetValue string `json:"-"`
	AssetType  string `json:"-"`
}
