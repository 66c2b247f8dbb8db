// Package asset holds discovered network/resource atoms and their relations.
package asset

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the supported asset kinds.
type Type string

const (
	TypeHost        Type = "host"
	TypeDomain       Type = "domain"
	TypeSubdomain    Type = "subdomain"
	TypeURL          Type = "url"
	TypeService      Type = "service"
	TypeNetwork      Type = "network"
	TypeEndpoint     Type = "endpoint"
	TypeCertificate  Type = "certificate"
	TypeTechnology   Type = "technology"
)

// Status enumerates the lifecycle states of an Asset record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// MaxValueLength is the maximum length of an Asset's Value field.
const MaxValueLength = 500

// Asset is a discovered network/resource atom. The tuple (Project, Type,
// Value) is unique within a project; duplicate inserts must merge.
type Asset struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	Type          Type
	Value         string
	Tags          []string
	Metadata      map[string]any
	RiskScore     int
	Status        Status
	DiscoveredBy  uuid.UUID // back-reference to the Job that found it; nil UUID if none
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Relation is a directed edge between two Assets in the same Project.
type Relation struct {
	ProjectID uuid.UUID
	ParentID  uuid.UUID
	ChildID   uuid.UUID
	CreatedAt time.Time
}
