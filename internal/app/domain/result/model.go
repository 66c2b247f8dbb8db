// Package result holds the Result entity: raw structured observations
// produced by a parser and keyed to a Job and optionally an Asset.
package result

import (
	"time"

	"github.com/google/uuid"
)

// Result is a raw structured observation (port, service banner, DNS record,
// endpoint, etc). Results are always inserted, never merged.
type Result struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	JobID      uuid.UUID
	AssetID    *uuid.UUID
	ResultType string
	ParsedData map[string]any
	Severity   string
	Fingerprint string
	CreatedAt  time.Time

	// AssetValue/AssetType are parser-time hints, not persisted columns.
	AssetValue string `json:"-"`
	AssetType  string `json:"-"`
}
