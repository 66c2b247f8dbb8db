// Package project holds the top-level scope container entity.
package project

import (
	"time"

	"github.com/google/uuid"
)

// Project is the scope container owning Assets, Jobs, Vulnerabilities,
// Credentials, Workflows and Reports. Deletion cascades to all children.
type Project struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
