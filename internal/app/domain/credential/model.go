// Package credential holds the Credential entity: captured secrets and
// usernames discovered by tools.
package credential

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the supported credential kinds.
type Type string

const (
	TypePassword    Type = "password"
	TypeHash        Type = "hash"
	TypeAPIKey      Type = "api_key"
	TypeToken       Type = "token"
	TypeSSHKey      Type = "ssh_key"
	TypeCertificate Type = "certificate"
	TypeCookie      Type = "cookie"
	TypeOther       Type = "other"
)

// Credential is a captured secret or username. Plaintext fields are
// encrypted at rest; only ciphertext is persisted.
type Credential struct {
	ID                  uuid.UUID
	ProjectID           uuid.UUID
	AssetID             *uuid.UUID
	CredentialType      Type
	Username            string
	Domain              string
	Service             string
	Port                int
	URL                 string
	EncryptedPlaintext  string
	RawHash             string
	HashType            string
	IsValid             bool
	Source              string
	Metadata            map[string]any
	Fingerprint         string
	DiscoveredBy        uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time

	// AssetValue/AssetType are parser-time hints, not persisted columns.
	AssetValue string `json:"-"`
	AssetType  string `json:"-"`

	// Plaintext is the cleartext secret prior to encryption; transient,
	// never persisted directly.
	Plaintext string `json:"-"`
}
