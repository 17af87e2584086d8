// Package models defines server-side data models persisted in the database.
package models

import "time"

// Credential is a login identity owned by the identity provider. Its ID is
// opaque and distinct from the human-facing identifier on the account record.
type Credential struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	// Role is the role claim carried in issued access tokens.
	Role      string
	CreatedAt time.Time
}
