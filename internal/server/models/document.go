package models

import "time"

// Document is a schemaless record addressed by collection path and key,
// e.g. collection "users/u1/profileViews" and key "v9".
type Document struct {
	Collection string
	Key        string
	Fields     map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Path returns the full document path.
func (d *Document) Path() string {
	return d.Collection + "/" + d.Key
}
