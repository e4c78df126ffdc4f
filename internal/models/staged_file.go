// Package models contains the plain records shared by the kbdesk components.
package models

import "time"

// StagedFile identifies a file chosen for upload. No content is held here.
type StagedFile struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// SameAs reports whether both refer to the same selection: equal name, size and
// modification time. This triple is the staging list's de-duplication key.
func (f StagedFile) SameAs(other StagedFile) bool {
	return f.Name == other.Name && f.Size == other.Size && f.LastModified.Equal(other.LastModified)
}
