package models

import "time"

// TagsField is the list item column that carries the comma-joined tags.
const TagsField = "DocTaggerTags"

// Target is one configured folder in a tenant's content store that the daemon scans.
// Records are authored by the admin UI and stored as JSON; the daemon only reads them.
type Target struct {
	Label   string `json:"label"`
	SiteID  string `json:"siteId"`
	DriveID string `json:"driveId"`
	Folder  string `json:"folder"`
	Enabled bool   `json:"enabled"`
}

// FileItem is a child of a target folder as returned by the lister.
type FileItem struct {
	ID       string
	Name     string
	IsFolder bool
	HasFile  bool
}

// Taggable reports whether the item is a file the pipeline can process.
func (f FileItem) Taggable() bool {
	return f.ID != "" && f.HasFile && !f.IsFolder
}

// FieldSet is the list item field map of a single file.
type FieldSet struct {
	Values map[string]any
	ETag   string
}

// LogEntry is one append-only audit record for a successfully tagged file.
type LogEntry struct {
	Timestamp time.Time `firestore:"ts" json:"ts"`
	Filename  string    `firestore:"filename" json:"filename"`
	Folder    string    `firestore:"folder" json:"folder"`
	Tags      []string  `firestore:"tags" json:"tags"`
	User      string    `firestore:"user" json:"user"`
	Status    string    `firestore:"status" json:"status"`
	Method    string    `firestore:"method" json:"method"`
}
