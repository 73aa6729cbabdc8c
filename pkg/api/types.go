// Package api holds the JSON shapes printed by olpull for scripting.
package api

// Command: olpull snapshots list --json
type Snapshot struct {
	Key       string            `json:"key"`
	Project   string            `json:"project"`
	Size      int64             `json:"size"`
	ETag      string            `json:"etag,omitempty"`
	CreatedAt string            `json:"created_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}
type SnapshotList []Snapshot

// Command: olpull snapshots restore
type RestoreResult struct {
	Key   string `json:"key"`
	Dest  string `json:"dest"`
	Root  string `json:"root,omitempty"`
	Files int    `json:"files"`
	Dirs  int    `json:"dirs"`
}
