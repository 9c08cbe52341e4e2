// Package filesync implements the file-sync engine: paginated remote
// listing, single-file upload/download with retry, and mtime-based
// three-way reconciliation between a local directory and a remote prefix
// (spec.md §4.4). Grounded on the original's AskUiFilesService
// (modules/core/infrastructure/files/askui.py) for the list/upload/download
// shapes; the three-way sync itself follows spec.md directly, since the
// original's concrete sync implementation was not present in the retrieved
// source.
package filesync

import "time"

// FileInfo describes one remote object as returned by the listing endpoint.
type FileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// listResponse is the paginated listing envelope (spec.md §4.4 "List remote").
type listResponse struct {
	Data                  []FileInfo `json:"data"`
	NextContinuationToken *string    `json:"next_continuation_token"`
}

// SourceOfTruth selects which side of a three-way sync wins on conflict.
type SourceOfTruth string

const (
	SourceOfTruthLocal  SourceOfTruth = "local"
	SourceOfTruthRemote SourceOfTruth = "remote"
)

// SyncOptions configures a three-way sync run (spec.md §4.4).
type SyncOptions struct {
	SourceOfTruth SourceOfTruth
	Dry           bool
	Delete        bool
}
