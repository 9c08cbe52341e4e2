package filesync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// entry is one side's view of a relative path during a three-way sync.
type entry struct {
	mtime time.Time
	size  int64
	url   string // remote only
}

// Syncer reconciles a local directory against a remote prefix (spec.md §4.4
// "Three-way sync"). Intentionally mtime/size based rather than content-hash
// based: correct under the assumption that the server preserves upload
// timestamps, which keeps it cheap for large workflow/result trees.
type Syncer struct {
	log    logr.Logger
	client *Client
}

func NewSyncer(log logr.Logger, client *Client) *Syncer {
	return &Syncer{log: log, client: client}
}

// Sync reconciles localDir against remoteDir per opts.
func (s *Syncer) Sync(ctx context.Context, localDir, remoteDir string, opts SyncOptions) error {
	local, err := s.localEntries(localDir)
	if err != nil {
		return fmt.Errorf("scanning local directory: %w", err)
	}

	remote, err := s.remoteEntries(ctx, remoteDir)
	if err != nil {
		return fmt.Errorf("scanning remote directory: %w", err)
	}

	paths := make(map[string]struct{}, len(local)+len(remote))
	for p := range local {
		paths[p] = struct{}{}
	}
	for p := range remote {
		paths[p] = struct{}{}
	}

	for relPath := range paths {
		localFile, hasLocal := local[relPath]
		remoteFile, hasRemote := remote[relPath]
		localPath := filepath.Join(localDir, filepath.FromSlash(relPath))
		remotePath := joinRemote(remoteDir, relPath)

		switch {
		case hasLocal && hasRemote:
			if err := s.reconcileBoth(ctx, relPath, localPath, remotePath, localFile, remoteFile, opts); err != nil {
				return err
			}
		case hasLocal && !hasRemote:
			if opts.SourceOfTruth == SourceOfTruthLocal {
				s.upload(ctx, relPath, localPath, remotePath, opts)
			} else if opts.Delete {
				s.deleteLocal(relPath, localPath, opts)
			}
		case hasRemote && !hasLocal:
			if opts.SourceOfTruth == SourceOfTruthRemote {
				s.download(ctx, relPath, remoteFile, localPath, opts)
			} else if opts.Delete {
				s.deleteRemote(ctx, relPath, remotePath, opts)
			}
		}
	}

	return nil
}

func (s *Syncer) reconcileBoth(ctx context.Context, relPath, localPath, remotePath string, local, remote entry, opts SyncOptions) error {
	var sourceNewer bool
	var sizesDiffer bool

	switch opts.SourceOfTruth {
	case SourceOfTruthLocal:
		sourceNewer = local.mtime.After(remote.mtime)
		sizesDiffer = local.size != remote.size
		if sourceNewer || sizesDiffer {
			s.upload(ctx, relPath, localPath, remotePath, opts)
		}
	case SourceOfTruthRemote:
		sourceNewer = remote.mtime.After(local.mtime)
		sizesDiffer = local.size != remote.size
		if sourceNewer || sizesDiffer {
			s.download(ctx, relPath, remote, localPath, opts)
		}
	}
	return nil
}

func (s *Syncer) upload(ctx context.Context, relPath, localPath, remotePath string, opts SyncOptions) {
	s.log.Info("Uploading file", "path", relPath, "dry", opts.Dry)
	if opts.Dry {
		return
	}
	if err := s.client.UploadFile(ctx, localPath, remotePath); err != nil {
		s.log.Error(err, "Failed to upload file during sync", "path", relPath)
	}
}

func (s *Syncer) download(ctx context.Context, relPath string, remote entry, localPath string, opts SyncOptions) {
	s.log.Info("Downloading file", "path", relPath, "dry", opts.Dry)
	if opts.Dry {
		return
	}
	if err := s.client.DownloadFile(ctx, remote.url, localPath, remote.mtime); err != nil {
		s.log.Error(err, "Failed to download file during sync", "path", relPath)
	}
}

func (s *Syncer) deleteLocal(relPath, localPath string, opts SyncOptions) {
	s.log.Info("Deleting local file", "path", relPath, "dry", opts.Dry)
	if opts.Dry {
		return
	}
	if err := os.Remove(localPath); err != nil {
		s.log.Error(err, "Failed to delete local file during sync", "path", relPath)
	}
}

func (s *Syncer) deleteRemote(ctx context.Context, relPath, remotePath string, opts SyncOptions) {
	s.log.Info("Deleting remote file", "path", relPath, "dry", opts.Dry)
	if opts.Dry {
		return
	}
	if err := s.client.DeleteFile(ctx, remotePath); err != nil {
		s.log.Error(err, "Failed to delete remote file during sync", "path", relPath)
	}
}

func (s *Syncer) localEntries(dir string) (map[string]entry, error) {
	entries := map[string]entry{}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	err = filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries[filepath.ToSlash(rel)] = entry{mtime: fi.ModTime(), size: fi.Size()}
		return nil
	})
	return entries, err
}

func (s *Syncer) remoteEntries(ctx context.Context, remoteDir string) (map[string]entry, error) {
	entries := map[string]entry{}

	files, err := s.client.ListRemote(ctx, remoteDir)
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(remoteDir, "/")
	for _, f := range files {
		rel := strings.TrimPrefix(f.Path, prefix)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			rel = f.Name
		}
		entries[rel] = entry{mtime: f.LastModified, size: f.Size, url: f.URL}
	}
	return entries, nil
}

func joinRemote(dir, relPath string) string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return relPath
	}
	return dir + "/" + relPath
}
