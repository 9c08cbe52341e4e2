package filesync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const uploadConcurrency = 8

// UploadLink is one target a ChainUploader pushes the job's results to: its
// own files-API client, local source directory, and remote prefix. Grounded
// on the original's ResultsUpload implementations (main results and
// schedule results), each wrapping its own AskUiFilesService/base_url.
type UploadLink struct {
	Client    *Client
	LocalDir  string
	RemoteDir string
}

// ChainUploader implements executor.ResultsUploader: it uploads every file
// under one or more local results directories to their respective remote
// targets. Grounded on the original's ChainedResultsUploadService
// (modules/core/infrastructure/results_upload/askui.py), which composes a
// main-results link with an optional schedule-results link
// (modules/core/containers.py's _chained_results_upload_service). Unlike the
// original, which uploads links sequentially and stops at the first
// exception, every link here runs independently so a schedule-results
// failure never blocks the main-results upload and vice versa (spec.md
// §4.3 step 4) — the same non-short-circuiting rule already applied across
// the files within a single link.
type ChainUploader struct {
	log   logr.Logger
	links []UploadLink
}

// NewChainUploader builds a chain from one or more upload links. The first
// link is conventionally the main results target; any further links (e.g.
// schedule results) are only present when configured.
func NewChainUploader(log logr.Logger, links ...UploadLink) *ChainUploader {
	return &ChainUploader{log: log, links: links}
}

func (u *ChainUploader) Upload(ctx context.Context) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var combined error

	for _, link := range u.links {
		link := link
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := u.uploadLink(ctx, link); err != nil {
				mu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("%s: %w", link.RemoteDir, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return combined
}

// uploadLink walks localDir and uploads every file to remoteDir, bounding
// concurrency and aggregating per-file failures without letting one file's
// failure cancel its siblings (spec.md §4.3 step 4).
func (u *ChainUploader) uploadLink(ctx context.Context, link UploadLink) error {
	if _, err := os.Stat(link.LocalDir); err != nil {
		if os.IsNotExist(err) {
			u.log.Info("Results directory does not exist, nothing to upload", "dir", link.LocalDir)
			return nil
		}
		return fmt.Errorf("checking results directory: %w", err)
	}

	var mu sync.Mutex
	var combined error

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)

	err := filepath.Walk(link.LocalDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(link.LocalDir, path)
		if err != nil {
			return err
		}
		remotePath := joinRemote(link.RemoteDir, filepath.ToSlash(rel))

		eg.Go(func() error {
			if uploadErr := link.Client.UploadFile(egCtx, path, remotePath); uploadErr != nil {
				u.log.Error(uploadErr, "Failed to upload result file", "path", rel)
				mu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("%s: %w", rel, uploadErr))
				mu.Unlock()
			}
			return nil // never short-circuit sibling uploads
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking results directory: %w", err)
	}

	_ = eg.Wait() // always nil: per-file goroutines never return a non-nil error
	return combined
}
