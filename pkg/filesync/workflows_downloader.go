package filesync

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
)

var testCasesPrefix = regexp.MustCompile(`^workspaces/[^/]+/test-cases/?`)

// WorkflowsDownloader implements executor.WorkflowsDownloader: for each
// configured remote prefix it downloads every matching object into the
// local workflows directory, stripping the `workspaces/{id}/test-cases/`
// portion of the remote path and mapping the remainder underneath the local
// dir (spec.md §4.3 step 2).
type WorkflowsDownloader struct {
	log      logr.Logger
	client   *Client
	localDir string
	prefixes []string
}

func NewWorkflowsDownloader(log logr.Logger, client *Client, localDir string, prefixes []string) *WorkflowsDownloader {
	return &WorkflowsDownloader{log: log, client: client, localDir: localDir, prefixes: prefixes}
}

func (d *WorkflowsDownloader) Download(ctx context.Context) error {
	for _, prefix := range d.prefixes {
		if err := d.downloadPrefix(ctx, prefix); err != nil {
			return fmt.Errorf("downloading workflow prefix %q: %w", prefix, err)
		}
	}
	return nil
}

func (d *WorkflowsDownloader) downloadPrefix(ctx context.Context, prefix string) error {
	localPrefix := localWorkflowsPath(prefix)

	files, err := d.client.ListRemote(ctx, prefix)
	if err != nil {
		return err
	}

	for _, f := range files {
		rel := strings.TrimPrefix(f.Path, localPrefix.remotePrefix)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			rel = f.Name
		}
		localPath := filepath.Join(d.localDir, filepath.FromSlash(localPrefix.localSuffix), filepath.FromSlash(rel))

		d.log.Info("Downloading workflow file", "remote", f.Path, "local", localPath)
		if err := d.client.DownloadFile(ctx, f.URL, localPath, f.LastModified); err != nil {
			return err
		}
	}
	return nil
}

type mappedPrefix struct {
	remotePrefix string
	localSuffix  string
}

// localWorkflowsPath strips the `workspaces/{id}/test-cases/` portion from a
// remote prefix and returns what remains, with a trailing `*.ts` filename
// component stripped so that a single-file prefix resolves to its
// containing directory (spec.md §4.3 step 2).
func localWorkflowsPath(prefix string) mappedPrefix {
	remainder := testCasesPrefix.ReplaceAllString(prefix, "")
	remainder = strings.Trim(remainder, "/")

	if strings.HasSuffix(remainder, ".ts") {
		remainder = path.Dir(remainder)
		if remainder == "." {
			remainder = ""
		}
	}

	return mappedPrefix{
		remotePrefix: strings.TrimSuffix(prefix, "/"),
		localSuffix:  remainder,
	}
}
