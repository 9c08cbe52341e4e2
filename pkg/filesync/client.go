package filesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/askui/askui-runner/pkg/transport"
)

const (
	listRequestTimeout   = 60 * time.Second
	downloadTimeout      = 60 * time.Second
	uploadTimeout        = 3600 * time.Second
	listPageLimit        = 100
	downloadChunkBytes   = 1024
)

// Client talks to the remote files API: paginated listing, single-file
// upload and download, each retried per spec.md §4.4.
type Client struct {
	log            logr.Logger
	baseURL        string
	authHeader     string
	listHTTP       *retryablehttp.Client
	downloadHTTP   *retryablehttp.Client
	uploadHTTP     *retryablehttp.Client
	hiddenPatterns []*regexp.Regexp
}

// New builds a Client. hiddenPatterns are regexes matched against each
// listed object's path; matches are dropped from listing results (spec.md
// §4.4's `^workspaces/[^/]+/test-cases/\.askui/.+$`-style hidden-file filter).
func New(log logr.Logger, baseURL, authHeader string, hiddenPatterns []string) (*Client, error) {
	compiled := make([]*regexp.Regexp, 0, len(hiddenPatterns))
	for _, p := range hiddenPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling hidden file pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &Client{
		log:            log,
		baseURL:        strings.TrimRight(baseURL, "/"),
		authHeader:     authHeader,
		listHTTP:       transport.New(log, listRequestTimeout),
		downloadHTTP:   transport.New(log, downloadTimeout),
		uploadHTTP:     transport.New(log, uploadTimeout),
		hiddenPatterns: compiled,
	}, nil
}

func (c *Client) isHidden(path string) bool {
	for _, re := range c.hiddenPatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// ListRemote follows next_continuation_token to completion and returns every
// visible (non-hidden) object under prefix.
func (c *Client) ListRemote(ctx context.Context, prefix string) ([]FileInfo, error) {
	var all []FileInfo
	var token *string

	for {
		page, next, err := c.listPage(ctx, prefix, token)
		if err != nil {
			return nil, err
		}
		for _, f := range page {
			if !c.isHidden(f.Path) {
				all = append(all, f)
			}
		}
		if next == nil {
			return all, nil
		}
		token = next
	}
}

func (c *Client) listPage(ctx context.Context, prefix string, continuationToken *string) ([]FileInfo, *string, error) {
	query := url.Values{
		"prefix": {prefix},
		"limit":  {fmt.Sprint(listPageLimit)},
		"expand": {"url"},
	}
	if continuationToken != nil {
		query.Set("continuation_token", *continuationToken)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building list request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.listHTTP.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("listing remote files: %w", err)
	}
	body := transport.ReadBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("listing remote files: status %d: %s", resp.StatusCode, body)
	}

	var parsed listResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, nil, fmt.Errorf("parsing list response: %w", err)
	}
	return parsed.Data, parsed.NextContinuationToken, nil
}

// UploadFile PUTs localPath's contents to remotePath (percent-encoded),
// making up to 5 attempts with exponential backoff through the shared
// transport (408/429/5xx and transport errors are retried).
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	target := c.baseURL + "/" + (&url.URL{Path: strings.TrimPrefix(remotePath, "/")}).String()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.uploadHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", remotePath, err)
	}
	body := transport.ReadBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("uploading %s: status %d: %s", remotePath, resp.StatusCode, body)
	}
	return nil
}

// DownloadFile GETs remoteURL, streams it to localPath in 1KiB chunks,
// creates parent directories as needed, and sets the local file's mtime to
// lastModified on success (spec.md §4.4 "Download one file").
func (c *Client) DownloadFile(ctx context.Context, remoteURL, localPath string, lastModified time.Time) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.downloadHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", remoteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := transport.ReadBody(resp)
		return fmt.Errorf("downloading %s: status %d: %s", remoteURL, resp.StatusCode, body)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", localPath, err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", localPath, err)
	}

	buf := make([]byte, downloadChunkBytes)
	if _, err := io.CopyBuffer(out, resp.Body, buf); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", localPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", localPath, err)
	}

	if !lastModified.IsZero() {
		if err := os.Chtimes(localPath, lastModified, lastModified); err != nil {
			return fmt.Errorf("setting mtime on %s: %w", localPath, err)
		}
	}
	return nil
}

// DeleteFile removes a remote object, used by three-way sync when the
// non-source-of-truth side carries a file the source side no longer has.
func (c *Client) DeleteFile(ctx context.Context, remotePath string) error {
	target := c.baseURL + "/" + (&url.URL{Path: strings.TrimPrefix(remotePath, "/")}).String()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.listHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", remotePath, err)
	}
	body := transport.ReadBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("deleting %s: status %d: %s", remotePath, resp.StatusCode, body)
	}
	return nil
}
