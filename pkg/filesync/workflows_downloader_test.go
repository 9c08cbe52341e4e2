package filesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalWorkflowsPathStripsWorkspacePrefixAndTsFilename(t *testing.T) {
	cases := []struct {
		prefix       string
		remotePrefix string
		localSuffix  string
	}{
		{
			prefix:       "workspaces/ws-1/test-cases",
			remotePrefix: "workspaces/ws-1/test-cases",
			localSuffix:  "",
		},
		{
			prefix:       "workspaces/ws-1/test-cases/sub-dir",
			remotePrefix: "workspaces/ws-1/test-cases/sub-dir",
			localSuffix:  "sub-dir",
		},
		{
			prefix:       "workspaces/ws-1/test-cases/sub-dir/login.ts",
			remotePrefix: "workspaces/ws-1/test-cases/sub-dir/login.ts",
			localSuffix:  "sub-dir",
		},
		{
			prefix:       "workspaces/ws-1/test-cases/login.ts",
			remotePrefix: "workspaces/ws-1/test-cases/login.ts",
			localSuffix:  "",
		},
	}

	for _, c := range cases {
		got := localWorkflowsPath(c.prefix)
		assert.Equal(t, c.remotePrefix, got.remotePrefix, "prefix %q", c.prefix)
		assert.Equal(t, c.localSuffix, got.localSuffix, "prefix %q", c.prefix)
	}
}

func TestDownloadPrefixMapsFilesUnderLocalDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("prefix") != "" || r.URL.Path == "/" {
			resp := listResponse{Data: []FileInfo{
				{
					Name: "login.ts",
					Path: "workspaces/ws-1/test-cases/sub-dir/login.ts",
					URL:  "http://" + r.Host + "/download/login.ts",
				},
			}}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		_, _ = w.Write([]byte("test content"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c, err := New(testr.New(t), srv.URL, "Basic abc", nil)
	require.NoError(t, err)

	d := NewWorkflowsDownloader(testr.New(t), c, dir, []string{"workspaces/ws-1/test-cases/sub-dir"})
	require.NoError(t, d.Download(context.Background()))

	content, err := os.ReadFile(filepath.Join(dir, "sub-dir", "login.ts"))
	require.NoError(t, err)
	assert.Equal(t, "test content", string(content))
}
