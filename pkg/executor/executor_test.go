package executor

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askui/askui-runner/pkg/config"
)

type fakeDownloader struct {
	called bool
	err    error
}

func (d *fakeDownloader) Download(ctx context.Context) error {
	d.called = true
	return d.err
}

type fakeUploader struct {
	called bool
	err    error
}

func (u *fakeUploader) Upload(ctx context.Context) error {
	u.called = true
	return u.err
}

func TestRunSkipsDisabledPhases(t *testing.T) {
	dl := &fakeDownloader{}
	ul := &fakeUploader{}
	cfg := config.Job{Enable: config.PhaseToggles{}}
	e := New(testr.New(t), cfg, dl, ul)

	result := e.Run(context.Background())

	assert.Equal(t, ResultPassed, result)
	assert.False(t, dl.called)
	assert.False(t, ul.called)
}

func TestRunInvokesDownloadAndUpload(t *testing.T) {
	dl := &fakeDownloader{}
	ul := &fakeUploader{}
	cfg := config.Job{Enable: config.PhaseToggles{DownloadWorkflows: true, UploadResults: true}}
	e := New(testr.New(t), cfg, dl, ul)

	e.Run(context.Background())

	assert.True(t, dl.called)
	assert.True(t, ul.called)
}

func TestRunWorkflowsPassesOnZeroExit(t *testing.T) {
	cfg := config.Job{
		Command: "exit 0",
		Enable:  config.PhaseToggles{RunWorkflows: true},
	}
	e := New(testr.New(t), cfg, &fakeDownloader{}, &fakeUploader{})

	assert.Equal(t, ResultPassed, e.Run(context.Background()))
}

func TestRunWorkflowsFailsOnNonzeroExit(t *testing.T) {
	cfg := config.Job{
		Command: "exit 3",
		Enable:  config.PhaseToggles{RunWorkflows: true},
	}
	e := New(testr.New(t), cfg, &fakeDownloader{}, &fakeUploader{})

	assert.Equal(t, ResultFailed, e.Run(context.Background()))
}

func TestUploadFailureDoesNotOverrideRunWorkflowsResult(t *testing.T) {
	cfg := config.Job{
		Command: "exit 0",
		Enable:  config.PhaseToggles{RunWorkflows: true, UploadResults: true},
	}
	e := New(testr.New(t), cfg, &fakeDownloader{}, &fakeUploader{err: errors.New("upload exploded")})

	assert.Equal(t, ResultPassed, e.Run(context.Background()))
}

func TestSetupCopiesRendersTemplatesAndWritesDataJSON(t *testing.T) {
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "static.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(projectDir, "config.json.jinja"),
		[]byte(`{"command":"{{ .command }}"}`),
		0o644,
	))

	cfg := config.Job{
		ProjectDir: projectDir,
		Command:    "npx jest",
		Data:       map[string]any{"key": "value"},
		Enable:     config.PhaseToggles{Setup: true},
	}
	e := New(testr.New(t), cfg, &fakeDownloader{}, &fakeUploader{})

	prevWD, err := os.Getwd()
	require.NoError(t, err)

	workspace, cleanup, err := newScopedWorkspace()
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, e.setup(workspace))
	defer os.Chdir(prevWD) //nolint:errcheck

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, workspace, wd)

	static, err := os.ReadFile(filepath.Join(workspace, "static.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(static))

	rendered, err := os.ReadFile(filepath.Join(workspace, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"command":"npx jest"}`, string(rendered))

	dataJSON, err := os.ReadFile(filepath.Join(workspace, "data.json"))
	require.NoError(t, err)
	assert.Contains(t, string(dataJSON), "value")
}

func TestWaitForControllerSucceedsOnceListenerIsUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.NoError(t, waitForController(ctx, ln.Addr().String()))
}

func TestWaitForControllerReturnsErrorWhenContextExpires(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := waitForController(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}
