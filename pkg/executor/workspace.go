package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"

	"github.com/askui/askui-runner/pkg/config"
)

const templateSuffix = ".jinja"

// newScopedWorkspace creates a per-job temp directory and returns a cleanup
// closure that restores the prior working directory and removes it,
// replacing the original's `with tempfile.TemporaryDirectory(...)` context
// manager (modules/core/domain/services.py).
func newScopedWorkspace() (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "askui-runner-")
	if err != nil {
		return "", nil, fmt.Errorf("creating job workspace: %w", err)
	}

	prevWD, err := os.Getwd()
	if err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("reading working directory: %w", err)
	}

	return dir, func() {
		_ = os.Chdir(prevWD)
		_ = os.RemoveAll(dir)
	}, nil
}

// setup copies the project template into the job workspace, renders its
// *.jinja files against the job config, writes data.json, and chdirs into
// the workspace (spec.md §4.3 step 1).
func (e *Executor) setup(workspace string) error {
	if e.cfg.ProjectDir != "" {
		if err := copyDirContents(e.cfg.ProjectDir, workspace); err != nil {
			return fmt.Errorf("copying project template: %w", err)
		}
		if err := renderTemplates(workspace, e.cfg); err != nil {
			return fmt.Errorf("rendering templates: %w", err)
		}
	}

	if err := writeDataJSON(workspace, e.cfg.Data); err != nil {
		return fmt.Errorf("writing data.json: %w", err)
	}

	return os.Chdir(workspace)
}

func copyDirContents(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source directory %q does not exist: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %q is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// renderTemplates walks dir looking for *.jinja files and renders each with
// text/template + sprig, writing the result alongside with the suffix
// stripped. The original used Jinja2; Go's {{ }} delimiter syntax is
// compatible enough that templates only need their filter pipeline
// translated, not their structure (modules/core/infrastructure/runner/askui.py).
func renderTemplates(dir string, cfg config.Job) error {
	data, err := templateData(cfg)
	if err != nil {
		return err
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, templateSuffix) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		tmpl, err := template.New(filepath.Base(path)).Funcs(sprig.TxtFuncMap()).Parse(string(raw))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", path, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("executing template %s: %w", path, err)
		}

		target := strings.TrimSuffix(path, templateSuffix)
		return os.WriteFile(target, buf.Bytes(), 0o644)
	})
}

// templateData round-trips cfg through JSON so templates see the same
// field names the config file uses, mirroring the original's self.config.dict().
func templateData(cfg config.Job) (map[string]any, error) {
	bs, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(bs, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeDataJSON(workspace string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	bs, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workspace, "data.json"), bs, 0o644)
}
