package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is a job-scoped temp directory. Close removes it recursively and
// is safe to call more than once.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under root (the system temp dir when
// root is empty).
func NewWorkspace(root, prefix string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create work root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile stores data under name and returns the full path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}
