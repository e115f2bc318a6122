package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
)

const (
	// DirPrefix starts the name of every scratch directory.
	DirPrefix = "pass-"

	dirMode  os.FileMode = 0o700
	fileMode os.FileMode = 0o600
)

var (
	// errInvalidName is returned for names that would escape the scratch directory.
	errInvalidName = errors.New("file name must be a plain base name")
	// errClosed is returned when a file is requested after Cleanup.
	errClosed = errors.New("workspace is already cleaned up")
)

// Workspace is a scratch directory with a registry of the files created in it.
type Workspace struct {
	// dir is the absolute path of the scratch directory.
	dir string

	// mu guards files and closed.
	mu     sync.Mutex
	files  []string
	closed bool
}

// New creates a fresh scratch directory below parent. An empty parent uses the OS temp dir.
func New(parent string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}

	if err := os.MkdirAll(parent, dirMode); err != nil {
		return nil, fmt.Errorf("create scratch parent: %w", err)
	}

	dir := filepath.Join(parent, DirPrefix+ulid.Make().String())
	if err := os.Mkdir(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.Remove(dir)

		return nil, fmt.Errorf("resolve scratch directory: %w", err)
	}

	return &Workspace{dir: abs}, nil
}

// Dir returns the scratch directory path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the location of name inside the scratch directory without registering it.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Track registers name for removal by Cleanup and returns its path.
// It is used for files created by external programs.
func (w *Workspace) Track(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", errClosed
	}

	w.register(name)

	return w.Path(name), nil
}

// Create creates name exclusively and registers it. A file that already exists
// is neither truncated nor registered, so Cleanup leaves it alone.
func (w *Workspace) Create(name string) (*os.File, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errClosed
	}

	f, err := os.OpenFile(w.Path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	w.register(name)

	return f, nil
}

// WriteFile registers name and writes data to it, replacing a file this workspace created earlier.
func (w *Workspace) WriteFile(name string, data []byte) error {
	path, err := w.Track(name)
	if err != nil {
		return err
	}

	if err = os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}

// Files returns the registered file names in creation order.
func (w *Workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.files)
}

// Cleanup removes every registered file and then the scratch directory itself.
// It is safe to call more than once. Files that are already gone are not an error.
func (w *Workspace) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	var errs []error

	for _, name := range w.files {
		if err := os.Remove(w.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}

	w.files = nil

	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, fmt.Errorf("remove scratch directory: %w", err))
	}

	return errors.Join(errs...)
}

// register appends name once. The caller holds mu.
func (w *Workspace) register(name string) {
	if !slices.Contains(w.files, name) {
		w.files = append(w.files, name)
	}
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%q: %w", name, errInvalidName)
	}

	return nil
}
