package geoproc

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/raster.report/internal/fsutil"
	"github.com/banshee-data/raster.report/internal/monitoring"
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for names the workspace does not hold.
	ErrNotFound = errors.New("artifact not found")
	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("workspace released")
)

// Workspace holds the intermediates of one tool invocation. Names are
// <kind>_<label>_<8 hex chars>, so repeated or concurrent invocations with the
// same label never collide. Release drops every artifact and removes any files
// spilled to the scratch directory; it is safe to call more than once.
type Workspace struct {
	mu        sync.Mutex
	label     string
	fs        fsutil.FileSystem
	dir       string // scratch directory for spilled artifacts, created lazily
	root      string
	artifacts map[string]any
	spilled   map[string]string
	released  bool
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithScratchDir sets the parent directory that spilled artifacts are written
// under. Each workspace uses its own sub-directory.
func WithScratchDir(dir string) WorkspaceOption {
	return func(w *Workspace) { w.root = dir }
}

// WithFileSystem overrides the filesystem used for spilled artifacts.
func WithFileSystem(fsys fsutil.FileSystem) WorkspaceOption {
	return func(w *Workspace) { w.fs = fsys }
}

// NewWorkspace creates an empty workspace for label.
func NewWorkspace(label string, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		label:     sanitize(label),
		fs:        fsutil.OSFileSystem{},
		artifacts: make(map[string]any),
		spilled:   make(map[string]string),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Put stores v under a fresh name derived from kind and returns the name.
func (w *Workspace) Put(kind string, v any) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return "", ErrReleased
	}
	name := fmt.Sprintf("%s_%s_%s", sanitize(kind), w.label, uuid.New().String()[:8])
	w.artifacts[name] = v
	return name, nil
}

// Raster returns the raster stored under name.
func (w *Workspace) Raster(name string) (*raster.Raster, error) {
	v, err := w.get(name)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*raster.Raster)
	if !ok {
		return nil, fmt.Errorf("artifact %s is %T, not a raster", name, v)
	}
	return r, nil
}

// Region returns the region stored under name.
func (w *Workspace) Region(name string) (Region, error) {
	v, err := w.get(name)
	if err != nil {
		return nil, err
	}
	r, ok := v.(Region)
	if !ok {
		return nil, fmt.Errorf("artifact %s is %T, not a region", name, v)
	}
	return r, nil
}

func (w *Workspace) get(name string) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil, ErrReleased
	}
	v, ok := w.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// Take removes name from the workspace and returns its value, which then
// outlives Release.
func (w *Workspace) Take(name string) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil, ErrReleased
	}
	v, ok := w.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(w.artifacts, name)
	return v, nil
}

// Names returns the names currently held, sorted.
func (w *Workspace) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.artifacts))
	for n := range w.artifacts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Spill writes the raster stored under name to the scratch directory as an
// ASCII grid and returns the file path. The file is removed by Release.
func (w *Workspace) Spill(name string) (string, error) {
	r, err := w.Raster(name)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.root == "" {
		return "", errors.New("spill: workspace has no scratch directory")
	}
	if w.dir == "" {
		dir := filepath.Join(w.root, fmt.Sprintf("ws_%s_%s", w.label, uuid.New().String()[:8]))
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create scratch directory: %w", err)
		}
		w.dir = dir
	}

	path := filepath.Join(w.dir, name+".asc")
	f, err := w.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := raster.WriteASC(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to spill %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	w.spilled[name] = path
	return path, nil
}

// Release drops every artifact and removes the scratch directory.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true
	n := len(w.artifacts)
	w.artifacts = nil
	w.spilled = nil
	if w.dir != "" {
		if err := w.fs.RemoveAll(w.dir); err != nil {
			return fmt.Errorf("failed to remove scratch directory %s: %w", w.dir, err)
		}
	}
	monitoring.Logf("[geoproc] released workspace %s (%d artifacts)", w.label, n)
	return nil
}

// Released reports whether Release has run.
func (w *Workspace) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

// Dir returns the scratch directory, empty until the first Spill.
func (w *Workspace) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "x"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, s)
}
