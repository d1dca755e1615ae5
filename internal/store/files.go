// Package store persists the daemon's durable documents: one JSON file per
// project, one for the active-project pointer, one per saved layout. Writes
// are atomic (write-to-temp, rename) so a crash never leaves a torn file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"projd/internal/model"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrProjectExists    = errors.New("project already exists")
	ErrLayoutNotFound   = errors.New("layout not found")
	ErrNameInvalid      = errors.New("name is invalid")
	ErrDirectoryMissing = errors.New("project directory does not exist")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidName reports whether a project or layout name is safe to embed in a
// filename and a manager mark.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

type Files struct {
	dataDir string
}

func New(dataDir string) *Files {
	return &Files{dataDir: dataDir}
}

func (f *Files) projectPath(name string) string {
	return filepath.Join(f.dataDir, "projects", name+".json")
}

func (f *Files) layoutPath(project, layout string) string {
	return filepath.Join(f.dataDir, "layouts", project+"--"+layout+".json")
}

func (f *Files) activePath() string {
	return filepath.Join(f.dataDir, "active_project.json")
}

// SaveProject validates and persists one project document. Create requires
// the project directory to exist; stale directories on later edits fail the
// same way.
func (f *Files) SaveProject(p model.ProjectConfig) error {
	if !ValidName(p.Name) {
		return fmt.Errorf("%w: project %q", ErrNameInvalid, p.Name)
	}
	if !filepath.IsAbs(p.Directory) {
		return fmt.Errorf("%w: project directory must be absolute: %q", ErrNameInvalid, p.Directory)
	}
	info, err := os.Stat(p.Directory)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %q", ErrDirectoryMissing, p.Directory)
	}
	return f.writeJSON(f.projectPath(p.Name), p)
}

func (f *Files) LoadProject(name string) (model.ProjectConfig, error) {
	if !ValidName(name) {
		return model.ProjectConfig{}, fmt.Errorf("%w: project %q", ErrNameInvalid, name)
	}
	var p model.ProjectConfig
	if err := f.readJSON(f.projectPath(name), &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.ProjectConfig{}, ErrProjectNotFound
		}
		return model.ProjectConfig{}, err
	}
	return p, nil
}

func (f *Files) ProjectExists(name string) bool {
	if !ValidName(name) {
		return false
	}
	_, err := os.Stat(f.projectPath(name))
	return err == nil
}

// ListProjects loads every project document, sorted by name. Undecodable
// files are skipped rather than failing the listing.
func (f *Files) ListProjects() ([]model.ProjectConfig, error) {
	entries, err := os.ReadDir(filepath.Join(f.dataDir, "projects"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read projects dir: %w", err)
	}
	var out []model.ProjectConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var p model.ProjectConfig
		if err := f.readJSON(filepath.Join(f.dataDir, "projects", entry.Name()), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteProject removes the project document and its saved layouts.
func (f *Files) DeleteProject(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: project %q", ErrNameInvalid, name)
	}
	if err := os.Remove(f.projectPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("remove project: %w", err)
	}
	layouts, _ := f.ListLayouts(name)
	for _, layout := range layouts {
		_ = os.Remove(f.layoutPath(name, layout))
	}
	return nil
}

// SaveActiveProject persists the singleton pointer so the active project
// survives a daemon restart.
func (f *Files) SaveActiveProject(ap model.ActiveProject) error {
	return f.writeJSON(f.activePath(), ap)
}

// LoadActiveProject returns the persisted pointer; a missing file means
// global mode, not an error.
func (f *Files) LoadActiveProject() (model.ActiveProject, error) {
	var ap model.ActiveProject
	if err := f.readJSON(f.activePath(), &ap); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.ActiveProject{}, nil
		}
		return model.ActiveProject{}, err
	}
	return ap, nil
}

func (f *Files) SaveLayout(l model.LayoutSnapshot) error {
	if !ValidName(l.ProjectName) {
		return fmt.Errorf("%w: project %q", ErrNameInvalid, l.ProjectName)
	}
	if !ValidName(l.LayoutName) {
		return fmt.Errorf("%w: layout %q", ErrNameInvalid, l.LayoutName)
	}
	return f.writeJSON(f.layoutPath(l.ProjectName, l.LayoutName), l)
}

func (f *Files) LoadLayout(project, layout string) (model.LayoutSnapshot, error) {
	if !ValidName(project) || !ValidName(layout) {
		return model.LayoutSnapshot{}, fmt.Errorf("%w: layout %s/%s", ErrNameInvalid, project, layout)
	}
	var l model.LayoutSnapshot
	if err := f.readJSON(f.layoutPath(project, layout), &l); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.LayoutSnapshot{}, ErrLayoutNotFound
		}
		return model.LayoutSnapshot{}, err
	}
	return l, nil
}

// ListLayouts returns the layout names saved for one project, sorted.
func (f *Files) ListLayouts(project string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.dataDir, "layouts"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read layouts dir: %w", err)
	}
	prefix := project + "--"
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
	}
	sort.Strings(out)
	return out, nil
}

func (f *Files) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (f *Files) writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()          //nolint:errcheck
		os.Remove(tmpName)   //nolint:errcheck
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
