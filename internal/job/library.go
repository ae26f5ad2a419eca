package job

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Library finds jobs by name across a search path. Earlier directories take
// precedence over later ones.
type Library struct {
	fs   afero.Fs
	dirs []string
}

// NewLibrary returns a library searching dirs in order. Blank entries are
// ignored.
func NewLibrary(fsys afero.Fs, dirs ...string) *Library {
	lib := &Library{fs: fsys}
	for _, dir := range dirs {
		if dir = strings.TrimSpace(dir); dir != "" {
			lib.dirs = append(lib.dirs, filepath.Clean(dir))
		}
	}
	return lib
}

// Dirs returns the search path.
func (l *Library) Dirs() []string {
	return append([]string(nil), l.dirs...)
}

// Find loads the job called name from the first directory that has it.
func (l *Library) Find(name string) (Job, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			if ok, err := afero.Exists(l.fs, path); err != nil {
				return Job{}, fmt.Errorf("job: stat %s: %w", path, err)
			} else if ok {
				return LoadFile(l.fs, path)
			}
		}
	}
	return Job{}, fmt.Errorf("job: could not find job %q in %s", name, l.describe())
}

// Entry is one job visible through the library.
type Entry struct {
	Name string
	Path string
}

// List returns the visible jobs sorted by name. A job shadowed by one with
// the same name in an earlier directory is omitted. Missing directories are
// skipped.
func (l *Library) List() ([]Entry, error) {
	found := map[string]string{}
	for i := len(l.dirs) - 1; i >= 0; i-- {
		dir := l.dirs[i]
		entries, err := afero.ReadDir(l.fs, dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("job: read %s: %w", dir, err)
		}
		// .yml first so a same-named .yaml wins, matching Find.
		sort.Slice(entries, func(a, b int) bool {
			return filepath.Ext(entries[a].Name()) > filepath.Ext(entries[b].Name())
		})
		for _, entry := range entries {
			if entry.IsDir() || !isYAMLFile(entry.Name()) {
				continue
			}
			found[NameFromPath(entry.Name())] = filepath.Join(dir, entry.Name())
		}
	}
	out := make([]Entry, 0, len(found))
	for name, path := range found {
		out = append(out, Entry{Name: name, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Library) describe() string {
	if len(l.dirs) == 0 {
		return "an empty search path"
	}
	return strings.Join(l.dirs, ", ")
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
