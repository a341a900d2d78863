// Package templates reads HTML email templates from a directory and writes
// AI-edited copies next to them.
package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Extension is the only file suffix treated as a template.
const Extension = ".html"

// editedTimeLayout renders timestamps as YYYYMMDD_HHMMSS.
const editedTimeLayout = "20060102_150405"

var (
	// ErrNotFound is returned when a named template does not exist.
	ErrNotFound = errors.New("template not found")

	// ErrInvalidName is returned for names that are not plain *.html file names.
	ErrInvalidName = errors.New("invalid template name")
)

// Store provides access to the templates in one directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// WithClock returns a copy of the store that stamps edited files with now.
func (s *Store) WithClock(now func() time.Time) *Store {
	return &Store{dir: s.dir, now: now}
}

// Dir returns the templates directory.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether the templates directory exists.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// List returns the sorted names of all templates. A missing directory is
// not an error and yields an empty list.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read templates directory %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(e.Name(), Extension) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the raw content of the named template.
func (s *Store) Read(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to read template %s: %w", name, err)
	}
	return string(data), nil
}

// SaveEdited writes content as a new sibling of the original template and
// returns the new file name. The original file is never modified. Two saves
// of the same template within one second target the same name; the later
// one overwrites the earlier.
func (s *Store) SaveEdited(original, content string) (string, error) {
	if err := ValidateName(original); err != nil {
		return "", err
	}

	name := EditedName(original, s.now())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to save edited template %s: %w", name, err)
	}
	return name, nil
}

// EditedName derives the file name for an edited copy of original made at t:
// {base}_ai_edited_{YYYYMMDD_HHMMSS}{ext}.
func EditedName(original string, t time.Time) string {
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(original, ext)
	return base + "_ai_edited_" + t.Format(editedTimeLayout) + ext
}

// ValidateName rejects anything other than a plain *.html file name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q must be a file name, not a path", ErrInvalidName, name)
	case !strings.HasSuffix(name, Extension):
		return fmt.Errorf("%w: %q must end in %s", ErrInvalidName, name, Extension)
	}
	return nil
}
