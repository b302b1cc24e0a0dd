package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// List returns the filenames in dir whose extension equals ext, sorted
// lexicographically. Directories and other files are ignored.
func List(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}

// Read loads a single script from dir.
func Read(dir, filename string) (Script, error) {
	path := filepath.Join(dir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("reading migration file %s: %w", path, err)
	}

	body := string(data)

	return Script{
		Filename: filename,
		Body:     body,
		Checksum: ComputeChecksum(body),
		Path:     path,
	}, nil
}

// LoadFromDir reads every script in dir with the given extension, in
// lexicographic filename order.
func LoadFromDir(dir, ext string) ([]Script, error) {
	names, err := List(dir, ext)
	if err != nil {
		return nil, err
	}

	scripts := make([]Script, 0, len(names))

	for _, name := range names {
		s, err := Read(dir, name)
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, s)
	}

	return scripts, nil
}

// IsBlank reports whether the script has nothing to execute.
func (s *Script) IsBlank() bool {
	return strings.TrimSpace(s.Body) == ""
}
