package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pavel-fokin/filehub/internal/files"
)

const defaultRegistryFile = "registry.json"

// document is the on-disk shape of the registry
type document struct {
	Files []*files.Entry `json:"files"`
}

// Registry implements files.RegistryStore on a JSON document
type Registry struct {
	root     string
	file     string
	required bool
}

// NewRegistry creates a registry store rooted at root. file is absolute
// or relative to root. When required is set a missing document is an error.
func NewRegistry(root, file string, required bool) *Registry {
	if file == "" {
		file = defaultRegistryFile
	}
	return &Registry{
		root:     filepath.Clean(root),
		file:     file,
		required: required,
	}
}

// Path returns the document in use: the configured file when it exists,
// otherwise registry.json under root.
func (r *Registry) Path() string {
	candidate := r.file
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.root, candidate)
	}
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return filepath.Join(r.root, defaultRegistryFile)
}

// Load reads and validates the registry document
func (r *Registry) Load() (*files.Registry, error) {
	path := r.Path()
	reg := &files.Registry{Root: r.root, Path: path, Files: []*files.Entry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if r.required {
				return nil, fmt.Errorf("%s: %w", path, files.ErrIndexMissing)
			}
			return reg, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, files.ErrIndexCorrupt, err)
	}
	if err := validate(doc.Files); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, files.ErrIndexCorrupt, err)
	}

	if doc.Files != nil {
		reg.Files = doc.Files
	}
	return reg, nil
}

// Save rewrites the whole document through a temp file and a rename so
// concurrent readers see either the old or the new file.
func (r *Registry) Save(reg *files.Registry) error {
	if err := validate(reg.Files); err != nil {
		return err
	}

	path := reg.Path
	if path == "" {
		path = r.Path()
	}
	entries := reg.Files
	if entries == nil {
		entries = []*files.Entry{}
	}

	data, err := json.MarshalIndent(document{Files: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

func validate(entries []*files.Entry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e == nil {
			return fmt.Errorf("files[%d]: null entry", i)
		}
		if e.ID == "" {
			return fmt.Errorf("files[%d]: missing id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("files[%d]: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}
