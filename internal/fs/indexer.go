package fs

import (
	"fmt"
	iofs "io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pavel-fokin/filehub/internal/files"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Indexer implements files.Scanner by walking the registry root
type Indexer struct {
	exclude []string
}

// NewIndexer creates an indexer that skips paths matching any of the
// doublestar patterns in exclude. Patterns are relative to the root.
func NewIndexer(exclude []string) (*Indexer, error) {
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Indexer{exclude: exclude}, nil
}

// Scan proposes entries for files under reg.Root that no entry already
// points at. Paths are compared after resolving symlinks, so an entry
// stored through an alias of the root still counts. Entries whose files
// disappeared are left alone.
func (ix *Indexer) Scan(reg *files.Registry, mode files.ScanMode, recursive bool) ([]*files.Entry, error) {
	root := realPath(reg.Root)

	known := make(map[string]bool, len(reg.Files))
	ids := make(map[string]bool, len(reg.Files))
	for _, e := range reg.Files {
		ids[e.ID] = true
		p := e.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(reg.Root, p)
		}
		known[realPath(p)] = true
	}
	if reg.Path != "" {
		known[realPath(reg.Path)] = true
	}

	var added []*files.Entry
	err := filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("Skipping unreadable path", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || ix.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ix.excluded(rel) || isTemp(d.Name()) {
			return nil
		}
		if mode == files.ScanImages && !files.IsImage(path) {
			return nil
		}
		if known[path] {
			return nil
		}

		id := uniqueID(slugify(d.Name()), ids)
		ids[id] = true
		known[path] = true

		sendAs := files.SendFile
		if files.IsImage(path) {
			sendAs = files.SendImage
		}
		tags := []string{}
		if ext := strings.TrimPrefix(filepath.Ext(d.Name()), "."); ext != "" {
			tags = append(tags, strings.ToLower(ext))
		}

		added = append(added, &files.Entry{
			ID:     id,
			Path:   filepath.ToSlash(rel),
			Name:   d.Name(),
			Tags:   tags,
			SendAs: sendAs,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// realPath resolves symlinks in p. Paths that do not exist are only
// cleaned.
func realPath(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	return filepath.Clean(p)
}

func (ix *Indexer) excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range ix.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// isTemp matches the temp files Registry.Save leaves during a rename.
func isTemp(name string) bool {
	return strings.HasPrefix(name, ".registry-") && strings.HasSuffix(name, ".tmp")
}

func slugify(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(base), "_"), "_")
	if s == "" {
		return "file"
	}
	return s
}

func uniqueID(base string, ids map[string]bool) string {
	id := base
	for i := 2; ids[id]; i++ {
		id = base + "_" + strconv.Itoa(i)
	}
	return id
}
