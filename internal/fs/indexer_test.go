package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pavel-fokin/filehub/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{
		"Logo Final.PNG",
		"notes.txt",
		"docs/report.pdf",
		"docs/deep/photo.jpg",
		".cache/skip.bin",
	} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(p), 0644))
	}
	return root
}

func paths(entries []*files.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestIndexerScan(t *testing.T) {
	root := setupTree(t)
	ix, err := NewIndexer([]string{".cache/**", ".cache"})
	require.NoError(t, err)

	reg := &files.Registry{Root: root, Path: filepath.Join(root, "registry.json")}
	added, err := ix.Scan(reg, files.ScanAll, true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Logo Final.PNG", "notes.txt", "docs/report.pdf", "docs/deep/photo.jpg"}, paths(added))

	byPath := map[string]*files.Entry{}
	for _, e := range added {
		byPath[e.Path] = e
	}
	logo := byPath["Logo Final.PNG"]
	assert.Equal(t, "logo_final", logo.ID)
	assert.Equal(t, "Logo Final.PNG", logo.Name)
	assert.Equal(t, files.SendImage, logo.SendAs)
	assert.Equal(t, []string{"png"}, logo.Tags)
	assert.Nil(t, logo.Permissions)

	assert.Equal(t, files.SendFile, byPath["notes.txt"].SendAs)
}

func TestIndexerIdempotent(t *testing.T) {
	root := setupTree(t)
	ix, err := NewIndexer(nil)
	require.NoError(t, err)
	store := NewRegistry(root, "registry.json", false)

	reg, err := store.Load()
	require.NoError(t, err)
	added, err := ix.Scan(reg, files.ScanAll, true)
	require.NoError(t, err)
	require.NotEmpty(t, added)
	reg.Files = append(reg.Files, added...)
	require.NoError(t, store.Save(reg))

	reg, err = store.Load()
	require.NoError(t, err)
	again, err := ix.Scan(reg, files.ScanAll, true)
	require.NoError(t, err)
	assert.Empty(t, again, "registry.json itself and known files are skipped")
}

func TestIndexerKeepsMissingFiles(t *testing.T) {
	root := setupTree(t)
	ix, err := NewIndexer(nil)
	require.NoError(t, err)

	reg := &files.Registry{Root: root, Files: []*files.Entry{
		{ID: "gone", Path: "gone.txt"},
		{ID: "notes", Path: filepath.Join(root, "notes.txt")},
	}}
	added, err := ix.Scan(reg, files.ScanAll, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"Logo Final.PNG"}, paths(added))
	assert.Len(t, reg.Files, 2)
}

func TestIndexerImagesOnly(t *testing.T) {
	root := setupTree(t)
	ix, err := NewIndexer(nil)
	require.NoError(t, err)

	added, err := ix.Scan(&files.Registry{Root: root}, files.ScanImages, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Logo Final.PNG", "docs/deep/photo.jpg"}, paths(added))
}

func TestIndexerUniqueIDs(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a/report.pdf", "b/report.pdf", "report.txt"} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, nil, 0644))
	}
	ix, err := NewIndexer(nil)
	require.NoError(t, err)

	reg := &files.Registry{Root: root, Files: []*files.Entry{{ID: "report", Path: "elsewhere.pdf"}}}
	added, err := ix.Scan(reg, files.ScanAll, true)
	require.NoError(t, err)

	var ids []string
	for _, e := range added {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"report_2", "report_3", "report_4"}, ids)
}

func TestNewIndexerInvalidPattern(t *testing.T) {
	_, err := NewIndexer([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Logo Final.PNG":  "logo_final",
		"__weird--name.x": "weird_name",
		"设计图.png":         "file",
		"no-ext":          "no_ext",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, slugify(in), in)
	}
}

func TestIndexerResolvesSymlinkedRoot(t *testing.T) {
	target := setupTree(t)
	alias := filepath.Join(t.TempDir(), "alias")
	require.NoError(t, os.Symlink(target, alias))
	ix, err := NewIndexer([]string{".cache/**", ".cache"})
	require.NoError(t, err)

	reg := &files.Registry{
		Root: alias,
		Path: filepath.Join(alias, "registry.json"),
		Files: []*files.Entry{
			{ID: "notes", Path: filepath.Join(target, "notes.txt")},
			{ID: "report", Path: "docs/report.pdf"},
		},
	}
	added, err := ix.Scan(reg, files.ScanAll, true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Logo Final.PNG", "docs/deep/photo.jpg"}, paths(added))
}

func TestIndexerResolvesAbsoluteAlias(t *testing.T) {
	target := setupTree(t)
	alias := filepath.Join(t.TempDir(), "alias")
	require.NoError(t, os.Symlink(target, alias))
	ix, err := NewIndexer([]string{".cache/**", ".cache"})
	require.NoError(t, err)

	reg := &files.Registry{
		Root:  target,
		Path:  filepath.Join(target, "registry.json"),
		Files: []*files.Entry{{ID: "logo", Path: filepath.Join(alias, "Logo Final.PNG")}},
	}
	added, err := ix.Scan(reg, files.ScanAll, true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"notes.txt", "docs/report.pdf", "docs/deep/photo.jpg"}, paths(added))
}
