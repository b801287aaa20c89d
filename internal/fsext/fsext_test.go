package fsext

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/purpose168/chorus/internal/env"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		fp := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(fp), 0o755))
		require.NoError(t, os.WriteFile(fp, []byte(content), 0o644))
	}
}

func TestListDirectory(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{
		"regular.txt":           "content",
		".gitignore":            "*.gen.go\n",
		"subdir/file.go":        "package main",
		"subdir/skip.gen.go":    "package main",
		"node_modules/x/a.js":   "x",
		"build.log":             "build output",
		".chorusignore":         "secret/\n",
		"secret/credentials.md": "nope",
	})

	t.Run("无数量限制", func(t *testing.T) {
		t.Parallel()
		files, truncated, err := ListDirectory(tmp, -1, -1)
		require.NoError(t, err)
		require.False(t, truncated)
		require.Equal(t, []string{".chorusignore", ".gitignore", "regular.txt", "subdir/", "subdir/file.go"}, files)
	})

	t.Run("数量限制", func(t *testing.T) {
		t.Parallel()
		files, truncated, err := ListDirectory(tmp, -1, 2)
		require.NoError(t, err)
		require.True(t, truncated)
		require.Len(t, files, 2)
	})
}

func TestWalk(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{
		"a.go":           "package a",
		"sub/b.go":       "package b",
		"vendor/c.go":    "package c",
		".git/HEAD":      "ref",
		"sub/.gitignore": "ignored.txt\n",
		"sub/ignored.txt": "x",
	})

	var mu sync.Mutex
	var got []string
	err := Walk(t.Context(), tmp, func(path string, _ os.DirEntry) error {
		rel, _ := filepath.Rel(tmp, path)
		mu.Lock()
		got = append(got, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.go", "sub/b.go", "sub/.gitignore"}, got)
}

func TestWalk_Cancelled(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{"a.go": "x"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, Walk(ctx, tmp, func(string, os.DirEntry) error { return nil }), context.Canceled)
}

func TestGlobProbe(t *testing.T) {
	t.Parallel()

	p := FSProbe{FS: fstest.MapFS{
		".cursor/rules/go.mdc":     {Data: []byte("go")},
		".cursor/rules/ts.mdc":     {Data: []byte("ts")},
		".cursor/rules/readme.txt": {Data: []byte("x")},
	}}
	require.Equal(t, []string{".cursor/rules/go.mdc", ".cursor/rules/ts.mdc"}, GlobProbe(p, ".cursor/rules/*.mdc"))
	require.Empty(t, GlobProbe(p, "missing/*.md"))
}

func TestOSProbe(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{"AGENTS.md": "rules"})
	p := OSProbe{Root: tmp}

	data, err := p.ReadFile("AGENTS.md")
	require.NoError(t, err)
	require.Equal(t, "rules", string(data))

	info, err := p.Stat(filepath.Join(tmp, "AGENTS.md"))
	require.NoError(t, err)
	require.False(t, info.IsDir())

	entries, err := p.ReadDir(".")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLookupUp(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{
		"chorus.json":          "{}",
		"a/b/.chorus.json":     "{}",
		"a/b/c/placeholder.md": "",
	})

	found, err := LookupUp(filepath.Join(tmp, "a", "b", "c"), "chorus.json", ".chorus.json")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(found), 2)
	require.Equal(t, filepath.Join(tmp, "a", "b", ".chorus.json"), found[0])
	require.Equal(t, filepath.Join(tmp, "chorus.json"), found[1])
}

func TestExpand(t *testing.T) {
	t.Parallel()

	e := env.NewFromMap(map[string]string{"KEY": "secret", "HOME": "/home/u"})

	got, err := Expand("Bearer $KEY", e)
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", got)

	got, err = Expand("${KEY}-x", e)
	require.NoError(t, err)
	require.Equal(t, "secret-x", got)

	got, err = Expand("plain", e)
	require.NoError(t, err)
	require.Equal(t, "plain", got)

	got, err = Expand("~/data", e)
	require.NoError(t, err)
	require.Equal(t, "/home/u/data", got)
}
