package home

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortLong(t *testing.T) {
	require.NotEmpty(t, Dir())

	d := filepath.Join(Dir(), "projects", "main.py")
	require.Equal(t, filepath.FromSlash("~/projects/main.py"), Short(d))
	require.Equal(t, d, Long(Short(d)))
	require.Equal(t, "~", Short(Dir()))

	// 主目录之外的路径保持原样
	ad := filepath.FromSlash("/absolute/path/file.txt")
	require.Equal(t, ad, Short(ad))
	require.Equal(t, ad, Long(ad))
}

func TestXDGDirs(t *testing.T) {
	cfg := t.TempDir()
	data := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	t.Setenv("XDG_DATA_HOME", data)

	require.Equal(t, filepath.Join(cfg, "chorus"), ConfigDir("chorus"))
	require.Equal(t, filepath.Join(data, "chorus"), DataDir("chorus"))
}
