package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func init() {
	os.Setenv("XDG_CONFIG_HOME", "/tmp/fakeconfig")
	os.Setenv("XDG_DATA_HOME", "/tmp/fakedata")
	os.Unsetenv("CHORUS_GLOBAL_CONFIG")
	os.Unsetenv("CHORUS_GLOBAL_DATA")
}

func runDirs(t *testing.T, run func()) string {
	t.Helper()
	var b bytes.Buffer
	dirsCmd.SetOut(&b)
	configDirCmd.SetOut(&b)
	dataDirCmd.SetOut(&b)
	run()
	return b.String()
}

func TestDirs(t *testing.T) {
	out := runDirs(t, func() { dirsCmd.Run(dirsCmd, nil) })
	expected := filepath.FromSlash("/tmp/fakeconfig/chorus") + "\n" +
		filepath.FromSlash("/tmp/fakedata/chorus") + "\n"
	require.Equal(t, expected, out)
}

func TestConfigDir(t *testing.T) {
	out := runDirs(t, func() { configDirCmd.Run(configDirCmd, nil) })
	require.Equal(t, filepath.FromSlash("/tmp/fakeconfig/chorus")+"\n", out)
}

func TestDataDir(t *testing.T) {
	out := runDirs(t, func() { dataDirCmd.Run(dataDirCmd, nil) })
	require.Equal(t, filepath.FromSlash("/tmp/fakedata/chorus")+"\n", out)
}
