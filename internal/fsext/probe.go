// Package fsext 提供只读的项目文件系统探测与遍历工具。
package fsext

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Probe 只读文件系统探测，用于构建提示词上下文
type Probe interface {
	ReadDir(path string) ([]fs.DirEntry, error)
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSProbe 基于本地文件系统的 Probe，相对路径以 Root 为基准
type OSProbe struct {
	Root string
}

var _ Probe = OSProbe{}

func (p OSProbe) abs(path string) string {
	if filepath.IsAbs(path) || p.Root == "" {
		return path
	}
	return filepath.Join(p.Root, path)
}

func (p OSProbe) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(p.abs(path)) }
func (p OSProbe) ReadFile(path string) ([]byte, error)       { return os.ReadFile(p.abs(path)) }
func (p OSProbe) Stat(path string) (fs.FileInfo, error)      { return os.Stat(p.abs(path)) }

// FSProbe 将 fs.FS 适配为 Probe，路径使用正斜杠且相对于 FS 根
type FSProbe struct {
	FS fs.FS
}

var _ Probe = FSProbe{}

func (p FSProbe) clean(path string) string {
	path = filepath.ToSlash(filepath.Clean(path))
	if path == "" || path == "/" {
		return "."
	}
	if path[0] == '/' {
		return path[1:]
	}
	return path
}

func (p FSProbe) ReadDir(path string) ([]fs.DirEntry, error) { return fs.ReadDir(p.FS, p.clean(path)) }
func (p FSProbe) ReadFile(path string) ([]byte, error)       { return fs.ReadFile(p.FS, p.clean(path)) }
func (p FSProbe) Stat(path string) (fs.FileInfo, error)      { return fs.Stat(p.FS, p.clean(path)) }
