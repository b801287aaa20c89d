// Package home 处理用户主目录以及 XDG 风格的配置与数据目录。
package home

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var homedir, homedirErr = os.UserHomeDir()

func init() {
	if homedirErr != nil {
		slog.Error("获取用户主目录失败", "error", homedirErr)
	}
}

// Dir 返回用户主目录路径
func Dir() string {
	return homedir
}

// Short 将路径中的主目录前缀替换为 ~，用于展示
func Short(p string) string {
	if homedir == "" {
		return p
	}
	rel, err := filepath.Rel(homedir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || !filepath.IsAbs(p) {
		return p
	}
	if rel == "." {
		return "~"
	}
	return filepath.Join("~", rel)
}

// Long 将开头的 ~ 展开为主目录
func Long(p string) string {
	if homedir == "" || !strings.HasPrefix(p, "~") {
		return p
	}
	return homedir + strings.TrimPrefix(p, "~")
}

// ConfigDir 返回应用的全局配置目录
// 优先使用 XDG_CONFIG_HOME，Windows 上使用 LOCALAPPDATA
func ConfigDir(app string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, app)
	}
	if runtime.GOOS == "windows" {
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, app)
		}
	}
	return filepath.Join(homedir, ".config", app)
}

// DataDir 返回应用的全局数据目录
func DataDir(app string) string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, app)
	}
	if runtime.GOOS == "windows" {
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, app)
		}
	}
	return filepath.Join(homedir, ".local", "share", app)
}
