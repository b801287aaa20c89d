package fsext

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/purpose168/chorus/internal/csync"
	"github.com/purpose168/chorus/internal/home"
	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile 项目级的额外忽略规则文件名
const IgnoreFile = ".chorusignore"

var commonIgnorePatterns = sync.OnceValue(func() ignore.IgnoreParser {
	return ignore.CompileIgnoreLines(
		// 版本控制
		".git",
		".svn",
		".hg",

		// 编辑器
		".vscode",
		".idea",
		"*.swp",
		"*~",
		".DS_Store",
		"Thumbs.db",

		// 构建产物和依赖
		"node_modules",
		"target",
		"build",
		"dist",
		"out",
		"bin",
		"obj",
		"*.o",
		"*.so",
		"*.dylib",
		"*.dll",
		"*.exe",
		"__pycache__",
		"*.pyc",
		".pytest_cache",
		"vendor",

		// 日志和临时文件
		"*.log",
		"*.tmp",
		".cache",

		".chorus",
	)
})

var homeIgnore = sync.OnceValue(func() ignore.IgnoreParser {
	dir := home.Dir()
	var lines []string
	for _, name := range []string{
		filepath.Join(dir, ".gitignore"),
		filepath.Join(dir, ".config", "git", "ignore"),
		filepath.Join(dir, ".config", "chorus", "ignore"),
	} {
		if bts, err := os.ReadFile(name); err == nil {
			lines = append(lines, strings.Split(string(bts), "\n")...)
		}
	}
	return ignore.CompileIgnoreLines(lines...)
})

// Ignorer 分层的忽略规则检查
// 依次检查通用模式、从路径所在目录向上直到根目录的 .gitignore 与
// .chorusignore，以及用户主目录下的全局忽略文件
type Ignorer struct {
	root    string
	parsers *csync.Map[string, ignore.IgnoreParser]
}

// NewIgnorer 创建以 root 为根的忽略检查器
func NewIgnorer(root string) *Ignorer {
	return &Ignorer{
		root:    filepath.Clean(root),
		parsers: csync.NewMap[string, ignore.IgnoreParser](),
	}
}

// ShouldIgnore 报告路径是否应被忽略，根目录本身从不忽略
func (ig *Ignorer) ShouldIgnore(path string, isDir bool) bool {
	path = filepath.Clean(path)
	if path == ig.root {
		return false
	}
	rel, err := filepath.Rel(ig.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	if commonIgnorePatterns().MatchesPath(rel) {
		return true
	}
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		p := ig.parser(dir)
		if p.MatchesPath(rel) || (isDir && p.MatchesPath(rel+"/")) {
			slog.Debug("路径被忽略规则排除", "path", rel, "dir", dir)
			return true
		}
		if dir == ig.root || filepath.Dir(dir) == dir || !strings.HasPrefix(dir, ig.root) {
			break
		}
	}
	return homeIgnore().MatchesPath(rel)
}

func (ig *Ignorer) parser(dir string) ignore.IgnoreParser {
	if p, ok := ig.parsers.Get(dir); ok {
		return p
	}
	var lines []string
	for _, name := range []string{IgnoreFile, ".gitignore"} {
		if content, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			lines = append(lines, strings.Split(string(content), "\n")...)
		}
	}
	p := ignore.CompileIgnoreLines(lines...)
	ig.parsers.SetIfAbsent(dir, p)
	return p
}
