package fsext

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// WalkFunc 遍历回调，可能被并发调用
type WalkFunc func(path string, d fs.DirEntry) error

// Walk 并发遍历 root 下未被忽略的文件，ctx 取消时提前结束
func Walk(ctx context.Context, root string, fn WalkFunc) error {
	ig := NewIgnorer(root)
	conf := fastwalk.Config{
		Follow: false,
	}
	err := fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // 跳过无权访问的文件
		}
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if ig.ShouldIgnore(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return fn(path, d)
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return err
	}
	return ctx.Err()
}

// ListDirectory 列出目录内容（相对路径，目录以 / 结尾），按深度限制
// limit > 0 时最多返回 limit 项，第二个返回值表示是否被截断
func ListDirectory(root string, depth, limit int) ([]string, bool, error) {
	ig := NewIgnorer(root)
	var (
		mu    sync.Mutex
		found []string
	)
	conf := fastwalk.Config{
		Follow:   true,
		Sort:     fastwalk.SortDirsFirst,
		MaxDepth: depth,
	}
	err := fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ig.ShouldIgnore(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}

		mu.Lock()
		defer mu.Unlock()
		found = append(found, rel)
		if limit > 0 && len(found) > limit {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return nil, false, err
	}
	slices.Sort(found)
	if limit > 0 && len(found) > limit {
		return found[:limit], true, nil
	}
	return found, false, nil
}

// GlobProbe 在 Probe 上匹配模式，只展开模式中的目录前缀
// 用于规则目录这类浅层模式，例如 .cursor/rules/*.mdc
func GlobProbe(p Probe, pattern string) []string {
	pattern = filepath.ToSlash(pattern)
	base, rest := doublestar.SplitPattern(pattern)
	if rest == "" || base == "" {
		return nil
	}
	entries, err := p.ReadDir(base)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := doublestar.Match(rest, e.Name()); ok {
			out = append(out, base+"/"+e.Name())
		}
	}
	slices.Sort(out)
	return out
}
