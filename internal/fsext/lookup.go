package fsext

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LookupUp 从 dir 向上查找目标文件，直到文件系统根目录
// 所有者与起始目录不同的文件被跳过；返回的路径从近到远排列
func LookupUp(dir string, targets ...string) ([]string, error) {
	cwd, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("无法将目录转换为绝对路径: %w", err)
	}
	owner, err := Owner(cwd)
	if err != nil {
		return nil, fmt.Errorf("无法获取所有权: %w", err)
	}

	var found []string
	for {
		for _, target := range targets {
			fpath := filepath.Join(cwd, target)
			switch err := probeOwned(fpath, owner); {
			case err == nil:
				found = append(found, fpath)
			case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			default:
				return nil, fmt.Errorf("探测文件 %s 时出错: %w", fpath, err)
			}
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return found, nil
		}
		cwd = parent
	}
}

func probeOwned(path string, owner int) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if owner == -1 {
		return nil
	}
	fowner, err := Owner(path)
	if err != nil {
		return err
	}
	if fowner != owner {
		return fs.ErrPermission
	}
	return nil
}
