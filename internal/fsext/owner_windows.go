//go:build windows

package fsext

import "os"

// Owner 在 Windows 上不做所有权检查，返回 -1
func Owner(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return -1, nil
}
