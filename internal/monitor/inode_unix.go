//go:build !windows

package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

func inode(f *os.File) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("monitor: stat: %w", err)
	}
	return inodeFromInfo(info)
}

func inodeFromInfo(info os.FileInfo) (uint64, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("monitor: unsupported platform for inode detection")
	}
	return stat.Ino, nil
}

func filepathDir(path string) string {
	return filepath.Dir(path)
}
