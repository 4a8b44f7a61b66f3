//go:build windows

package monitor

import (
	"os"
	"path/filepath"
)

// Windows has no portable inode equivalent exposed via os.FileInfo;
// fall back to size+mtime as a rotation proxy (a truncate-and-rewrite
// changes at least one of these, which is the rotation style most
// Windows-hosted static servers use).
func inode(f *os.File) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return inodeFromInfo(info)
}

func inodeFromInfo(info os.FileInfo) (uint64, error) {
	return uint64(info.ModTime().UnixNano()) ^ uint64(info.Size()), nil
}

func filepathDir(path string) string {
	return filepath.Dir(path)
}
