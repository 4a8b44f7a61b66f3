package tunnel

import (
	"fmt"
	"os"
	"path/filepath"
)

// staging owns the per-tunnel staging directories under staging_root,
// each holding a single read-only reference to the resolved library
// file. This is the "staging reference":
// a symbolic-link indirection letting the static server expose
// exactly one file per tunnel without exposing the library root.
type staging struct {
	root string
}

func newStaging(root string) *staging {
	return &staging{root: root}
}

func (s *staging) dir(tunnelID string) string {
	return filepath.Join(s.root, tunnelID)
}

// Create makes <staging_root>/<tunnel_id>/<basename> as a symlink to
// absPath, returning the basename to use in the public download path.
func (s *staging) Create(tunnelID, absPath string) (basename string, err error) {
	dir := s.dir(tunnelID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("tunnel: create staging dir: %w", err)
	}
	basename = filepath.Base(absPath)
	link := filepath.Join(dir, basename)
	if err := os.Symlink(absPath, link); err != nil {
		return "", fmt.Errorf("tunnel: create staging reference: %w", err)
	}
	return basename, nil
}

// Remove deletes the entire per-tunnel staging directory. Cleanup is
// delete-by-prefix at the filesystem level: removing the tunnel's
// directory takes its one reference with it.
func (s *staging) Remove(tunnelID string) error {
	if err := os.RemoveAll(s.dir(tunnelID)); err != nil {
		return fmt.Errorf("tunnel: remove staging dir: %w", err)
	}
	return nil
}
