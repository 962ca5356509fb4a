package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// errFSUnknown is returned by detectors on platforms without statfs support.
var errFSUnknown = errors.New("filesystem type unknown")

var remoteFilesystems = []string{"afpfs", "cifs", "nfs", "smb2", "smbfs", "webdav"}

// ensureLocalFilesystem rejects journal paths on network mounts, where SQLite
// file locking is unreliable. Unknown filesystems pass.
func ensureLocalFilesystem(path string, detect func(string) (string, error)) error {
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve journal path %q: %w", path, err)
	}
	fsType, err := detect(dir)
	if errors.Is(err, errFSUnknown) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", dir, err)
	}
	if isRemoteFilesystem(fsType) {
		return fmt.Errorf("journal %q is on network filesystem %q; set state.path to a local disk", path, fsType)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent")
		}
		p = parent
	}
}

func isRemoteFilesystem(fsType string) bool {
	return slices.Contains(remoteFilesystems, strings.ToLower(strings.TrimSpace(fsType)))
}
