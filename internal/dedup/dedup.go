// Package dedup collapses identical name@version package copies into a
// content-addressed store. The first copy seen is hard-linked into the
// store; every copy's original path is then replaced by a symlink to the
// store entry, so duplicates share one set of file blocks.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pkgsweep/internal/fileutil"
	"pkgsweep/internal/logging"
)

// Store is a directory of canonical package copies keyed by name, version,
// and an identity hash.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a store rooted at root, creating the directory.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create dedup store: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		root:   root,
		logger: logging.NewComponentLogger(logger, "dedup"),
	}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// CanonicalPath returns the store location for a package identity:
// root/<name>/<version>/<hash8> with slashes in scoped names flattened.
func (s *Store) CanonicalPath(name, version string) string {
	sum := sha256.Sum256([]byte(name + "@" + version))
	return filepath.Join(s.root, sanitizeName(name), version, hex.EncodeToString(sum[:8]))
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return replacer.Replace(name)
}

// Deduplicate replaces the package at path with a symlink into the store,
// seeding the store from this copy when the identity is new. Paths that are
// already symlinks are left alone.
func (s *Store) Deduplicate(path, name, version string) error {
	canonical := s.CanonicalPath(name, version)

	if !fileutil.PathExists(canonical) {
		if err := hardLinkTree(path, canonical); err != nil {
			os.RemoveAll(canonical)
			return fmt.Errorf("seed store for %s@%s: %w", name, version, err)
		}
	}

	if isSymlink(path) {
		return nil
	}

	// Swap through a uniquely named sibling so a crash mid-replacement
	// leaves either the original directory or a working symlink.
	tmpLink := path + ".dedup-" + uuid.NewString()[:8]
	if err := os.Symlink(canonical, tmpLink); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		os.Remove(tmpLink)
		return fmt.Errorf("remove original %s: %w", path, err)
	}
	if err := os.Rename(tmpLink, path); err != nil {
		return fmt.Errorf("swap symlink into place: %w", err)
	}

	s.logger.Debug("deduplicated package",
		logging.String("path", path),
		logging.String("canonical", canonical))
	return nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// hardLinkTree mirrors the directory structure of src at dst with every
// regular file hard-linked. Cross-device trees fall back to verified copies.
func hardLinkTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			if err := os.Link(path, target); err != nil {
				return fileutil.CopyFileVerified(path, target)
			}
			return nil
		}
	})
}
