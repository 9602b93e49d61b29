package quarantine

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Hash sentinels stored in place of a real digest.
const (
	// HashUnknown marks a record whose hash computation failed.
	HashUnknown = "unknown"
	// HashDeferred marks a record created on the fast path with hashing skipped.
	HashDeferred = "deferred"
)

// hashDir computes a SHA256 digest over the tree rooted at root: each entry
// contributes its slash-normalized relative path, and regular files
// additionally contribute their bytes. WalkDir's lexical order makes the
// digest deterministic and independent of where the tree currently lives,
// so a hash taken in quarantine still matches after rollback.
func hashDir(root string) (string, error) {
	hasher := sha256.New()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hasher.Write([]byte(filepath.ToSlash(rel)))

		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(hasher, f)
		f.Close()
		return err
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
