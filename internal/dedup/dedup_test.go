package dedup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func makePackage(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"pkg"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lib", "index.js"), []byte("exports.x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "store"), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCanonicalPathShape(t *testing.T) {
	s := newTestStore(t)

	p := s.CanonicalPath("react", "18.2.0")
	if !strings.Contains(p, filepath.Join("react", "18.2.0")) {
		t.Fatalf("canonical path %s missing name/version segments", p)
	}
	if p != s.CanonicalPath("react", "18.2.0") {
		t.Fatal("canonical path should be deterministic")
	}
	if p == s.CanonicalPath("react", "18.3.0") {
		t.Fatal("different versions should map to different paths")
	}
}

func TestCanonicalPathSanitizesScopes(t *testing.T) {
	s := newTestStore(t)

	p := s.CanonicalPath("@babel/core", "7.24.0")
	rel, err := filepath.Rel(s.Root(), p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.Split(filepath.ToSlash(rel), "/")[0], "/") {
		t.Fatalf("scope separator leaked into path segment: %s", rel)
	}
	if !strings.Contains(p, "@babel_core") {
		t.Fatalf("scoped name not sanitized: %s", p)
	}
}

func TestDeduplicateReplacesWithSymlink(t *testing.T) {
	s := newTestStore(t)
	pkg := makePackage(t, t.TempDir(), "lodash")

	if err := s.Deduplicate(pkg, "lodash", "4.17.21"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Lstat(pkg)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatal("package path should now be a symlink")
	}

	// Content is still reachable through the link.
	data, err := os.ReadFile(filepath.Join(pkg, "lib", "index.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "exports.x = 1\n" {
		t.Fatalf("content through symlink = %q", data)
	}
}

func TestDeduplicateSharesStorageBetweenCopies(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	first := makePackage(t, filepath.Join(root, "app1", "node_modules"), "lodash")
	second := makePackage(t, filepath.Join(root, "app2", "node_modules"), "lodash")

	if err := s.Deduplicate(first, "lodash", "4.17.21"); err != nil {
		t.Fatal(err)
	}
	if err := s.Deduplicate(second, "lodash", "4.17.21"); err != nil {
		t.Fatal(err)
	}

	target1, err := os.Readlink(first)
	if err != nil {
		t.Fatal(err)
	}
	target2, err := os.Readlink(second)
	if err != nil {
		t.Fatal(err)
	}
	if target1 != target2 {
		t.Fatalf("copies point at different store entries: %s vs %s", target1, target2)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	s := newTestStore(t)
	pkg := makePackage(t, t.TempDir(), "react")

	if err := s.Deduplicate(pkg, "react", "18.2.0"); err != nil {
		t.Fatal(err)
	}
	if err := s.Deduplicate(pkg, "react", "18.2.0"); err != nil {
		t.Fatalf("second call on a symlink should be a no-op: %v", err)
	}
}

func TestStoreSeedUsesHardLinks(t *testing.T) {
	s := newTestStore(t)

	// Same filesystem as the store so hard links apply.
	pkg := makePackage(t, filepath.Join(filepath.Dir(s.Root()), "node_modules"), "lodash")
	srcFile := filepath.Join(pkg, "lib", "index.js")

	info1, err := os.Stat(srcFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Deduplicate(pkg, "lodash", "4.17.21"); err != nil {
		t.Fatal(err)
	}

	canonical := s.CanonicalPath("lodash", "4.17.21")
	info2, err := os.Stat(filepath.Join(canonical, "lib", "index.js"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(info1, info2) {
		t.Fatal("store entry should hard link the original file")
	}
}
