package scanner

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"pkgsweep/internal/fileutil"
	"pkgsweep/internal/logging"
	"pkgsweep/internal/scancache"
)

// packageWalkDepth bounds how deep inside a node_modules directory package
// roots are searched; scoped packages sit one level down, nested installs a
// level below that.
const packageWalkDepth = 3

// Scanner walks filesystem roots for package directories and project
// manifests. Directory sizing runs in parallel, memoized through an
// optional scan cache.
type Scanner struct {
	cache  *scancache.Cache
	logger *slog.Logger
}

// New creates a scanner. cache may be nil to force full sizing.
func New(cache *scancache.Cache, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "scanner"),
	}
}

// Scan walks roots and returns discovered packages and projects. An empty
// roots list scans the current directory.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*Output, error) {
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		roots = []string{cwd}
	}

	start := time.Now()
	packageRoots, projects := s.collect(roots)

	packages, err := s.sizePackages(ctx, packageRoots)
	if err != nil {
		return nil, err
	}

	out := &Output{Packages: packages, Projects: projects}
	s.logger.Info("scan complete",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.Int("packages", len(out.Packages)),
		logging.Int("projects", len(out.Projects)),
		logging.Int64("total_size_bytes", out.TotalSizeBytes()),
		logging.Duration("elapsed", time.Since(start)))
	return out, nil
}

// collect performs the single sequential walk, gathering package container
// directories (node_modules and manager caches) and project manifests.
func (s *Scanner) collect(roots []string) (packageRoots []string, projects []Project) {
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree, keep going
			}
			if d.IsDir() {
				if d.Name() == "node_modules" || isManagerCacheDir(path) {
					packageRoots = append(packageRoots, path)
					return filepath.SkipDir
				}
				return nil
			}
			if d.Name() == "package.json" && !strings.Contains(path, "node_modules") {
				if project, ok := s.parseProject(path); ok {
					projects = append(projects, project)
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("walk failed",
				logging.String("root", root),
				logging.Error(err))
		}
	}
	return packageRoots, projects
}

// isManagerCacheDir matches the well-known package manager cache locations.
func isManagerCacheDir(path string) bool {
	p := strings.ToLower(filepath.ToSlash(path))
	return strings.HasSuffix(p, "/.npm") ||
		strings.Contains(p, "yarn/cache") ||
		strings.Contains(p, "pnpm/store")
}

// parseProject reads a project manifest plus its lockfile into a Project.
func (s *Scanner) parseProject(manifestPath string) (Project, bool) {
	dir := filepath.Dir(manifestPath)
	manager := detectManager(dir)

	mtime := time.Now()
	if info, err := os.Stat(manifestPath); err == nil {
		mtime = info.ModTime()
	}

	var deps []Dependency
	if data, err := os.ReadFile(manifestPath); err == nil {
		var manifest struct {
			Dependencies     map[string]string `json:"dependencies"`
			DevDependencies  map[string]string `json:"devDependencies"`
			PeerDependencies map[string]string `json:"peerDependencies"`
		}
		if err := json.Unmarshal(data, &manifest); err != nil {
			return Project{}, false
		}
		for _, section := range []map[string]string{manifest.Dependencies, manifest.DevDependencies, manifest.PeerDependencies} {
			for name, version := range section {
				deps = append(deps, Dependency{Name: name, Version: version})
			}
		}
	}

	switch manager {
	case ManagerNpm:
		deps = append(deps, parseNpmLock(filepath.Join(dir, "package-lock.json"))...)
	case ManagerYarn:
		deps = append(deps, parseYarnLock(filepath.Join(dir, "yarn.lock"))...)
	case ManagerPnpm:
		deps = append(deps, parsePnpmLock(filepath.Join(dir, "pnpm-lock.yaml"))...)
	}

	return Project{
		Path:         dir,
		Manager:      manager,
		Dependencies: deps,
		MTime:        mtime,
	}, true
}

// sizePackages finds package roots under each container directory and sizes
// them in parallel. The scan cache serializes its own access; results are
// appended under a separate mutex.
func (s *Scanner) sizePackages(ctx context.Context, containerDirs []string) ([]Package, error) {
	var (
		mu       sync.Mutex
		packages []Package
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, container := range containerDirs {
		manager, projectPaths := containerOwner(container)
		for _, pkgDir := range findPackageDirs(container) {
			pkgDir := pkgDir
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				pkg, ok := s.inspectPackage(pkgDir)
				if !ok {
					return nil
				}
				pkg.Manager = manager
				pkg.ProjectPaths = projectPaths
				mu.Lock()
				packages = append(packages, pkg)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return packages, nil
}

// containerOwner resolves the project owning a package container and the
// manager it belongs to. Manager cache directories have no owning project.
func containerOwner(container string) (Manager, []string) {
	if filepath.Base(container) == "node_modules" {
		project := filepath.Dir(container)
		return detectManager(project), []string{project}
	}
	return cacheDirManager(container), nil
}

// cacheDirManager infers the manager from a cache directory's location.
func cacheDirManager(path string) Manager {
	p := strings.ToLower(filepath.ToSlash(path))
	switch {
	case strings.HasSuffix(p, "/.npm"):
		return ManagerNpm
	case strings.Contains(p, "yarn/cache"):
		return ManagerYarn
	case strings.Contains(p, "pnpm/store"):
		return ManagerPnpm
	}
	return ""
}

// findPackageDirs returns directories under container that hold a
// package.json, down to packageWalkDepth levels.
func findPackageDirs(container string) []string {
	var dirs []string
	base := strings.Count(filepath.ToSlash(container), "/")

	_ = filepath.WalkDir(container, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path == container {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(path), "/") - base
		if depth > packageWalkDepth {
			return filepath.SkipDir
		}
		if fileExists(filepath.Join(path, "package.json")) {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

// inspectPackage reads identity and timestamps for one package directory
// and sizes it through the cache.
func (s *Scanner) inspectPackage(pkgDir string) (Package, bool) {
	info, err := os.Stat(pkgDir)
	if err != nil {
		return Package{}, false
	}

	name, version := "unknown", "unknown"
	if data, err := os.ReadFile(filepath.Join(pkgDir, "package.json")); err == nil {
		var manifest struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}
		if json.Unmarshal(data, &manifest) == nil {
			if manifest.Name != "" {
				name = manifest.Name
			}
			if manifest.Version != "" {
				version = manifest.Version
			}
		}
	}

	var size int64
	if s.cache != nil {
		size = s.cache.GetOrComputeSize(pkgDir, func() int64 { return fileutil.DirSize(pkgDir) })
	} else {
		size = fileutil.DirSize(pkgDir)
	}

	return Package{
		Name:      name,
		Version:   version,
		Path:      pkgDir,
		SizeBytes: size,
		ATime:     atime(pkgDir, info.ModTime()),
		MTime:     info.ModTime(),
	}, true
}

// atime returns the access time for path, falling back when unavailable.
func atime(path string, fallback time.Time) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fallback
	}
	return time.Unix(st.Atim.Sec, st.Atim.Nsec)
}
